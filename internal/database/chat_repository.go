package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hoponpass/daypass-backend/internal/models"
)

// ErrActiveConversationExists is returned when another active conversation was
// created concurrently for the same identity
var ErrActiveConversationExists = errors.New("active conversation already exists")

const activeConversationIndex = "chat_conversations_active_identity_idx"

// ChatRepository handles database operations for chat_conversations and chat_messages
type ChatRepository struct {
	db DB
}

// NewChatRepository creates a new ChatRepository
func NewChatRepository(db DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// FindActiveConversation returns the open conversation for an identity, or nil
func (r *ChatRepository) FindActiveConversation(name, email string) (*models.Conversation, error) {
	query := `
		SELECT id, customer_name, customer_email, status, created_at, updated_at
		FROM chat_conversations
		WHERE customer_name = $1 AND customer_email = $2 AND status = 'active'
	`

	var conv models.Conversation
	if err := r.db.Get(&conv, query, name, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find conversation: %w", err)
	}
	return &conv, nil
}

// GetConversation retrieves a conversation by ID. Returns nil when not found.
func (r *ChatRepository) GetConversation(id uuid.UUID) (*models.Conversation, error) {
	query := `
		SELECT id, customer_name, customer_email, status, created_at, updated_at
		FROM chat_conversations
		WHERE id = $1
	`

	var conv models.Conversation
	if err := r.db.Get(&conv, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conv, nil
}

// CreateConversation inserts a new active conversation
func (r *ChatRepository) CreateConversation(conv *models.Conversation) error {
	query := `
		INSERT INTO chat_conversations (id, customer_name, customer_email, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`

	if conv.ID == uuid.Nil {
		conv.ID = uuid.New()
	}
	conv.Status = models.ConversationActive

	err := r.db.QueryRow(query, conv.ID, conv.CustomerName, conv.CustomerEmail, conv.Status).
		Scan(&conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == activeConversationIndex {
			return ErrActiveConversationExists
		}
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

// ListMessages returns a conversation's messages, oldest first
func (r *ChatRepository) ListMessages(conversationID uuid.UUID) ([]models.ChatMessage, error) {
	query := `
		SELECT id, conversation_id, sender, sender_name, text, created_at
		FROM chat_messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC
	`

	messages := []models.ChatMessage{}
	if err := r.db.Select(&messages, query, conversationID); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// CreateMessage inserts a message and bumps the conversation's updated_at
func (r *ChatRepository) CreateMessage(msg *models.ChatMessage) error {
	query := `
		WITH touched AS (
			UPDATE chat_conversations SET updated_at = NOW() WHERE id = $2
		)
		INSERT INTO chat_messages (id, conversation_id, sender, sender_name, text)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`

	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}

	err := r.db.QueryRow(query, msg.ID, msg.ConversationID, msg.Sender, msg.SenderName, msg.Text).
		Scan(&msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// PurgeClosedBefore deletes closed conversations untouched since cutoff, with their messages
func (r *ChatRepository) PurgeClosedBefore(cutoff time.Time) (int64, error) {
	query := `
		WITH doomed AS (
			SELECT id FROM chat_conversations WHERE status = $1 AND updated_at < $2
		), messages AS (
			DELETE FROM chat_messages WHERE conversation_id IN (SELECT id FROM doomed)
		)
		DELETE FROM chat_conversations WHERE id IN (SELECT id FROM doomed)
	`
	result, err := r.db.Exec(query, models.ConversationClosed, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge closed conversations: %w", err)
	}
	return result.RowsAffected()
}
