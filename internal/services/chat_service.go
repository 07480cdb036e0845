package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hoponpass/daypass-backend/internal/database"
	"github.com/hoponpass/daypass-backend/internal/metrics"
	"github.com/hoponpass/daypass-backend/internal/models"
	"github.com/hoponpass/daypass-backend/pkg/validator"
)

// maxChatMessageLength is the longest message accepted, in characters
const maxChatMessageLength = 2000

var (
	// ErrConversationNotFound is returned for unknown conversation IDs
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrConversationClosed is returned when writing to a closed conversation
	ErrConversationClosed = errors.New("conversation is closed")
)

// ChatValidationError is returned for chat input the server refuses
type ChatValidationError struct {
	Message string
}

func (e *ChatValidationError) Error() string {
	return e.Message
}

// ChatStore persists conversations and messages
type ChatStore interface {
	FindActiveConversation(name, email string) (*models.Conversation, error)
	GetConversation(id uuid.UUID) (*models.Conversation, error)
	CreateConversation(conv *models.Conversation) error
	ListMessages(conversationID uuid.UUID) ([]models.ChatMessage, error)
	CreateMessage(msg *models.ChatMessage) error
}

// ChangeNotifier announces that a conversation's messages changed
type ChangeNotifier interface {
	ConversationChanged(ctx context.Context, conversationID string) error
}

// ChatService keeps at most one active conversation per customer identity
type ChatService struct {
	store    ChatStore
	notifier ChangeNotifier
	metrics  *metrics.Metrics
	logger   *logrus.Logger
}

// NewChatService creates a new ChatService
func NewChatService(store ChatStore, notifier ChangeNotifier, m *metrics.Metrics, logger *logrus.Logger) *ChatService {
	return &ChatService{store: store, notifier: notifier, metrics: m, logger: logger}
}

// StartOrResume returns the active conversation for the identity, creating it
// when there is none
func (s *ChatService) StartOrResume(req *models.StartChatRequest) (*models.Conversation, bool, error) {
	name := strings.TrimSpace(req.CustomerName)
	email := validator.NormalizeEmail(req.CustomerEmail)
	if name == "" {
		return nil, false, &ChatValidationError{Message: "name is required"}
	}
	if err := validator.ValidateEmail(email); err != nil {
		return nil, false, &ChatValidationError{Message: "a valid email is required"}
	}

	conv, err := s.store.FindActiveConversation(name, email)
	if err != nil {
		return nil, false, err
	}
	if conv != nil {
		s.resolved(conv, true)
		return conv, true, nil
	}

	conv = &models.Conversation{CustomerName: name, CustomerEmail: email}
	err = s.store.CreateConversation(conv)
	if errors.Is(err, database.ErrActiveConversationExists) {
		// another request for the same identity created it first
		conv, err = s.store.FindActiveConversation(name, email)
		if err != nil {
			return nil, false, err
		}
		if conv == nil {
			return nil, false, fmt.Errorf("conversation vanished after concurrent create")
		}
		s.resolved(conv, true)
		return conv, true, nil
	}
	if err != nil {
		return nil, false, err
	}

	s.resolved(conv, false)
	return conv, false, nil
}

func (s *ChatService) resolved(conv *models.Conversation, resumed bool) {
	s.metrics.ChatResolutions.WithLabelValues(strconv.FormatBool(resumed)).Inc()
	s.logger.WithFields(logrus.Fields{
		"conversation_id": conv.ID,
		"resumed":         resumed,
	}).Info("Chat conversation resolved")
}

// Messages returns every message of a conversation, oldest first
func (s *ChatService) Messages(conversationID uuid.UUID) ([]models.ChatMessage, error) {
	conv, err := s.store.GetConversation(conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	return s.store.ListMessages(conversationID)
}

// SendMessage stores a message and notifies subscribers of the conversation
func (s *ChatService) SendMessage(ctx context.Context, conversationID uuid.UUID, req *models.SendChatMessageRequest) (*models.ChatMessage, error) {
	if !req.Sender.IsValid() {
		return nil, &ChatValidationError{Message: "sender must be customer or agent"}
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, &ChatValidationError{Message: "message cannot be empty"}
	}
	if utf8.RuneCountInString(text) > maxChatMessageLength {
		return nil, &ChatValidationError{Message: fmt.Sprintf("message cannot exceed %d characters", maxChatMessageLength)}
	}
	senderName := strings.TrimSpace(req.SenderName)
	if senderName == "" {
		return nil, &ChatValidationError{Message: "sender name is required"}
	}

	conv, err := s.store.GetConversation(conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	if conv.Status != models.ConversationActive {
		return nil, ErrConversationClosed
	}

	msg := &models.ChatMessage{
		ConversationID: conversationID,
		Sender:         req.Sender,
		SenderName:     senderName,
		Text:           text,
	}
	if err := s.store.CreateMessage(msg); err != nil {
		return nil, err
	}
	s.metrics.ChatMessages.WithLabelValues(string(msg.Sender)).Inc()

	if err := s.notifier.ConversationChanged(ctx, conversationID.String()); err != nil {
		s.logger.WithError(err).WithField("conversation_id", conversationID).Warn("Failed to publish chat change")
	}
	return msg, nil
}
