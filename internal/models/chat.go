package models

import (
	"time"

	"github.com/google/uuid"
)

// ConversationStatus represents whether a chat conversation is still open
type ConversationStatus string

const (
	ConversationActive ConversationStatus = "active"
	ConversationClosed ConversationStatus = "closed"
)

// MessageSender identifies who wrote a chat message
type MessageSender string

const (
	SenderCustomer MessageSender = "customer"
	SenderAgent    MessageSender = "agent"
)

// IsValid reports whether s is a known sender
func (s MessageSender) IsValid() bool {
	return s == SenderCustomer || s == SenderAgent
}

// Conversation is a support chat keyed by customer identity (chat_conversations table)
type Conversation struct {
	ID            uuid.UUID          `db:"id" json:"id"`
	CustomerName  string             `db:"customer_name" json:"customer_name"`
	CustomerEmail string             `db:"customer_email" json:"customer_email"`
	Status        ConversationStatus `db:"status" json:"status"`
	CreatedAt     time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `db:"updated_at" json:"updated_at"`
}

// ChatMessage is a single message in a conversation (chat_messages table)
type ChatMessage struct {
	ID             uuid.UUID     `db:"id" json:"id"`
	ConversationID uuid.UUID     `db:"conversation_id" json:"conversation_id"`
	Sender         MessageSender `db:"sender" json:"sender"`
	SenderName     string        `db:"sender_name" json:"sender_name"`
	Text           string        `db:"text" json:"text"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
}

// StartChatRequest asks for the conversation of an identity
type StartChatRequest struct {
	CustomerName  string `json:"customer_name" binding:"required"`
	CustomerEmail string `json:"customer_email" binding:"required,email"`
}

// StartChatResponse returns the (possibly resumed) conversation
type StartChatResponse struct {
	Success        bool   `json:"success"`
	ConversationID string `json:"conversation_id,omitempty"`
	Resumed        bool   `json:"resumed"`
	Error          string `json:"error,omitempty"`
}

// SendChatMessageRequest posts a message into a conversation
type SendChatMessageRequest struct {
	Sender     MessageSender `json:"sender" binding:"required"`
	SenderName string        `json:"sender_name" binding:"required"`
	Text       string        `json:"text" binding:"required"`
}

// ChatMessagesResponse lists a conversation's messages
type ChatMessagesResponse struct {
	Success  bool          `json:"success"`
	Messages []ChatMessage `json:"messages"`
	Error    string        `json:"error,omitempty"`
}

// SendChatMessageResponse returns the stored message
type SendChatMessageResponse struct {
	Success bool         `json:"success"`
	Message *ChatMessage `json:"message,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// ChatChangedEvent is published whenever a conversation's messages change
type ChatChangedEvent struct {
	ConversationID string    `json:"conversation_id"`
	OccurredAt     time.Time `json:"occurred_at"`
}
