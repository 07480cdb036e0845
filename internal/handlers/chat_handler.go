package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hoponpass/daypass-backend/internal/models"
	"github.com/hoponpass/daypass-backend/internal/services"
)

// ChatService is the support chat behaviour the handler exposes
type ChatService interface {
	StartOrResume(req *models.StartChatRequest) (*models.Conversation, bool, error)
	Messages(conversationID uuid.UUID) ([]models.ChatMessage, error)
	SendMessage(ctx context.Context, conversationID uuid.UUID, req *models.SendChatMessageRequest) (*models.ChatMessage, error)
}

// ChatHandler handles support chat HTTP requests
type ChatHandler struct {
	chat   ChatService
	logger *logrus.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chat ChatService, logger *logrus.Logger) *ChatHandler {
	return &ChatHandler{chat: chat, logger: logger}
}

// StartOrResume handles POST /api/v1/chat/conversations
func (h *ChatHandler) StartOrResume(c *gin.Context) {
	var req models.StartChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.StartChatResponse{Success: false, Error: "Name and a valid email are required"})
		return
	}

	conv, resumed, err := h.chat.StartOrResume(&req)
	if err != nil {
		var validationErr *services.ChatValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusBadRequest, models.StartChatResponse{Success: false, Error: validationErr.Message})
			return
		}
		h.logger.WithError(err).Error("Failed to start chat conversation")
		c.JSON(http.StatusInternalServerError, models.StartChatResponse{Success: false, Error: "Failed to start conversation"})
		return
	}

	status := http.StatusCreated
	if resumed {
		status = http.StatusOK
	}
	c.JSON(status, models.StartChatResponse{Success: true, ConversationID: conv.ID.String(), Resumed: resumed})
}

// GetMessages handles GET /api/v1/chat/conversations/:id/messages
func (h *ChatHandler) GetMessages(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ChatMessagesResponse{Success: false, Error: "Invalid conversation ID"})
		return
	}

	messages, err := h.chat.Messages(conversationID)
	if err != nil {
		h.chatError(c, err, conversationID)
		return
	}

	c.JSON(http.StatusOK, models.ChatMessagesResponse{Success: true, Messages: messages})
}

// SendMessage handles POST /api/v1/chat/conversations/:id/messages
func (h *ChatHandler) SendMessage(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.SendChatMessageResponse{Success: false, Error: "Invalid conversation ID"})
		return
	}

	var req models.SendChatMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.SendChatMessageResponse{Success: false, Error: "Sender, sender name and text are required"})
		return
	}

	msg, err := h.chat.SendMessage(c.Request.Context(), conversationID, &req)
	if err != nil {
		var validationErr *services.ChatValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusBadRequest, models.SendChatMessageResponse{Success: false, Error: validationErr.Message})
			return
		}
		h.chatError(c, err, conversationID)
		return
	}

	c.JSON(http.StatusCreated, models.SendChatMessageResponse{Success: true, Message: msg})
}

func (h *ChatHandler) chatError(c *gin.Context, err error, conversationID uuid.UUID) {
	switch {
	case errors.Is(err, services.ErrConversationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Conversation not found"})
	case errors.Is(err, services.ErrConversationClosed):
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": "Conversation is closed"})
	default:
		h.logger.WithError(err).WithField("conversation_id", conversationID).Error("Chat request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Chat is unavailable, please try again"})
	}
}
