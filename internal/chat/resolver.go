package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/sirupsen/logrus"

	"github.com/hoponpass/daypass-backend/internal/events"
	"github.com/hoponpass/daypass-backend/internal/models"
	"github.com/hoponpass/daypass-backend/internal/session"
	"github.com/hoponpass/daypass-backend/internal/storage"
	"github.com/hoponpass/daypass-backend/pkg/validator"
)

// StorageKey is the fixed slot the resolved conversation is cached under
const StorageKey = "daypass_chat_conversation"

var (
	// ErrIdentityRequired is returned when name or email is missing
	ErrIdentityRequired = errors.New("name and email are required to start a chat")

	// ErrEmptyMessage is returned for a blank message
	ErrEmptyMessage = errors.New("message cannot be empty")
)

// Identity is who the customer chats as
type Identity struct {
	Name  string
	Email string
}

// IdentityFrom prefers the session identity and falls back to manual entry
func IdentityFrom(id session.Identity, manual Identity) Identity {
	if s, ok := id.(session.SessionIdentity); ok {
		return Identity{Name: s.Session.CustomerName, Email: s.Session.CustomerEmail}
	}
	return manual
}

func (i Identity) normalized() Identity {
	return Identity{Name: strings.TrimSpace(i.Name), Email: validator.NormalizeEmail(i.Email)}
}

// cachedConversation is the JSON record stored under StorageKey
type cachedConversation struct {
	ConversationID string `json:"conversation_id"`
	CustomerName   string `json:"customer_name"`
	CustomerEmail  string `json:"customer_email"`
}

// Collaborator is the chat backend. Errors are transport failures.
type Collaborator interface {
	StartOrResumeChat(ctx context.Context, req models.StartChatRequest) (*models.StartChatResponse, error)
	FetchChatMessages(ctx context.Context, conversationID string) ([]models.ChatMessage, error)
	SendChatMessage(ctx context.Context, conversationID string, req models.SendChatMessageRequest) (*models.ChatMessage, error)
}

// SessionEvents lets the resolver follow login/logout
type SessionEvents interface {
	Subscribe(fn func(session.Event)) (cancel func())
}

// Resolver maps a customer identity to one durable conversation
type Resolver struct {
	store      storage.Store
	api        Collaborator
	subscriber message.Subscriber
	logger     *logrus.Logger
}

// NewResolver creates a resolver. subscriber delivers change notifications for Watch.
func NewResolver(store storage.Store, api Collaborator, subscriber message.Subscriber, logger *logrus.Logger) *Resolver {
	return &Resolver{store: store, api: api, subscriber: subscriber, logger: logger}
}

// Resolve returns the conversation for identity. The cached ID is reused only
// while it was resolved for the same identity.
func (r *Resolver) Resolve(ctx context.Context, identity Identity) (string, error) {
	identity = identity.normalized()
	if identity.Name == "" || identity.Email == "" {
		return "", ErrIdentityRequired
	}

	var cached cachedConversation
	err := storage.GetJSON(ctx, r.store, StorageKey, &cached)
	switch {
	case err == nil:
		if cached.ConversationID != "" && cached.CustomerName == identity.Name && cached.CustomerEmail == identity.Email {
			return cached.ConversationID, nil
		}
	case errors.Is(err, storage.ErrNotFound):
	default:
		r.logger.WithError(err).Warn("Ignoring unreadable chat cache")
	}

	resp, err := r.api.StartOrResumeChat(ctx, models.StartChatRequest{
		CustomerName:  identity.Name,
		CustomerEmail: identity.Email,
	})
	if err != nil {
		return "", fmt.Errorf("failed to start chat: %w", err)
	}
	if !resp.Success || resp.ConversationID == "" {
		msg := resp.Error
		if msg == "" {
			msg = "chat is unavailable right now"
		}
		return "", errors.New(msg)
	}

	if err := storage.SetJSON(ctx, r.store, StorageKey, cachedConversation{
		ConversationID: resp.ConversationID,
		CustomerName:   identity.Name,
		CustomerEmail:  identity.Email,
	}); err != nil {
		return "", fmt.Errorf("failed to cache conversation: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"conversation_id": resp.ConversationID,
		"resumed":         resp.Resumed,
	}).Info("Chat conversation resolved")
	return resp.ConversationID, nil
}

// Clear detaches the cached conversation from this client. The conversation
// itself stays on the server.
func (r *Resolver) Clear(ctx context.Context) error {
	if err := r.store.Delete(ctx, StorageKey); err != nil {
		return fmt.Errorf("failed to clear chat cache: %w", err)
	}
	return nil
}

// FollowSession clears the cache whenever the session ends
func (r *Resolver) FollowSession(src SessionEvents) (cancel func()) {
	return src.Subscribe(func(evt session.Event) {
		switch evt.Type {
		case session.EventLogout, session.EventExpired:
			if err := r.Clear(context.Background()); err != nil {
				r.logger.WithError(err).Warn("Failed to clear chat cache on session end")
			}
		}
	})
}

// Messages fetches the full message list
func (r *Resolver) Messages(ctx context.Context, conversationID string) ([]models.ChatMessage, error) {
	msgs, err := r.api.FetchChatMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return msgs, nil
}

// Send posts a customer message into the conversation
func (r *Resolver) Send(ctx context.Context, conversationID string, identity Identity, text string) (*models.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	msg, err := r.api.SendChatMessage(ctx, conversationID, models.SendChatMessageRequest{
		Sender:     models.SenderCustomer,
		SenderName: strings.TrimSpace(identity.Name),
		Text:       text,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}
	return msg, nil
}

// Watch delivers the full message list once immediately and again after every
// change notification for conversationID, until ctx is done.
func (r *Resolver) Watch(ctx context.Context, conversationID string, fn func([]models.ChatMessage)) error {
	notifications, err := r.subscriber.Subscribe(ctx, events.TopicChatConversationChanged)
	if err != nil {
		return fmt.Errorf("failed to subscribe to chat changes: %w", err)
	}

	r.refetch(ctx, conversationID, fn)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-notifications:
			if !ok {
				return nil
			}
			evt, err := events.DecodeChatChanged(msg)
			msg.Ack()
			if err != nil {
				r.logger.WithError(err).Warn("Ignoring malformed chat notification")
				continue
			}
			if evt.ConversationID != conversationID {
				continue
			}
			r.refetch(ctx, conversationID, fn)
		}
	}
}

func (r *Resolver) refetch(ctx context.Context, conversationID string, fn func([]models.ChatMessage)) {
	msgs, err := r.Messages(ctx, conversationID)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.WithError(err).WithField("conversation_id", conversationID).Warn("Chat refetch failed")
		}
		return
	}
	fn(msgs)
}
