package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/lithammer/shortuuid/v3"
	"github.com/sirupsen/logrus"

	"github.com/hoponpass/daypass-backend/internal/metrics"
	"github.com/hoponpass/daypass-backend/internal/models"
)

// ChatNotifier publishes conversation change notifications
type ChatNotifier struct {
	publisher message.Publisher
	now       func() time.Time
}

// NewChatNotifier creates a notifier on publisher
func NewChatNotifier(publisher message.Publisher) *ChatNotifier {
	return &ChatNotifier{publisher: publisher, now: time.Now}
}

// ConversationChanged tells subscribers to refetch conversationID
func (n *ChatNotifier) ConversationChanged(ctx context.Context, conversationID string) error {
	payload, err := json.Marshal(models.ChatChangedEvent{
		ConversationID: conversationID,
		OccurredAt:     n.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal chat event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	middleware.SetCorrelationID(shortuuid.New(), msg)

	if err := n.publisher.Publish(TopicChatConversationChanged, msg); err != nil {
		return fmt.Errorf("failed to publish chat event: %w", err)
	}
	return nil
}

// DecodeChatChanged reads a ChatChangedEvent from msg
func DecodeChatChanged(msg *message.Message) (models.ChatChangedEvent, error) {
	var evt models.ChatChangedEvent
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		return evt, fmt.Errorf("failed to decode chat event: %w", err)
	}
	return evt, nil
}

// NewRouter builds the server-side message router. It audits chat notifications
// into the logs and metrics.
func NewRouter(sub message.Subscriber, m *metrics.Metrics, logger *logrus.Logger) (*message.Router, error) {
	wmLogger := NewWatermillLogger(logger)
	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create router: %w", err)
	}

	router.AddMiddleware(middleware.Recoverer)
	router.AddMiddleware(middleware.Retry{
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      2,
		Logger:          wmLogger,
	}.Middleware)

	router.AddNoPublisherHandler(
		"chat_change_audit",
		TopicChatConversationChanged,
		sub,
		func(msg *message.Message) error {
			evt, err := DecodeChatChanged(msg)
			if err != nil {
				// malformed payloads are dropped
				logger.WithError(err).WithField("message_id", msg.UUID).Warn("Dropping malformed chat event")
				return nil
			}
			m.ChatNotifications.Inc()
			logger.WithFields(logrus.Fields{
				"conversation_id": evt.ConversationID,
				"correlation_id":  middleware.MessageCorrelationID(msg),
			}).Debug("Chat conversation changed")
			return nil
		},
	)

	return router, nil
}
