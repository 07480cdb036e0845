package events

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
)

// TopicChatConversationChanged carries a ChatChangedEvent for every chat write
const TopicChatConversationChanged = "chat.conversation.changed"

// PubSub is the publisher/subscriber pair used for change notifications
type PubSub struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Close closes both sides
func (p *PubSub) Close() error {
	pubErr := p.Publisher.Close()
	if p.Subscriber != nil && any(p.Subscriber) != any(p.Publisher) {
		if err := p.Subscriber.Close(); err != nil {
			return err
		}
	}
	return pubErr
}

// NewRedisPubSub uses Redis Streams. An empty consumerGroup fans every message
// out to every subscriber.
func NewRedisPubSub(rdb redis.UniversalClient, consumerGroup string, logger watermill.LoggerAdapter) (*PubSub, error) {
	pub, err := redisstream.NewPublisher(redisstream.PublisherConfig{
		Client: rdb,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis publisher: %w", err)
	}

	sub, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
		Client:        rdb,
		ConsumerGroup: consumerGroup,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis subscriber: %w", err)
	}

	return &PubSub{Publisher: pub, Subscriber: sub}, nil
}

// NewInMemoryPubSub uses a process-local Go channel pub/sub
func NewInMemoryPubSub(logger watermill.LoggerAdapter) *PubSub {
	ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logger)
	return &PubSub{Publisher: ch, Subscriber: ch}
}
