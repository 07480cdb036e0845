package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoponpass/daypass-backend/internal/database"
	"github.com/hoponpass/daypass-backend/internal/metrics"
	"github.com/hoponpass/daypass-backend/internal/models"
)

// fakeChatStore enforces one active conversation per name/email pair
type fakeChatStore struct {
	mu            sync.Mutex
	conversations map[uuid.UUID]*models.Conversation
	messages      map[uuid.UUID][]models.ChatMessage

	// raceWinner is inserted right before a create, as a concurrent request would
	raceWinner *models.Conversation
}

func newFakeChatStore() *fakeChatStore {
	return &fakeChatStore{
		conversations: map[uuid.UUID]*models.Conversation{},
		messages:      map[uuid.UUID][]models.ChatMessage{},
	}
}

func (f *fakeChatStore) FindActiveConversation(name, email string) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conversations {
		if c.CustomerName == name && c.CustomerEmail == email && c.Status == models.ConversationActive {
			return c, nil
		}
	}
	return nil, nil
}

func (f *fakeChatStore) GetConversation(id uuid.UUID) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conversations[id], nil
}

func (f *fakeChatStore) CreateConversation(conv *models.Conversation) error {
	if f.raceWinner != nil {
		f.mu.Lock()
		f.conversations[f.raceWinner.ID] = f.raceWinner
		f.mu.Unlock()
		f.raceWinner = nil
	}
	if existing, _ := f.FindActiveConversation(conv.CustomerName, conv.CustomerEmail); existing != nil {
		return database.ErrActiveConversationExists
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	conv.ID = uuid.New()
	conv.Status = models.ConversationActive
	f.conversations[conv.ID] = conv
	return nil
}

func (f *fakeChatStore) ListMessages(id uuid.UUID) ([]models.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ChatMessage{}, f.messages[id]...), nil
}

func (f *fakeChatStore) CreateMessage(msg *models.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg.ID = uuid.New()
	f.messages[msg.ConversationID] = append(f.messages[msg.ConversationID], *msg)
	return nil
}

type countingNotifier struct {
	ids []string
	err error
}

func (n *countingNotifier) ConversationChanged(_ context.Context, id string) error {
	n.ids = append(n.ids, id)
	return n.err
}

func newTestChatService() (*ChatService, *fakeChatStore, *countingNotifier, *metrics.Metrics) {
	store := newFakeChatStore()
	notifier := &countingNotifier{}
	m := metrics.New()
	return NewChatService(store, notifier, m, quietLogger()), store, notifier, m
}

func TestStartOrResume(t *testing.T) {
	svc, _, _, m := newTestChatService()

	first, resumed, err := svc.StartOrResume(&models.StartChatRequest{CustomerName: "Ana Silva", CustomerEmail: "Ana@Example.com"})
	require.NoError(t, err)
	assert.False(t, resumed)
	assert.Equal(t, "ana@example.com", first.CustomerEmail)

	again, resumed, err := svc.StartOrResume(&models.StartChatRequest{CustomerName: " Ana Silva ", CustomerEmail: "ana@example.com "})
	require.NoError(t, err)
	assert.True(t, resumed)
	assert.Equal(t, first.ID, again.ID)

	other, resumed, err := svc.StartOrResume(&models.StartChatRequest{CustomerName: "Rui Silva", CustomerEmail: "ana@example.com"})
	require.NoError(t, err)
	assert.False(t, resumed)
	assert.NotEqual(t, first.ID, other.ID)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.ChatResolutions.WithLabelValues("true")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.ChatResolutions.WithLabelValues("false")))
}

func TestStartOrResumeConcurrentCreate(t *testing.T) {
	svc, store, _, _ := newTestChatService()
	winner := &models.Conversation{ID: uuid.New(), CustomerName: "Ana Silva", CustomerEmail: "ana@example.com", Status: models.ConversationActive}
	store.raceWinner = winner

	conv, resumed, err := svc.StartOrResume(&models.StartChatRequest{CustomerName: "Ana Silva", CustomerEmail: "ana@example.com"})
	require.NoError(t, err)
	assert.True(t, resumed)
	assert.Equal(t, winner.ID, conv.ID)
}

func TestStartOrResumeValidation(t *testing.T) {
	svc, _, _, _ := newTestChatService()

	_, _, err := svc.StartOrResume(&models.StartChatRequest{CustomerName: " ", CustomerEmail: "ana@example.com"})
	var vErr *ChatValidationError
	assert.True(t, errors.As(err, &vErr))

	_, _, err = svc.StartOrResume(&models.StartChatRequest{CustomerName: "Ana", CustomerEmail: "not-an-email"})
	assert.True(t, errors.As(err, &vErr))
}

func TestSendMessage(t *testing.T) {
	svc, store, notifier, m := newTestChatService()
	conv, _, err := svc.StartOrResume(&models.StartChatRequest{CustomerName: "Ana", CustomerEmail: "ana@example.com"})
	require.NoError(t, err)

	msg, err := svc.SendMessage(context.Background(), conv.ID, &models.SendChatMessageRequest{
		Sender: models.SenderCustomer, SenderName: "Ana", Text: "  Where is the pickup point?  ",
	})
	require.NoError(t, err)
	assert.Equal(t, "Where is the pickup point?", msg.Text)
	assert.Equal(t, []string{conv.ID.String()}, notifier.ids)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ChatMessages.WithLabelValues("customer")))

	_, err = svc.SendMessage(context.Background(), conv.ID, &models.SendChatMessageRequest{
		Sender: models.SenderAgent, SenderName: "Support", Text: "At the station exit.",
	})
	require.NoError(t, err)

	messages, err := svc.Messages(conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, models.SenderCustomer, messages[0].Sender)
	assert.Equal(t, models.SenderAgent, messages[1].Sender)
	assert.Len(t, store.messages[conv.ID], 2)
}

func TestSendMessageNotifierFailureIsNotFatal(t *testing.T) {
	svc, _, notifier, _ := newTestChatService()
	notifier.err = errors.New("bus down")
	conv, _, err := svc.StartOrResume(&models.StartChatRequest{CustomerName: "Ana", CustomerEmail: "ana@example.com"})
	require.NoError(t, err)

	_, err = svc.SendMessage(context.Background(), conv.ID, &models.SendChatMessageRequest{
		Sender: models.SenderCustomer, SenderName: "Ana", Text: "hello",
	})
	assert.NoError(t, err)
}

func TestSendMessageRejections(t *testing.T) {
	svc, store, _, _ := newTestChatService()
	conv, _, err := svc.StartOrResume(&models.StartChatRequest{CustomerName: "Ana", CustomerEmail: "ana@example.com"})
	require.NoError(t, err)

	valid := func() *models.SendChatMessageRequest {
		return &models.SendChatMessageRequest{Sender: models.SenderCustomer, SenderName: "Ana", Text: "hi"}
	}

	t.Run("unknown sender", func(t *testing.T) {
		req := valid()
		req.Sender = "bot"
		_, err := svc.SendMessage(context.Background(), conv.ID, req)
		var vErr *ChatValidationError
		assert.True(t, errors.As(err, &vErr))
	})

	t.Run("blank text", func(t *testing.T) {
		req := valid()
		req.Text = "   "
		_, err := svc.SendMessage(context.Background(), conv.ID, req)
		var vErr *ChatValidationError
		assert.True(t, errors.As(err, &vErr))
	})

	t.Run("too long", func(t *testing.T) {
		req := valid()
		req.Text = strings.Repeat("a", maxChatMessageLength+1)
		_, err := svc.SendMessage(context.Background(), conv.ID, req)
		var vErr *ChatValidationError
		assert.True(t, errors.As(err, &vErr))
	})

	t.Run("unknown conversation", func(t *testing.T) {
		_, err := svc.SendMessage(context.Background(), uuid.New(), valid())
		assert.ErrorIs(t, err, ErrConversationNotFound)

		_, err = svc.Messages(uuid.New())
		assert.ErrorIs(t, err, ErrConversationNotFound)
	})

	t.Run("closed conversation", func(t *testing.T) {
		store.conversations[conv.ID].Status = models.ConversationClosed
		_, err := svc.SendMessage(context.Background(), conv.ID, valid())
		assert.ErrorIs(t, err, ErrConversationClosed)
	})
}
