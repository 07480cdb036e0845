package session

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoponpass/daypass-backend/internal/models"
	"github.com/hoponpass/daypass-backend/internal/storage"
)

type fakeVerifier struct {
	resp  *models.VerifyCredentialsResponse
	err   error
	calls []models.VerifyCredentialsRequest
}

func (f *fakeVerifier) VerifyCredentials(_ context.Context, req models.VerifyCredentialsRequest) (*models.VerifyCredentialsResponse, error) {
	f.calls = append(f.calls, req)
	return f.resp, f.err
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func lisbon(t *testing.T) *time.Location {
	loc, err := time.LoadLocation("Europe/Lisbon")
	require.NoError(t, err)
	return loc
}

func TestExpiresAt(t *testing.T) {
	loc := lisbon(t)

	got, err := ExpiresAt("2025-06-01", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 2, 23, 59, 59, 999000000, loc), got)

	t.Run("Month and year rollover", func(t *testing.T) {
		got, err := ExpiresAt("2025-12-31", loc)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 1, 1, 23, 59, 59, 999000000, loc), got)
	})

	t.Run("Invalid date", func(t *testing.T) {
		_, err := ExpiresAt("01/06/2025", loc)
		assert.Error(t, err)
	})
}

func TestGetSessionLazyExpiry(t *testing.T) {
	ctx := context.Background()
	loc := lisbon(t)
	store := storage.NewMemoryStore()
	m := NewManager(store, &fakeVerifier{}, loc, testLogger())

	expiresAt, err := ExpiresAt("2025-06-01", loc)
	require.NoError(t, err)
	require.NoError(t, m.SaveSession(ctx, &Session{BookingID: "AB-1234", VisitDate: "2025-06-01", ExpiresAt: expiresAt}))

	var events []Event
	cancel := m.Subscribe(func(e Event) { events = append(events, e) })
	defer cancel()

	t.Run("At expiry the session is still active", func(t *testing.T) {
		m.now = func() time.Time { return expiresAt }
		s, err := m.GetSession(ctx)
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.Equal(t, "AB-1234", s.BookingID)
	})

	t.Run("1ms after expiry the session is purged", func(t *testing.T) {
		m.now = func() time.Time { return expiresAt.Add(time.Millisecond) }
		s, err := m.GetSession(ctx)
		require.NoError(t, err)
		assert.Nil(t, s)
		assert.Equal(t, 0, store.Len())

		require.Len(t, events, 1)
		assert.Equal(t, EventExpired, events[0].Type)
	})
}

func TestSaveSessionOverwrites(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	m := NewManager(store, &fakeVerifier{}, time.UTC, testLogger())
	m.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

	far := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, m.SaveSession(ctx, &Session{BookingID: "AA-0001", ExpiresAt: far}))
	require.NoError(t, m.SaveSession(ctx, &Session{BookingID: "BB-0002", ExpiresAt: far}))

	s, err := m.GetSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "BB-0002", s.BookingID)
	assert.Equal(t, 1, store.Len())
}

func TestVerifyAndLogin(t *testing.T) {
	ctx := context.Background()
	loc := lisbon(t)

	t.Run("Success normalizes input and stores session", func(t *testing.T) {
		store := storage.NewMemoryStore()
		verifier := &fakeVerifier{resp: &models.VerifyCredentialsResponse{
			Success: true,
			Booking: &models.SessionBooking{
				BookingID:     "AB-1234",
				CustomerName:  "Ana Silva",
				CustomerEmail: "ana@example.com",
				CustomerPhone: "+351 912345678",
				Passes:        2,
				VisitDate:     "2025-06-01",
			},
			SessionToken: "signed-token",
		}}
		m := NewManager(store, verifier, loc, testLogger())
		m.now = func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, loc) }

		var got []EventType
		m.Subscribe(func(e Event) { got = append(got, e.Type) })

		s, err := m.VerifyAndLogin(ctx, "  ab-1234 ", "  Silva ")
		require.NoError(t, err)

		require.Len(t, verifier.calls, 1)
		assert.Equal(t, "AB-1234", verifier.calls[0].BookingID)
		assert.Equal(t, "Silva", verifier.calls[0].LastName)

		assert.Equal(t, 2, s.Passes)
		assert.Equal(t, "signed-token", s.Token)
		assert.Equal(t, time.Date(2025, 6, 2, 23, 59, 59, 999000000, loc), s.ExpiresAt)
		assert.Equal(t, []EventType{EventLogin}, got)

		stored, err := m.GetSession(ctx)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, s.BookingID, stored.BookingID)
		assert.True(t, s.ExpiresAt.Equal(stored.ExpiresAt))
	})

	t.Run("Empty input is rejected before any call", func(t *testing.T) {
		verifier := &fakeVerifier{}
		m := NewManager(storage.NewMemoryStore(), verifier, loc, testLogger())

		_, err := m.VerifyAndLogin(ctx, "   ", "Silva")
		assert.ErrorIs(t, err, ErrMissingCredentials)
		_, err = m.VerifyAndLogin(ctx, "AB-1234", "  ")
		assert.ErrorIs(t, err, ErrMissingCredentials)
		assert.Empty(t, verifier.calls)
	})

	t.Run("Transport failure is a network error", func(t *testing.T) {
		store := storage.NewMemoryStore()
		m := NewManager(store, &fakeVerifier{err: errors.New("dial tcp: connection refused")}, loc, testLogger())

		_, err := m.VerifyAndLogin(ctx, "AB-1234", "Silva")
		assert.ErrorIs(t, err, ErrNetwork)
		assert.Equal(t, "network error", err.Error())
		assert.Equal(t, 0, store.Len())
	})

	t.Run("Rejection carries the server message", func(t *testing.T) {
		store := storage.NewMemoryStore()
		m := NewManager(store, &fakeVerifier{resp: &models.VerifyCredentialsResponse{
			Success: false,
			Error:   "Booking not found",
		}}, loc, testLogger())

		_, err := m.VerifyAndLogin(ctx, "AB-1234", "Silva")
		var verr *VerificationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "Booking not found", verr.Error())
		assert.Equal(t, 0, store.Len())
	})

	t.Run("Rejection without message uses the generic one", func(t *testing.T) {
		m := NewManager(storage.NewMemoryStore(), &fakeVerifier{resp: &models.VerifyCredentialsResponse{}}, loc, testLogger())

		_, err := m.VerifyAndLogin(ctx, "AB-1234", "Silva")
		assert.EqualError(t, err, DefaultVerificationMessage)
	})
}

func TestClearSessionAndIdentity(t *testing.T) {
	ctx := context.Background()
	m := NewManager(storage.NewMemoryStore(), &fakeVerifier{}, time.UTC, testLogger())
	m.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }

	id, err := m.Identity(ctx)
	require.NoError(t, err)
	assert.Equal(t, Anonymous{}, id)

	require.NoError(t, m.SaveSession(ctx, &Session{
		BookingID: "AB-1234",
		ExpiresAt: time.Date(2025, 6, 2, 23, 59, 59, 0, time.UTC),
	}))

	id, err = m.Identity(ctx)
	require.NoError(t, err)
	switch v := id.(type) {
	case SessionIdentity:
		assert.Equal(t, "AB-1234", v.Session.BookingID)
	default:
		t.Fatalf("expected session identity, got %T", id)
	}

	var got []EventType
	cancel := m.Subscribe(func(e Event) { got = append(got, e.Type) })
	require.NoError(t, m.ClearSession(ctx))
	cancel()
	require.NoError(t, m.ClearSession(ctx))

	assert.Equal(t, []EventType{EventLogout}, got)
	s, err := m.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)
}
