package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hoponpass/daypass-backend/internal/models"
	"github.com/hoponpass/daypass-backend/internal/storage"
)

// Verifier checks a booking ID / last name pair against the booking collaborator.
// A non-nil error means the collaborator could not be reached; a rejection is
// reported through the response's Success flag.
type Verifier interface {
	VerifyCredentials(ctx context.Context, req models.VerifyCredentialsRequest) (*models.VerifyCredentialsResponse, error)
}

// Manager owns the single session slot of a client context
type Manager struct {
	store    storage.Store
	verifier Verifier
	location *time.Location
	logger   *logrus.Logger
	now      func() time.Time

	mu        sync.Mutex
	nextID    int
	observers map[int]func(Event)
}

// NewManager creates a session manager. A nil location falls back to DefaultTimeZone.
func NewManager(store storage.Store, verifier Verifier, location *time.Location, logger *logrus.Logger) *Manager {
	if location == nil {
		loc, err := time.LoadLocation(DefaultTimeZone)
		if err != nil {
			loc = time.UTC
		}
		location = loc
	}
	return &Manager{
		store:     store,
		verifier:  verifier,
		location:  location,
		logger:    logger,
		now:       time.Now,
		observers: make(map[int]func(Event)),
	}
}

// Location returns the service time zone used for expiry
func (m *Manager) Location() *time.Location {
	return m.location
}

// Subscribe registers fn for session changes. The returned func removes it.
func (m *Manager) Subscribe(fn func(Event)) (cancel func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.observers[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.observers, id)
			m.mu.Unlock()
		})
	}
}

func (m *Manager) publish(evt Event) {
	m.mu.Lock()
	fns := make([]func(Event), 0, len(m.observers))
	for _, fn := range m.observers {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(evt)
	}
}

// SaveSession stores s as the only active session, replacing any previous one
func (m *Manager) SaveSession(ctx context.Context, s *Session) error {
	if s == nil {
		return errors.New("session is nil")
	}
	if err := storage.SetJSON(ctx, m.store, StorageKey, s); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	m.logger.WithFields(logrus.Fields{
		"booking_id": s.BookingID,
		"expires_at": s.ExpiresAt,
	}).Info("Session saved")

	saved := *s
	m.publish(Event{Type: EventLogin, Session: &saved})
	return nil
}

// GetSession returns the active session, or nil when there is none.
// A session read after its expiry is purged and reported as absent.
func (m *Manager) GetSession(ctx context.Context) (*Session, error) {
	var s Session
	err := storage.GetJSON(ctx, m.store, StorageKey, &s)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		m.logger.WithError(err).Warn("Discarding unreadable session record")
		if delErr := m.store.Delete(ctx, StorageKey); delErr != nil {
			return nil, fmt.Errorf("failed to purge session: %w", delErr)
		}
		return nil, nil
	}

	if s.ExpiredAt(m.now()) {
		if err := m.store.Delete(ctx, StorageKey); err != nil {
			return nil, fmt.Errorf("failed to purge expired session: %w", err)
		}
		m.logger.WithField("booking_id", s.BookingID).Info("Session expired")
		m.publish(Event{Type: EventExpired, Session: &s})
		return nil, nil
	}

	return &s, nil
}

// ClearSession removes the stored session (logout)
func (m *Manager) ClearSession(ctx context.Context) error {
	if err := m.store.Delete(ctx, StorageKey); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	m.publish(Event{Type: EventLogout})
	return nil
}

// Identity returns the current identity as a tagged variant
func (m *Manager) Identity(ctx context.Context) (Identity, error) {
	s, err := m.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return Anonymous{}, nil
	}
	return SessionIdentity{Session: *s}, nil
}

// VerifyAndLogin checks the credentials with the collaborator and, on success,
// stores a new session. Nothing is stored on failure.
func (m *Manager) VerifyAndLogin(ctx context.Context, bookingID, lastName string) (*Session, error) {
	bookingID = models.NormalizeBookingCode(bookingID)
	lastName = strings.TrimSpace(lastName)
	if bookingID == "" || lastName == "" {
		return nil, ErrMissingCredentials
	}

	resp, err := m.verifier.VerifyCredentials(ctx, models.VerifyCredentialsRequest{
		BookingID: bookingID,
		LastName:  lastName,
	})
	if err != nil {
		m.logger.WithError(err).WithField("booking_id", bookingID).Warn("Credential verification unreachable")
		return nil, ErrNetwork
	}
	if resp == nil || !resp.Success || resp.Booking == nil {
		msg := ""
		if resp != nil {
			msg = resp.Error
		}
		m.logger.WithField("booking_id", bookingID).Info("Credential verification rejected")
		return nil, &VerificationError{Message: msg}
	}

	expiresAt, err := ExpiresAt(resp.Booking.VisitDate, m.location)
	if err != nil {
		return nil, fmt.Errorf("failed to compute session expiry: %w", err)
	}

	s := &Session{
		BookingID:     resp.Booking.BookingID,
		LastName:      lastName,
		CustomerName:  resp.Booking.CustomerName,
		CustomerEmail: resp.Booking.CustomerEmail,
		CustomerPhone: resp.Booking.CustomerPhone,
		Passes:        resp.Booking.Passes,
		VisitDate:     resp.Booking.VisitDate,
		ExpiresAt:     expiresAt,
		Token:         resp.SessionToken,
	}
	if s.BookingID == "" {
		s.BookingID = bookingID
	}

	if err := m.SaveSession(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}
