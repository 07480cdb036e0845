package session

import (
	"errors"
	"fmt"
	"time"
)

// StorageKey is the fixed slot the active session is stored under
const StorageKey = "daypass_user_session"

// DefaultTimeZone is the service time zone visit dates are interpreted in
const DefaultTimeZone = "Europe/Lisbon"

// Session is the client-held identity derived from a verified booking
type Session struct {
	BookingID     string    `json:"booking_id"`
	LastName      string    `json:"last_name"`
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email"`
	CustomerPhone string    `json:"customer_phone"`
	Passes        int       `json:"passes"`
	VisitDate     string    `json:"visit_date"` // YYYY-MM-DD
	ExpiresAt     time.Time `json:"expires_at"`
	Token         string    `json:"token,omitempty"`
}

// ExpiredAt reports whether the session is past its expiry at now
func (s *Session) ExpiredAt(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// ExpiresAt returns the end of the day after visitDate (23:59:59.999) in loc.
// visitDate is a date-only value in YYYY-MM-DD form.
func ExpiresAt(visitDate string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	day, err := time.ParseInLocation("2006-01-02", visitDate, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid visit date %q: %w", visitDate, err)
	}
	next := day.AddDate(0, 0, 1)
	return time.Date(next.Year(), next.Month(), next.Day(), 23, 59, 59, int(999*time.Millisecond), loc), nil
}

// ============================================================================
// ERRORS
// ============================================================================

// ErrNetwork is returned when the verification collaborator could not be reached.
// Callers may retry.
var ErrNetwork = errors.New("network error")

// ErrMissingCredentials is returned when the booking ID or last name is blank
var ErrMissingCredentials = errors.New("booking ID and last name are required")

// DefaultVerificationMessage is used when the collaborator rejects without a message
const DefaultVerificationMessage = "invalid booking ID or last name"

// VerificationError is returned when the collaborator rejected the credentials
type VerificationError struct {
	Message string
}

func (e *VerificationError) Error() string {
	if e.Message == "" {
		return DefaultVerificationMessage
	}
	return e.Message
}

// ============================================================================
// IDENTITY
// ============================================================================

// Identity is either a SessionIdentity or Anonymous
type Identity interface {
	isIdentity()
}

// SessionIdentity carries the active session
type SessionIdentity struct {
	Session Session
}

// Anonymous means no session is active
type Anonymous struct{}

func (SessionIdentity) isIdentity() {}
func (Anonymous) isIdentity()       {}

// ============================================================================
// EVENTS
// ============================================================================

// EventType names a session change
type EventType string

const (
	EventLogin   EventType = "login"
	EventLogout  EventType = "logout"
	EventExpired EventType = "expired"
)

// Event is delivered to subscribers on every session change.
// Session is set for EventLogin and EventExpired.
type Event struct {
	Type    EventType
	Session *Session
}
