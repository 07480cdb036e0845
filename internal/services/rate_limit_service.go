package services

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hoponpass/daypass-backend/internal/config"
	"github.com/hoponpass/daypass-backend/internal/database"
)

const (
	identifierBooking = "booking"
	identifierIP      = "ip"
)

// RateLimitService throttles failed booking verifications so booking IDs
// cannot be brute-forced against last names
type RateLimitService struct {
	db  database.DB
	cfg config.RateLimitConfig
	now func() time.Time
}

// NewRateLimitService creates a new rate limit service
func NewRateLimitService(db database.DB, cfg config.RateLimitConfig) *RateLimitService {
	return &RateLimitService{db: db, cfg: cfg, now: time.Now}
}

// RateLimitError represents a rate limit exceeded error
type RateLimitError struct {
	Message    string
	RetryAfter time.Time
	Type       string // "booking" or "ip"
}

func (e *RateLimitError) Error() string {
	return e.Message
}

// CheckVerifyRateLimit fails with a *RateLimitError when the booking ID or the
// IP has too many recent failed verifications
func (s *RateLimitService) CheckVerifyRateLimit(bookingID, ip string) error {
	bookingID = normalizeBookingID(bookingID)

	if bookingID != "" {
		count, lastAttempt, err := s.getAttemptCount(bookingID, identifierBooking, s.cfg.BookingWindow)
		if err != nil {
			return fmt.Errorf("failed to check booking rate limit: %w", err)
		}
		if count >= s.cfg.MaxBookingAttempts {
			retryAfter := lastAttempt.Add(s.cfg.BookingWindow)
			return &RateLimitError{
				Message:    fmt.Sprintf("Too many attempts for this booking. Please try again after %s", retryAfter.Format("15:04")),
				RetryAfter: retryAfter,
				Type:       identifierBooking,
			}
		}
	}

	if ip != "" {
		count, lastAttempt, err := s.getAttemptCount(ip, identifierIP, s.cfg.IPWindow)
		if err != nil {
			return fmt.Errorf("failed to check IP rate limit: %w", err)
		}
		if count >= s.cfg.MaxIPAttempts {
			retryAfter := lastAttempt.Add(s.cfg.IPWindow)
			return &RateLimitError{
				Message:    fmt.Sprintf("Too many attempts from this network. Please try again after %s", retryAfter.Format("15:04")),
				RetryAfter: retryAfter,
				Type:       identifierIP,
			}
		}
	}

	return nil
}

func (s *RateLimitService) getAttemptCount(identifier, identifierType string, window time.Duration) (int, time.Time, error) {
	query := `
		SELECT COUNT(*), COALESCE(MAX(created_at), NOW())
		FROM verification_attempts
		WHERE identifier = $1
		  AND identifier_type = $2
		  AND created_at > $3
	`

	var count int
	var lastAttempt time.Time
	err := s.db.QueryRow(query, identifier, identifierType, s.now().Add(-window)).Scan(&count, &lastAttempt)
	if err != nil && err != sql.ErrNoRows {
		return 0, time.Time{}, err
	}
	return count, lastAttempt, nil
}

// RecordFailedAttempt counts one failed verification against the booking ID and the IP
func (s *RateLimitService) RecordFailedAttempt(bookingID, ip string) error {
	if bookingID = normalizeBookingID(bookingID); bookingID != "" {
		if err := s.recordAttempt(bookingID, identifierBooking); err != nil {
			return fmt.Errorf("failed to record booking attempt: %w", err)
		}
	}
	if ip != "" {
		if err := s.recordAttempt(ip, identifierIP); err != nil {
			return fmt.Errorf("failed to record IP attempt: %w", err)
		}
	}
	return nil
}

func (s *RateLimitService) recordAttempt(identifier, identifierType string) error {
	_, err := s.db.Exec(`
		INSERT INTO verification_attempts (identifier, identifier_type, created_at)
		VALUES ($1, $2, NOW())
	`, identifier, identifierType)
	return err
}

// CleanupExpiredRateLimits removes attempts older than the longest window
func (s *RateLimitService) CleanupExpiredRateLimits() (int64, error) {
	maxWindow := s.cfg.IPWindow
	if s.cfg.BookingWindow > maxWindow {
		maxWindow = s.cfg.BookingWindow
	}

	result, err := s.db.Exec(`DELETE FROM verification_attempts WHERE created_at < $1`, s.now().Add(-maxWindow))
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup rate limits: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

func normalizeBookingID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
