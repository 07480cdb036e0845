package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hoponpass/daypass-backend/internal/models"
)

var (
	// ErrDuplicateBookingID is returned when the generated booking ID is taken
	ErrDuplicateBookingID = errors.New("booking id already exists")

	// ErrDuplicateDraftToken is returned when a booking already exists for the draft
	ErrDuplicateDraftToken = errors.New("booking already exists for draft token")
)

const (
	bookingsPKey            = "bookings_pkey"
	bookingsDraftTokenIndex = "bookings_draft_token_key"
)

const bookingColumns = `
	id, draft_token, contact_name, contact_email, contact_phone, last_name,
	to_char(selected_date, 'YYYY-MM-DD') AS selected_date, time_slot, guided_tour,
	passengers, qr_codes, pickup_location, selected_attractions,
	total_price, currency, payment_intent_id, status, payment_status, created_at`

// BookingRepository handles database operations for bookings table
type BookingRepository struct {
	db DB
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// Create inserts a complete booking (passengers and ticket codes in one row)
func (r *BookingRepository) Create(booking *models.Booking) error {
	query := `
		INSERT INTO bookings (
			id, draft_token, contact_name, contact_email, contact_phone, last_name,
			selected_date, time_slot, guided_tour, passengers, qr_codes,
			pickup_location, selected_attractions, total_price, currency,
			payment_intent_id, status, payment_status
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
		)
		RETURNING created_at
	`

	err := r.db.QueryRow(
		query,
		booking.ID, booking.DraftToken, booking.ContactInfo.Name, booking.ContactInfo.Email,
		booking.ContactInfo.Phone, booking.LastName, booking.SelectedDate, booking.TimeSlot,
		booking.GuidedTour, booking.Passengers, booking.QRCodes, booking.PickupLocation,
		booking.SelectedAttractions, booking.TotalPrice, booking.Currency,
		booking.PaymentIntentID, booking.Status, booking.PaymentStatus,
	).Scan(&booking.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			switch pqErr.Constraint {
			case bookingsDraftTokenIndex:
				return ErrDuplicateDraftToken
			case bookingsPKey:
				return ErrDuplicateBookingID
			}
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

// GetByID retrieves a booking by its shareable ID. Returns nil when not found.
func (r *BookingRepository) GetByID(id string) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.Get(&booking, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get booking by ID: %w", err)
	}
	return &booking, nil
}

// GetByDraftToken retrieves the booking created for a funnel draft
func (r *BookingRepository) GetByDraftToken(token string) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.Get(&booking, `SELECT `+bookingColumns+` FROM bookings WHERE draft_token = $1`, token)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get booking by draft token: %w", err)
	}
	return &booking, nil
}

// GetByCredentials retrieves a booking by ID and last name (case-insensitive)
func (r *BookingRepository) GetByCredentials(id, lastName string) (*models.Booking, error) {
	var booking models.Booking
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE id = $1 AND lower(last_name) = lower($2) AND status <> 'cancelled'`
	err := r.db.Get(&booking, query, id, lastName)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get booking by credentials: %w", err)
	}
	return &booking, nil
}
