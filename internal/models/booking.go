package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ============================================================================
// BOOKING STATUSES
// ============================================================================

// BookingStatus represents the lifecycle status of a day-pass booking
type BookingStatus string

const (
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusUsed      BookingStatus = "used"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// PaymentStatus represents the payment state recorded on a booking
type PaymentStatus string

const (
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// PassengerType is the fare category of a pass holder
type PassengerType string

const (
	PassengerAdult  PassengerType = "Adult"
	PassengerChild  PassengerType = "Child"
	PassengerSenior PassengerType = "Senior"
)

// IsValid reports whether t is a known passenger type
func (t PassengerType) IsValid() bool {
	switch t {
	case PassengerAdult, PassengerChild, PassengerSenior:
		return true
	}
	return false
}

// bookingIDPattern matches the shareable booking code, e.g. AA-1234
var bookingIDPattern = regexp.MustCompile(`^[A-Z]{2}-\d{4}$`)

// IsValidBookingID reports whether id has the two-letter + hyphen + 4-digit shape
func IsValidBookingID(id string) bool {
	return bookingIDPattern.MatchString(id)
}

// NormalizeBookingCode trims and upper-cases a typed booking code
func NormalizeBookingCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ============================================================================
// BOOKING MODEL (bookings table)
// ============================================================================

// ContactInfo is the purchaser's contact details
type ContactInfo struct {
	Name  string `db:"contact_name" json:"name"`
	Email string `db:"contact_email" json:"email"`
	Phone string `db:"contact_phone" json:"phone"`
}

// Surname returns the final word of the contact name
func (c ContactInfo) Surname() string {
	parts := strings.Fields(c.Name)
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

// Passenger is one pass holder
type Passenger struct {
	Name string        `json:"name"`
	Type PassengerType `json:"type"`
}

// AttractionSelection is an optional add-on ticket line (prices in cents)
type AttractionSelection struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

// Booking is a confirmed day-pass purchase
type Booking struct {
	ID                  string         `db:"id" json:"booking_id"`
	DraftToken          string         `db:"draft_token" json:"-"`
	ContactInfo         `json:"contact_info"`
	LastName            string         `db:"last_name" json:"-"`
	SelectedDate        string         `db:"selected_date" json:"selected_date"` // YYYY-MM-DD
	TimeSlot            string         `db:"time_slot" json:"time_slot"`         // HH:MM
	GuidedTour          bool           `db:"guided_tour" json:"guided_tour"`
	Passengers          PassengerList  `db:"passengers" json:"passengers"`
	QRCodes             StringArray    `db:"qr_codes" json:"qr_codes"`
	PickupLocation      string         `db:"pickup_location" json:"pickup_location"`
	SelectedAttractions AttractionList `db:"selected_attractions" json:"selected_attractions"`
	TotalPrice          int64          `db:"total_price" json:"total_price"`
	Currency            string         `db:"currency" json:"currency"`
	PaymentIntentID     string         `db:"payment_intent_id" json:"payment_intent_id"`
	Status              BookingStatus  `db:"status" json:"status"`
	PaymentStatus       PaymentStatus  `db:"payment_status" json:"payment_status"`
	CreatedAt           time.Time      `db:"created_at" json:"created_at"`
}

// Passes returns the number of day passes on the booking
func (b *Booking) Passes() int {
	return len(b.Passengers)
}

// TicketMismatchError reports a booking whose ticket codes do not pair 1:1 with passengers
type TicketMismatchError struct {
	BookingID  string
	Passengers int
	QRCodes    int
}

func (e *TicketMismatchError) Error() string {
	return fmt.Sprintf("booking %s has %d passengers but %d ticket codes", e.BookingID, e.Passengers, e.QRCodes)
}

// ValidateTickets checks the passenger/ticket pairing and the booking ID shape
func (b *Booking) ValidateTickets() error {
	if !IsValidBookingID(b.ID) {
		return fmt.Errorf("booking id %q does not match the AA-1234 format", b.ID)
	}
	if len(b.QRCodes) != len(b.Passengers) {
		return &TicketMismatchError{BookingID: b.ID, Passengers: len(b.Passengers), QRCodes: len(b.QRCodes)}
	}
	for i, code := range b.QRCodes {
		if strings.TrimSpace(code) == "" {
			return fmt.Errorf("booking %s has an empty ticket code for passenger %d", b.ID, i+1)
		}
	}
	return nil
}

// SessionBooking is the subset of a booking a verified customer receives
type SessionBooking struct {
	BookingID     string `json:"booking_id"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`
	Passes        int    `json:"passes"`
	VisitDate     string `json:"visit_date"`
}

// ToSessionBooking projects a booking onto the credential-verification payload
func (b *Booking) ToSessionBooking() *SessionBooking {
	return &SessionBooking{
		BookingID:     b.ID,
		CustomerName:  b.ContactInfo.Name,
		CustomerEmail: b.ContactInfo.Email,
		CustomerPhone: b.ContactInfo.Phone,
		Passes:        b.Passes(),
		VisitDate:     b.SelectedDate,
	}
}

// ============================================================================
// REQUEST / RESPONSE DTOs
// ============================================================================

// VerifyCredentialsRequest is the booking ID + last name login pair
type VerifyCredentialsRequest struct {
	BookingID string `json:"booking_id" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
}

// VerifyCredentialsResponse answers a credential check
type VerifyCredentialsResponse struct {
	Success      bool            `json:"success"`
	Booking      *SessionBooking `json:"booking,omitempty"`
	SessionToken string          `json:"session_token,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// VerifyCodeRequest is the lighter code-only check
type VerifyCodeRequest struct {
	Code string `json:"code" binding:"required"`
}

// VerifyCodeResponse answers a code-only check
type VerifyCodeResponse struct {
	Success bool            `json:"success"`
	Booking *SessionBooking `json:"booking,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// CreateBookingRequest is the funnel draft handed over after payment authorization
type CreateBookingRequest struct {
	DraftToken          string                `json:"draft_token" binding:"required"`
	ContactInfo         ContactInfo           `json:"contact_info"`
	SelectedDate        string                `json:"selected_date" binding:"required"`
	TimeSlot            string                `json:"time_slot" binding:"required"`
	GuidedTour          bool                  `json:"guided_tour"`
	Passengers          []Passenger           `json:"passengers" binding:"required,min=1"`
	PickupLocation      string                `json:"pickup_location"`
	SelectedAttractions []AttractionSelection `json:"selected_attractions"`
	TotalPrice          int64                 `json:"total_price"`
	Currency            string                `json:"currency"`
	PaymentIntentID     string                `json:"payment_intent_id" binding:"required"`
}

// CreateBookingResponse answers booking creation
type CreateBookingResponse struct {
	Success bool     `json:"success"`
	Booking *Booking `json:"booking,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// GetBookingResponse answers a booking lookup
type GetBookingResponse struct {
	Success bool     `json:"success"`
	Booking *Booking `json:"booking,omitempty"`
	Error   string   `json:"error,omitempty"`
}
