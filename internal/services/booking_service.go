package services

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v3"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/hoponpass/daypass-backend/internal/config"
	"github.com/hoponpass/daypass-backend/internal/database"
	"github.com/hoponpass/daypass-backend/internal/metrics"
	"github.com/hoponpass/daypass-backend/internal/models"
	"github.com/hoponpass/daypass-backend/internal/pricing"
	"github.com/hoponpass/daypass-backend/internal/session"
	"github.com/hoponpass/daypass-backend/pkg/jwt"
	"github.com/hoponpass/daypass-backend/pkg/validator"
)

// maxBookingIDAttempts bounds regeneration of colliding booking IDs
const maxBookingIDAttempts = 5

var (
	// ErrInvalidCredentials is returned when no booking matches an ID / last name pair
	ErrInvalidCredentials = errors.New(session.DefaultVerificationMessage)

	// ErrBookingNotFound is returned when a booking code is unknown
	ErrBookingNotFound = errors.New("booking not found")

	// ErrBookingIDExhausted is returned when every generated ID collided
	ErrBookingIDExhausted = errors.New("could not allocate a unique booking id")
)

// BookingValidationError is returned for drafts the server refuses to persist
type BookingValidationError struct {
	Message string
}

func (e *BookingValidationError) Error() string {
	return e.Message
}

func invalidDraft(format string, args ...interface{}) error {
	return &BookingValidationError{Message: fmt.Sprintf(format, args...)}
}

// BookingStore is the persistence the booking service needs
type BookingStore interface {
	Create(booking *models.Booking) error
	GetByID(id string) (*models.Booking, error)
	GetByDraftToken(token string) (*models.Booking, error)
	GetByCredentials(id, lastName string) (*models.Booking, error)
}

// BookingService creates day-pass bookings and verifies booking credentials
type BookingService struct {
	store    BookingStore
	tokens   *jwt.Service
	metrics  *metrics.Metrics
	cfg      *config.BookingConfig
	catalog  []models.Attraction
	location *time.Location
	logger   *logrus.Logger

	newID     func() string
	newTicket func() string
}

// NewBookingService creates a new BookingService
func NewBookingService(
	store BookingStore,
	tokens *jwt.Service,
	m *metrics.Metrics,
	cfg *config.BookingConfig,
	logger *logrus.Logger,
) *BookingService {
	return &BookingService{
		store:     store,
		tokens:    tokens,
		metrics:   m,
		cfg:       cfg,
		catalog:   models.DefaultAttractions,
		location:  cfg.Location(),
		logger:    logger,
		newID:     GenerateBookingID,
		newTicket: shortuuid.New,
	}
}

// GenerateBookingID returns a random code of the form AB-1234
func GenerateBookingID() string {
	const letters = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	return fmt.Sprintf("%c%c-%04d",
		letters[rand.IntN(len(letters))],
		letters[rand.IntN(len(letters))],
		rand.IntN(10000),
	)
}

// ============================================================================
// CREATE
// ============================================================================

// CreateBooking persists a paid draft. A draft token that already has a booking
// returns that booking with replayed set.
func (s *BookingService) CreateBooking(req *models.CreateBookingRequest) (booking *models.Booking, replayed bool, err error) {
	existing, err := s.store.GetByDraftToken(req.DraftToken)
	if err != nil {
		return nil, false, fmt.Errorf("failed to check draft token: %w", err)
	}
	if existing != nil {
		s.metrics.BookingReplays.Inc()
		s.logger.WithFields(logrus.Fields{
			"booking_id":  existing.ID,
			"draft_token": req.DraftToken,
		}).Info("Booking replayed for draft token")
		return existing, true, nil
	}

	booking, err = s.buildBooking(req)
	if err != nil {
		return nil, false, err
	}

	for attempt := 1; attempt <= maxBookingIDAttempts; attempt++ {
		booking.ID = s.newID()
		err = s.store.Create(booking)
		switch {
		case err == nil:
			s.metrics.BookingsCreated.Inc()
			s.logger.WithFields(logrus.Fields{
				"booking_id":        booking.ID,
				"passes":            booking.Passes(),
				"total_price":       booking.TotalPrice,
				"payment_intent_id": booking.PaymentIntentID,
			}).Info("Booking created")
			return booking, false, nil
		case errors.Is(err, database.ErrDuplicateBookingID):
			s.metrics.BookingIDRetries.Inc()
			continue
		case errors.Is(err, database.ErrDuplicateDraftToken):
			// a concurrent retry of the same draft won the insert
			existing, getErr := s.store.GetByDraftToken(req.DraftToken)
			if getErr != nil || existing == nil {
				return nil, false, fmt.Errorf("failed to load concurrently created booking: %w", getErr)
			}
			s.metrics.BookingReplays.Inc()
			return existing, true, nil
		default:
			return nil, false, err
		}
	}
	return nil, false, ErrBookingIDExhausted
}

// buildBooking validates the draft and prices it against the server catalog
func (s *BookingService) buildBooking(req *models.CreateBookingRequest) (*models.Booking, error) {
	contact := models.ContactInfo{
		Name:  strings.TrimSpace(req.ContactInfo.Name),
		Email: validator.NormalizeEmail(req.ContactInfo.Email),
		Phone: strings.TrimSpace(req.ContactInfo.Phone),
	}
	if contact.Name == "" {
		return nil, invalidDraft("contact name is required")
	}
	if err := validator.ValidateEmail(contact.Email); err != nil {
		return nil, invalidDraft("a valid email is required")
	}

	if _, err := time.ParseInLocation("2006-01-02", req.SelectedDate, s.location); err != nil {
		return nil, invalidDraft("selected date must be YYYY-MM-DD")
	}
	if !lo.Contains(s.cfg.TimeSlots, req.TimeSlot) {
		return nil, invalidDraft("time slot %s is not offered", req.TimeSlot)
	}
	if req.GuidedTour && !lo.Contains(s.cfg.GuidedSlots, req.TimeSlot) {
		return nil, invalidDraft("guided commentary is not available at %s", req.TimeSlot)
	}

	if len(req.Passengers) == 0 {
		return nil, invalidDraft("at least one passenger is required")
	}
	passengers := make(models.PassengerList, len(req.Passengers))
	for i, p := range req.Passengers {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return nil, invalidDraft("passenger %d needs a name", i+1)
		}
		if !p.Type.IsValid() {
			return nil, invalidDraft("passenger %d has unknown type %q", i+1, p.Type)
		}
		passengers[i] = models.Passenger{Name: name, Type: p.Type}
	}

	addOns := make([]pricing.AddOn, 0, len(req.SelectedAttractions))
	selections := make(models.AttractionList, 0, len(req.SelectedAttractions))
	for _, sel := range req.SelectedAttractions {
		attraction, ok := lo.Find(s.catalog, func(a models.Attraction) bool { return a.ID == sel.ID })
		if !ok {
			return nil, invalidDraft("unknown attraction %q", sel.ID)
		}
		if sel.Quantity < 1 {
			return nil, invalidDraft("attraction %q needs a quantity of at least 1", sel.ID)
		}
		addOns = append(addOns, pricing.AddOn{ID: attraction.ID, Name: attraction.Name, UnitPrice: attraction.UnitPrice, Quantity: sel.Quantity})
		selections = append(selections, models.AttractionSelection{ID: attraction.ID, Name: attraction.Name, UnitPrice: attraction.UnitPrice, Quantity: sel.Quantity})
	}

	quote, err := pricing.ComputeTotal(pricing.Input{
		PassCount:           len(passengers),
		BasePrice:           s.cfg.BasePrice,
		GuidedTour:          req.GuidedTour,
		GuidedTourSurcharge: s.cfg.GuidedTourSurcharge,
		AddOns:              addOns,
	})
	if err != nil {
		return nil, invalidDraft("%v", err)
	}
	if quote.Total != req.TotalPrice {
		return nil, invalidDraft("total %s does not match the current price %s",
			pricing.FormatAmount(req.TotalPrice), pricing.FormatAmount(quote.Total))
	}

	currency := s.cfg.Currency
	if req.Currency != "" && !strings.EqualFold(req.Currency, currency) {
		return nil, invalidDraft("currency %s is not accepted", req.Currency)
	}

	tickets := make(models.StringArray, len(passengers))
	for i := range tickets {
		tickets[i] = s.newTicket()
	}

	return &models.Booking{
		DraftToken:          req.DraftToken,
		ContactInfo:         contact,
		LastName:            contact.Surname(),
		SelectedDate:        req.SelectedDate,
		TimeSlot:            req.TimeSlot,
		GuidedTour:          req.GuidedTour,
		Passengers:          passengers,
		QRCodes:             tickets,
		PickupLocation:      strings.TrimSpace(req.PickupLocation),
		SelectedAttractions: selections,
		TotalPrice:          quote.Total,
		Currency:            currency,
		PaymentIntentID:     req.PaymentIntentID,
		Status:              models.BookingStatusConfirmed,
		PaymentStatus:       models.PaymentStatusPaid,
	}, nil
}

// ============================================================================
// VERIFY
// ============================================================================

// VerifyCredentials checks a booking ID / last name pair and issues a session token
func (s *BookingService) VerifyCredentials(req *models.VerifyCredentialsRequest) (*models.VerifyCredentialsResponse, error) {
	id := models.NormalizeBookingCode(req.BookingID)
	lastName := strings.TrimSpace(req.LastName)
	if !models.IsValidBookingID(id) || lastName == "" {
		return nil, ErrInvalidCredentials
	}

	booking, err := s.store.GetByCredentials(id, lastName)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		s.logger.WithField("booking_id", id).Info("Credential verification failed")
		return nil, ErrInvalidCredentials
	}

	resp := &models.VerifyCredentialsResponse{Success: true, Booking: booking.ToSessionBooking()}

	sessionEnd, err := session.ExpiresAt(booking.SelectedDate, s.location)
	if err != nil {
		return nil, fmt.Errorf("failed to compute session end: %w", err)
	}
	token, err := s.tokens.GenerateSessionToken(booking.ID, booking.SelectedDate, sessionEnd)
	if err != nil {
		// the client discards a session that has already ended
		s.logger.WithError(err).WithField("booking_id", booking.ID).Debug("No session token issued")
	} else {
		resp.SessionToken = token
	}

	return resp, nil
}

// VerifyCode checks a bare booking code
func (s *BookingService) VerifyCode(code string) (*models.SessionBooking, error) {
	id := models.NormalizeBookingCode(code)
	if !models.IsValidBookingID(id) {
		return nil, ErrBookingNotFound
	}
	booking, err := s.store.GetByID(id)
	if err != nil {
		return nil, err
	}
	if booking == nil || booking.Status == models.BookingStatusCancelled {
		return nil, ErrBookingNotFound
	}
	return booking.ToSessionBooking(), nil
}

// LookupBooking returns the full booking for an ID / last name pair
func (s *BookingService) LookupBooking(id, lastName string) (*models.Booking, error) {
	id = models.NormalizeBookingCode(id)
	lastName = strings.TrimSpace(lastName)
	if id == "" || lastName == "" {
		return nil, ErrBookingNotFound
	}
	booking, err := s.store.GetByCredentials(id, lastName)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, ErrBookingNotFound
	}
	return booking, nil
}
