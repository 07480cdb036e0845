package funnel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v3"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/hoponpass/daypass-backend/internal/config"
	"github.com/hoponpass/daypass-backend/internal/models"
	"github.com/hoponpass/daypass-backend/internal/payment"
	"github.com/hoponpass/daypass-backend/internal/pricing"
	"github.com/hoponpass/daypass-backend/pkg/validator"
)

// Step is a stage of the purchase flow
type Step int

const (
	StepDateTime Step = iota
	StepPassengerDetails
	StepAttractionAddOns
	StepPayment
	StepConfirmed
)

func (s Step) String() string {
	switch s {
	case StepDateTime:
		return "date_time"
	case StepPassengerDetails:
		return "passenger_details"
	case StepAttractionAddOns:
		return "attraction_add_ons"
	case StepPayment:
		return "payment"
	case StepConfirmed:
		return "confirmed"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// TimeSlot is a start-of-service slot; only guided-eligible slots carry commentary
type TimeSlot struct {
	Time           string
	GuidedEligible bool
}

// RetryPolicy bounds the post-payment persistence retries
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy is 3 attempts with exponential backoff from 500ms
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialInterval: 500 * time.Millisecond, MaxInterval: 4 * time.Second}
}

// Config holds prices (cents) and catalogs for the funnel
type Config struct {
	BasePrice           int64
	GuidedTourSurcharge int64
	Currency            string
	TimeSlots           []TimeSlot
	Attractions         []models.Attraction
	PickupLocations     []string
	Retry               RetryPolicy
}

// NewConfig builds a funnel config from the booking settings
func NewConfig(cfg *config.BookingConfig) Config {
	slots := lo.Map(cfg.TimeSlots, func(t string, _ int) TimeSlot {
		return TimeSlot{Time: t, GuidedEligible: lo.Contains(cfg.GuidedSlots, t)}
	})
	return Config{
		BasePrice:           cfg.BasePrice,
		GuidedTourSurcharge: cfg.GuidedTourSurcharge,
		Currency:            cfg.Currency,
		TimeSlots:           slots,
		Attractions:         models.DefaultAttractions,
		PickupLocations:     cfg.PickupLocations,
		Retry: RetryPolicy{
			MaxAttempts:     cfg.PersistAttempts,
			InitialInterval: cfg.PersistInitialInterval,
			MaxInterval:     cfg.PersistMaxInterval,
		},
	}
}

func (c Config) slot(t string) (TimeSlot, bool) {
	return lo.Find(c.TimeSlots, func(s TimeSlot) bool { return s.Time == t })
}

// PassengerDetails is the contact + passenger form
type PassengerDetails struct {
	ContactName    string
	Email          string
	ConfirmEmail   string
	Phone          string
	Passengers     []models.Passenger
	PickupLocation string
}

// Selection picks a quantity of one catalog attraction
type Selection struct {
	AttractionID string
	Quantity     int
}

// Draft is the in-progress booking
type Draft struct {
	Token          string
	Date           string
	TimeSlot       string
	GuidedTour     bool
	Contact        models.ContactInfo
	Passengers     []models.Passenger
	PickupLocation string
	AddOns         []pricing.AddOn
}

func (d Draft) clone() Draft {
	d.Passengers = append([]models.Passenger(nil), d.Passengers...)
	d.AddOns = append([]pricing.AddOn(nil), d.AddOns...)
	return d
}

// BookingCreator persists a paid draft. It must be idempotent on the draft token.
type BookingCreator interface {
	CreateBooking(ctx context.Context, req models.CreateBookingRequest) (*models.CreateBookingResponse, error)
}

// Funnel is the purchase state machine
type Funnel struct {
	cfg      Config
	payments payment.Gateway
	bookings BookingCreator
	logger   *logrus.Logger

	mu      sync.Mutex
	step    Step
	draft   Draft
	epoch   uint64
	busy    bool
	auth    *payment.Authorization
	booking *models.Booking
}

// New creates a funnel positioned at StepDateTime with a fresh draft token
func New(cfg Config, payments payment.Gateway, bookings BookingCreator, logger *logrus.Logger) *Funnel {
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if len(cfg.PickupLocations) == 0 {
		cfg.PickupLocations = models.PickupLocations
	}
	return &Funnel{
		cfg:      cfg,
		payments: payments,
		bookings: bookings,
		logger:   logger,
		draft:    Draft{Token: uuid.NewString()},
	}
}

// Step returns the current step
func (f *Funnel) Step() Step {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.step
}

// Draft returns a copy of the draft
func (f *Funnel) Draft() Draft {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draft.clone()
}

// Booking returns the confirmed booking, or nil before confirmation
func (f *Funnel) Booking() *models.Booking {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.booking
}

// advance moves to next and invalidates in-flight responses. Caller holds mu.
func (f *Funnel) advance(next Step) {
	f.step = next
	f.epoch++
}

// SelectTimeSlot changes the slot while on StepDateTime. A guided flag the new
// slot cannot carry is cleared; the return value reports whether that happened.
func (f *Funnel) SelectTimeSlot(slot string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.step != StepDateTime {
		return false, ErrWrongStep
	}
	ts, ok := f.cfg.slot(slot)
	if !ok {
		return false, invalid("time_slot", "unknown time slot "+slot)
	}

	f.draft.TimeSlot = ts.Time
	if f.draft.GuidedTour && !ts.GuidedEligible {
		f.draft.GuidedTour = false
		return true, nil
	}
	return false, nil
}

// SubmitDateTime completes StepDateTime
func (f *Funnel) SubmitDateTime(date, slot string, guided bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.step != StepDateTime {
		return ErrWrongStep
	}
	date = strings.TrimSpace(date)
	if date == "" {
		return invalid("date", "a date is required")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return invalid("date", "date must be YYYY-MM-DD")
	}
	ts, ok := f.cfg.slot(strings.TrimSpace(slot))
	if !ok {
		return invalid("time_slot", "a valid time slot is required")
	}
	if guided && !ts.GuidedEligible {
		return &ValidationError{Field: "guided_tour", Err: ErrGuidedTourUnavailable}
	}

	f.draft.Date = date
	f.draft.TimeSlot = ts.Time
	f.draft.GuidedTour = guided
	f.advance(StepPassengerDetails)
	return nil
}

// SubmitPassengerDetails completes StepPassengerDetails
func (f *Funnel) SubmitPassengerDetails(d PassengerDetails) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.step != StepPassengerDetails {
		return ErrWrongStep
	}

	name := strings.TrimSpace(d.ContactName)
	if name == "" {
		return invalid("contact_name", "contact name is required")
	}
	email := strings.TrimSpace(d.Email)
	if err := validator.ValidateEmail(email); err != nil {
		return &ValidationError{Field: "email", Err: err}
	}
	if !strings.EqualFold(email, strings.TrimSpace(d.ConfirmEmail)) {
		return &ValidationError{Field: "confirm_email", Err: ErrEmailMismatch}
	}
	if len(d.Passengers) == 0 {
		return invalid("passengers", "at least one passenger is required")
	}

	passengers := make([]models.Passenger, len(d.Passengers))
	for i, p := range d.Passengers {
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			return invalid("passengers", fmt.Sprintf("passenger %d needs a name", i+1))
		}
		if p.Type == "" {
			p.Type = models.PassengerAdult
		}
		if !p.Type.IsValid() {
			return invalid("passengers", fmt.Sprintf("passenger %d has unknown type %q", i+1, p.Type))
		}
		passengers[i] = p
	}
	if !lo.Contains(f.cfg.PickupLocations, d.PickupLocation) {
		return invalid("pickup_location", "choose a pickup location from the list")
	}

	f.draft.Contact = models.ContactInfo{Name: name, Email: email, Phone: strings.TrimSpace(d.Phone)}
	f.draft.Passengers = passengers
	f.draft.PickupLocation = d.PickupLocation
	f.advance(StepAttractionAddOns)
	return nil
}

// SubmitAddOns records add-on selections and moves to payment. A zero quantity drops the line.
func (f *Funnel) SubmitAddOns(selections []Selection) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.step != StepAttractionAddOns {
		return ErrWrongStep
	}

	addOns := make([]pricing.AddOn, 0, len(selections))
	for _, s := range selections {
		a, ok := models.FindAttraction(f.cfg.Attractions, s.AttractionID)
		if !ok {
			return invalid("add_ons", "unknown attraction "+s.AttractionID)
		}
		if s.Quantity < 0 {
			return invalid("add_ons", "quantity cannot be negative")
		}
		if s.Quantity == 0 {
			continue
		}
		addOns = append(addOns, pricing.AddOn{ID: a.ID, Name: a.Name, UnitPrice: a.UnitPrice, Quantity: s.Quantity})
	}

	f.draft.AddOns = addOns
	f.advance(StepPayment)
	return nil
}

// SkipAddOns moves to payment without add-ons
func (f *Funnel) SkipAddOns() error {
	return f.SubmitAddOns(nil)
}

// Back returns to the previous step keeping the draft. It is refused while a
// payment is in flight.
func (f *Funnel) Back() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.busy {
		return ErrBusy
	}
	if f.step == StepDateTime || f.step == StepConfirmed {
		return ErrWrongStep
	}
	f.advance(f.step - 1)
	return nil
}

// Reset abandons the draft and starts over with a new draft token. It is refused
// while a payment is in flight.
func (f *Funnel) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.busy {
		return ErrBusy
	}
	f.draft = Draft{Token: uuid.NewString()}
	f.auth = nil
	f.booking = nil
	f.advance(StepDateTime)
	return nil
}

// Quote prices the current draft
func (f *Funnel) Quote() (pricing.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quoteLocked()
}

func (f *Funnel) quoteLocked() (pricing.Quote, error) {
	return pricing.ComputeTotal(pricing.Input{
		PassCount:           len(f.draft.Passengers),
		BasePrice:           f.cfg.BasePrice,
		GuidedTour:          f.draft.GuidedTour,
		GuidedTourSurcharge: f.cfg.GuidedTourSurcharge,
		AddOns:              f.draft.AddOns,
	})
}

// Pay authorizes the payment and persists the booking. Persistence is retried with
// exponential backoff; once the payment is authorized a failure is reported as a
// *PersistenceError and a later Pay reuses the authorization. Back and Reset are
// refused until Pay returns, and an authorized result is never discarded.
func (f *Funnel) Pay(ctx context.Context, paymentToken string) (*models.Booking, error) {
	f.mu.Lock()
	if f.step != StepPayment {
		f.mu.Unlock()
		return nil, ErrWrongStep
	}
	if f.busy {
		f.mu.Unlock()
		return nil, ErrBusy
	}
	quote, err := f.quoteLocked()
	if err != nil {
		f.mu.Unlock()
		return nil, fmt.Errorf("failed to price booking: %w", err)
	}
	f.busy = true
	epoch := f.epoch
	draft := f.draft.clone()
	auth := f.auth
	f.mu.Unlock()

	booking, auth, err := f.authorizeAndPersist(ctx, draft, quote, auth, paymentToken)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy = false
	if auth != nil && f.draft.Token == draft.Token {
		f.auth = auth
	}

	if f.epoch != epoch && auth == nil {
		return nil, ErrDiscarded
	}
	if err != nil {
		return nil, err
	}

	f.booking = booking
	f.advance(StepConfirmed)
	return booking, nil
}

func (f *Funnel) authorizeAndPersist(ctx context.Context, draft Draft, quote pricing.Quote, auth *payment.Authorization, paymentToken string) (*models.Booking, *payment.Authorization, error) {
	if auth == nil {
		a, err := f.payments.Authorize(ctx, payment.Charge{
			InvoiceID:     draft.Token,
			Amount:        quote.Total,
			Currency:      f.cfg.Currency,
			CustomerName:  draft.Contact.Name,
			CustomerEmail: draft.Contact.Email,
			CustomerPhone: draft.Contact.Phone,
			Description:   fmt.Sprintf("%d day pass(es) for %s", len(draft.Passengers), draft.Date),
		}, paymentToken)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to authorize payment: %w", err)
		}
		auth = a
	}

	req := models.CreateBookingRequest{
		DraftToken:     draft.Token,
		ContactInfo:    draft.Contact,
		SelectedDate:   draft.Date,
		TimeSlot:       draft.TimeSlot,
		GuidedTour:     draft.GuidedTour,
		Passengers:     draft.Passengers,
		PickupLocation: draft.PickupLocation,
		SelectedAttractions: lo.Map(draft.AddOns, func(a pricing.AddOn, _ int) models.AttractionSelection {
			return models.AttractionSelection{ID: a.ID, Name: a.Name, UnitPrice: a.UnitPrice, Quantity: a.Quantity}
		}),
		TotalPrice:      quote.Total,
		Currency:        f.cfg.Currency,
		PaymentIntentID: auth.PaymentIntentID,
	}

	booking, attempts, err := f.persist(ctx, req)
	if err != nil {
		f.logger.WithError(err).WithFields(logrus.Fields{
			"draft_token":       draft.Token,
			"payment_reference": auth.Reference(),
			"attempts":          attempts,
		}).Error("Booking persistence failed after payment")
		return nil, auth, &PersistenceError{PaymentReference: auth.Reference(), Attempts: attempts, Err: err}
	}

	if err := booking.ValidateTickets(); err != nil {
		f.logger.WithError(err).WithField("booking_id", booking.ID).Error("Confirmed booking failed integrity check")
		return nil, auth, &IntegrityError{BookingID: booking.ID, Err: err}
	}
	if len(booking.Passengers) != len(draft.Passengers) {
		err := fmt.Errorf("expected %d passengers, booking has %d", len(draft.Passengers), len(booking.Passengers))
		return nil, auth, &IntegrityError{BookingID: booking.ID, Err: err}
	}

	f.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"passes":     booking.Passes(),
		"total":      pricing.FormatAmount(quote.Total),
	}).Info("Booking confirmed")
	return booking, auth, nil
}

func (f *Funnel) persist(ctx context.Context, req models.CreateBookingRequest) (*models.Booking, int, error) {
	policy := f.cfg.Retry
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = policy.InitialInterval
	if policy.MaxInterval > 0 {
		exp.MaxInterval = policy.MaxInterval
	}
	exp.MaxElapsedTime = 0

	// WithMaxRetries treats 0 as unlimited
	var retries backoff.BackOff = &backoff.StopBackOff{}
	if policy.MaxAttempts > 1 {
		retries = backoff.WithMaxRetries(exp, uint64(policy.MaxAttempts-1))
	}
	b := backoff.WithContext(retries, ctx)

	var (
		booking  *models.Booking
		attempts int
	)
	op := func() error {
		attempts++
		resp, err := f.bookings.CreateBooking(ctx, req)
		if err != nil {
			return err
		}
		if !resp.Success || resp.Booking == nil {
			return backoff.Permanent(&RejectedError{Message: resp.Error})
		}
		booking = resp.Booking
		return nil
	}
	notify := func(err error, wait time.Duration) {
		f.logger.WithError(err).WithFields(logrus.Fields{
			"draft_token": req.DraftToken,
			"attempt":     attempts,
			"retry_in":    wait.String(),
		}).Warn("Retrying booking persistence")
	}

	if err := backoff.RetryNotify(op, b, notify); err != nil {
		var rejected *RejectedError
		if errors.As(err, &rejected) {
			return nil, attempts, rejected
		}
		return nil, attempts, err
	}
	return booking, attempts, nil
}
