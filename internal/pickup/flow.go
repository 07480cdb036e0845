package pickup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/hoponpass/daypass-backend/internal/dispatch"
	"github.com/hoponpass/daypass-backend/internal/models"
	"github.com/hoponpass/daypass-backend/internal/session"
	"github.com/hoponpass/daypass-backend/pkg/validator"
)

// State is a stage of the pickup flow
type State int

const (
	StateVerify State = iota
	StateRequest
	StateSearching
	StateConfirmed
)

func (s State) String() string {
	switch s {
	case StateVerify:
		return "verify"
	case StateRequest:
		return "request"
	case StateSearching:
		return "searching"
	case StateConfirmed:
		return "confirmed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// DefaultPhonePrefix is used when a stored phone number carries no country code
const DefaultPhonePrefix = "+351"

var (
	// ErrCodeRequired is returned for a blank booking code
	ErrCodeRequired = errors.New("please enter your booking code")

	// ErrConnection is returned when the collaborator could not be reached
	ErrConnection = errors.New("connection issue, please try again")

	// ErrWrongState is returned when an operation does not belong to the current state
	ErrWrongState = errors.New("operation not allowed in the current state")

	// ErrBusy is returned while a call is already in flight
	ErrBusy = errors.New("a request is already in progress")

	// ErrDiscarded is returned when the flow moved on before the response arrived
	ErrDiscarded = errors.New("pickup flow changed while the request was in flight")
)

// ValidationError reports a form problem found before any network call
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// VerificationError is returned when the booking code was not accepted
type VerificationError struct {
	Message string
}

func (e *VerificationError) Error() string {
	if e.Message == "" {
		return "invalid booking code"
	}
	return e.Message
}

// SubmitError is returned when a pickup request did not get a success acknowledgement
type SubmitError struct {
	Reason string
	Err    error
}

func (e *SubmitError) Error() string {
	return e.Reason
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

// CodeVerifier checks a booking code. A non-nil error means a transport failure.
type CodeVerifier interface {
	VerifyBookingCode(ctx context.Context, code string) (*models.VerifyCodeResponse, error)
}

// RequestCreator submits a pickup request. A non-nil error means a transport failure
// or a non-2xx answer.
type RequestCreator interface {
	CreatePickupRequest(ctx context.Context, req models.CreatePickupRequest) (*models.CreatePickupResponse, error)
}

// IdentitySource yields the current session identity
type IdentitySource interface {
	Identity(ctx context.Context) (session.Identity, error)
}

// Form is the editable pickup request
type Form struct {
	BookingID      string
	CustomerName   string
	PhonePrefix    string
	PhoneNumber    string
	Passes         int
	GroupSize      int
	PickupLocation string
	Destination    string
}

// Flow is the pickup request state machine
type Flow struct {
	verifier  CodeVerifier
	creator   RequestCreator
	identity  IdentitySource
	phones    *validator.PhoneValidator
	locations []string
	minDelay  time.Duration
	logger    *logrus.Logger

	mu          sync.Mutex
	state       State
	form        Form
	fromSession bool
	allocation  dispatch.Allocation
	epoch       uint64
	inFlight    bool
	request     *models.PickupRequestRef
	lastError   string
}

// NewFlow creates a pickup flow. minDelay is the shortest time Searching is shown
// before Confirmed.
func NewFlow(verifier CodeVerifier, creator RequestCreator, identity IdentitySource, minDelay time.Duration, logger *logrus.Logger) *Flow {
	f := &Flow{
		verifier:  verifier,
		creator:   creator,
		identity:  identity,
		phones:    validator.NewPhoneValidator(),
		locations: models.PickupLocations,
		minDelay:  minDelay,
		logger:    logger,
	}
	f.resetForm(Form{})
	return f
}

// resetForm replaces the form keeping the given identity fields. Caller holds mu.
func (f *Flow) resetForm(keep Form) {
	keep.GroupSize = 1
	if keep.PhonePrefix == "" {
		keep.PhonePrefix = DefaultPhonePrefix
	}
	f.form = keep
	f.allocation, _ = dispatch.Allocate(1)
}

// Start enters Request directly when a session is active, otherwise Verify
func (f *Flow) Start(ctx context.Context) (State, error) {
	id, err := f.identity.Identity(ctx)
	if err != nil {
		return StateVerify, fmt.Errorf("failed to read session: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// an in-flight call clears inFlight itself when it returns
	f.epoch++
	f.request = nil
	f.lastError = ""

	switch v := id.(type) {
	case session.SessionIdentity:
		f.prefill(v.Session.BookingID, v.Session.CustomerName, v.Session.CustomerPhone, v.Session.Passes)
		f.fromSession = true
		f.state = StateRequest
	case session.Anonymous, nil:
		f.resetForm(Form{})
		f.fromSession = false
		f.state = StateVerify
	}
	return f.state, nil
}

// prefill loads identity fields and sizes the group to the pass count. Caller holds mu.
func (f *Flow) prefill(bookingID, name, phone string, passes int) {
	prefix, number := f.phones.Split(phone, DefaultPhonePrefix)
	f.resetForm(Form{
		BookingID:    bookingID,
		CustomerName: name,
		PhonePrefix:  prefix,
		PhoneNumber:  number,
		Passes:       passes,
	})
	f.setGroupSizeLocked(passes)
}

// VerifyCode checks a booking code and, when accepted, enters Request
func (f *Flow) VerifyCode(ctx context.Context, code string) error {
	code = models.NormalizeBookingCode(code)
	if code == "" {
		return &ValidationError{Field: "code", Message: ErrCodeRequired.Error()}
	}

	f.mu.Lock()
	if f.state != StateVerify {
		f.mu.Unlock()
		return ErrWrongState
	}
	if f.inFlight {
		f.mu.Unlock()
		return ErrBusy
	}
	f.inFlight = true
	epoch := f.epoch
	f.mu.Unlock()

	resp, err := f.verifier.VerifyBookingCode(ctx, code)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight = false
	if f.epoch != epoch {
		return ErrDiscarded
	}

	if err != nil {
		f.logger.WithError(err).WithField("code", code).Warn("Booking code verification unreachable")
		f.lastError = ErrConnection.Error()
		return ErrConnection
	}
	if resp == nil || !resp.Success || resp.Booking == nil {
		verr := &VerificationError{}
		if resp != nil {
			verr.Message = resp.Error
		}
		f.lastError = verr.Error()
		return verr
	}

	b := resp.Booking
	f.prefill(b.BookingID, b.CustomerName, b.CustomerPhone, b.Passes)
	f.fromSession = false
	f.lastError = ""
	f.epoch++
	f.state = StateRequest
	return nil
}

// SetGroupSize clamps n to [1, dispatch.MaxGroupSize] and recomputes the vehicle guidance
func (f *Flow) SetGroupSize(n int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateRequest {
		return f.form.GroupSize, ErrWrongState
	}
	return f.setGroupSizeLocked(n), nil
}

func (f *Flow) setGroupSizeLocked(n int) int {
	n = lo.Clamp(n, 1, dispatch.MaxGroupSize)
	f.form.GroupSize = n
	f.allocation, _ = dispatch.Allocate(n)
	return n
}

// SetCustomerName edits the contact name
func (f *Flow) SetCustomerName(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateRequest {
		return ErrWrongState
	}
	f.form.CustomerName = strings.TrimSpace(name)
	return nil
}

// SetPickupLocation picks one of the fixed pickup locations
func (f *Flow) SetPickupLocation(loc string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateRequest {
		return ErrWrongState
	}
	if !lo.Contains(f.locations, loc) {
		return &ValidationError{Field: "pickup_location", Message: "choose a pickup location from the list"}
	}
	if f.form.Destination != "" && f.form.Destination == loc {
		return &ValidationError{Field: "pickup_location", Message: "pickup location and destination must differ"}
	}
	f.form.PickupLocation = loc
	return nil
}

// SetDestination sets the optional destination; an empty value clears it
func (f *Flow) SetDestination(dest string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateRequest {
		return ErrWrongState
	}
	dest = strings.TrimSpace(dest)
	if dest != "" && dest == f.form.PickupLocation {
		return &ValidationError{Field: "destination", Message: "pickup location and destination must differ"}
	}
	f.form.Destination = dest
	return nil
}

// SetPhone sets the phone as country-code prefix plus local number
func (f *Flow) SetPhone(prefix, number string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateRequest {
		return ErrWrongState
	}
	if err := f.phones.ValidatePrefix(prefix); err != nil {
		return &ValidationError{Field: "phone_prefix", Message: err.Error()}
	}
	local, err := f.phones.ValidateLocalNumber(number)
	if err != nil {
		return &ValidationError{Field: "phone_number", Message: err.Error()}
	}
	f.form.PhonePrefix = strings.TrimSpace(prefix)
	f.form.PhoneNumber = local
	return nil
}

// Submit sends the request and waits for an explicit success acknowledgement.
// On failure the flow returns to Request with the form intact.
func (f *Flow) Submit(ctx context.Context) (*models.PickupRequestRef, error) {
	f.mu.Lock()
	if f.state == StateSearching || f.inFlight {
		f.mu.Unlock()
		return nil, ErrBusy
	}
	if f.state != StateRequest {
		f.mu.Unlock()
		return nil, ErrWrongState
	}
	req, err := f.buildRequestLocked()
	if err != nil {
		f.mu.Unlock()
		return nil, err
	}
	f.state = StateSearching
	f.inFlight = true
	f.epoch++
	epoch := f.epoch
	f.lastError = ""
	f.mu.Unlock()

	started := time.Now()
	resp, callErr := f.creator.CreatePickupRequest(ctx, req)

	ok := callErr == nil && resp != nil && resp.Success && resp.Request != nil && resp.Request.ID != ""
	if ok {
		if wait := f.minDelay - time.Since(started); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
			}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight = false
	if f.epoch != epoch {
		return nil, ErrDiscarded
	}

	if !ok {
		serr := &SubmitError{Reason: "your pickup request was not accepted, please try again", Err: callErr}
		switch {
		case callErr != nil:
			serr.Reason = ErrConnection.Error()
		case resp != nil && resp.Error != "":
			serr.Reason = resp.Error
		}
		f.logger.WithError(callErr).WithFields(logrus.Fields{
			"booking_id": req.BookingID,
			"group_size": req.GroupSize,
			"reason":     serr.Reason,
		}).Warn("Pickup request failed")

		f.lastError = serr.Reason
		f.state = StateRequest
		f.epoch++
		return nil, serr
	}

	f.request = resp.Request
	f.state = StateConfirmed
	f.epoch++
	f.logger.WithFields(logrus.Fields{
		"request_id":    resp.Request.ID,
		"vehicle_count": f.allocation.VehicleCount,
	}).Info("Pickup request confirmed")
	return resp.Request, nil
}

func (f *Flow) buildRequestLocked() (models.CreatePickupRequest, error) {
	form := f.form
	if form.CustomerName == "" {
		return models.CreatePickupRequest{}, &ValidationError{Field: "customer_name", Message: "name is required"}
	}
	phone, err := f.phones.Validate(form.PhonePrefix, form.PhoneNumber)
	if err != nil {
		return models.CreatePickupRequest{}, &ValidationError{Field: "phone", Message: err.Error()}
	}
	if form.PickupLocation == "" {
		return models.CreatePickupRequest{}, &ValidationError{Field: "pickup_location", Message: "pickup location is required"}
	}
	if form.Destination == form.PickupLocation {
		return models.CreatePickupRequest{}, &ValidationError{Field: "destination", Message: "pickup location and destination must differ"}
	}
	return models.CreatePickupRequest{
		BookingID:      form.BookingID,
		CustomerName:   form.CustomerName,
		CustomerPhone:  phone,
		PickupLocation: form.PickupLocation,
		Destination:    form.Destination,
		GroupSize:      form.GroupSize,
	}, nil
}

// RequestAnother returns from Confirmed to an empty form. Name and phone are
// kept when they came from the session.
func (f *Flow) RequestAnother() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateConfirmed {
		return ErrWrongState
	}
	keep := Form{BookingID: f.form.BookingID, Passes: f.form.Passes}
	if f.fromSession {
		keep.CustomerName = f.form.CustomerName
		keep.PhonePrefix = f.form.PhonePrefix
		keep.PhoneNumber = f.form.PhoneNumber
	}
	f.resetForm(keep)
	f.request = nil
	f.lastError = ""
	f.epoch++
	f.state = StateRequest
	return nil
}

// Reset abandons the flow; responses still in flight are discarded
func (f *Flow) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.resetForm(Form{})
	f.fromSession = false
	f.request = nil
	f.lastError = ""
	f.epoch++
	f.state = StateVerify
}

// State returns the current state
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Form returns a copy of the form
func (f *Flow) Form() Form {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.form
}

// Allocation returns the vehicle allocation for the current group size
func (f *Flow) Allocation() dispatch.Allocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allocation
}

// Guidance returns the live vehicle guidance text
func (f *Flow) Guidance() string {
	return f.Allocation().Guidance()
}

// Request returns the confirmed request reference
func (f *Flow) Request() *models.PickupRequestRef {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.request
}

// LastError returns the user-facing message of the last failure
func (f *Flow) LastError() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastError
}
