package funnel

import (
	"errors"
	"fmt"
)

var (
	// ErrEmailMismatch blocks PassengerDetails until the confirmation matches
	ErrEmailMismatch = errors.New("emails don't match")

	// ErrGuidedTourUnavailable is returned when guided commentary is requested on a slot that has none
	ErrGuidedTourUnavailable = errors.New("guided tour is not available for this time slot")

	// ErrWrongStep is returned when an operation does not belong to the current step
	ErrWrongStep = errors.New("operation not allowed at this step")

	// ErrBusy is returned while a payment is already in flight
	ErrBusy = errors.New("a payment is already in progress")

	// ErrDiscarded is returned when the funnel moved on while a payment was in flight
	ErrDiscarded = errors.New("booking flow changed while the payment was processing")
)

// ValidationError reports a local input problem found before any network call
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Err: errors.New(msg)}
}

// RejectedError is returned by the booking collaborator answering success:false
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return "booking was rejected"
	}
	return e.Message
}

// PersistenceError means the payment went through but the booking could not be saved
type PersistenceError struct {
	PaymentReference string
	Attempts         int
	Err              error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("payment succeeded but booking failed: contact support with payment reference %s", e.PaymentReference)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IntegrityError means the saved booking broke the ticket/passenger contract
type IntegrityError struct {
	BookingID string
	Err       error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("booking %s failed its integrity check: %v", e.BookingID, e.Err)
}

func (e *IntegrityError) Unwrap() error {
	return e.Err
}
