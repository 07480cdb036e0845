package payment

import (
	"context"
	"errors"
	"fmt"
)

// Charge describes the amount a booking draft needs authorized. Amount is in cents.
type Charge struct {
	InvoiceID     string
	Amount        int64
	Currency      string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	Description   string
}

// Authorization is a successful payment the booking can reference
type Authorization struct {
	PaymentIntentID string
	TransactionID   string
	Amount          int64
}

// Reference returns the identifier customers quote to support
func (a *Authorization) Reference() string {
	if a.TransactionID != "" {
		return a.TransactionID
	}
	return a.PaymentIntentID
}

// Gateway authorizes a charge with a token produced by the customer's checkout
type Gateway interface {
	Authorize(ctx context.Context, charge Charge, paymentToken string) (*Authorization, error)
}

// ErrInvalidToken is returned when the payment token cannot be parsed
var ErrInvalidToken = errors.New("invalid payment token")

// DeclinedError is returned when the gateway did not approve the payment
type DeclinedError struct {
	Status string
	Reason string
}

func (e *DeclinedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("payment declined (%s): %s", e.Status, e.Reason)
	}
	return fmt.Sprintf("payment declined (%s)", e.Status)
}
