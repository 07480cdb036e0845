package sms

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Gateway defines the interface for sending SMS messages
type Gateway interface {
	// Send delivers message to phone and returns the gateway transaction ID
	Send(ctx context.Context, phone, message string) (int64, error)

	// GetName returns the name of the SMS gateway implementation
	GetName() string
}

var nonDigits = regexp.MustCompile(`[^0-9]`)

// FormatMSISDN converts an international number ("+351 912 345 678") into the
// digits-only form the gateway expects ("351912345678")
func FormatMSISDN(phone string) (string, error) {
	trimmed := strings.TrimSpace(phone)
	if !strings.HasPrefix(trimmed, "+") {
		return "", fmt.Errorf("phone number must include a country code")
	}
	digits := nonDigits.ReplaceAllString(trimmed, "")
	if len(digits) < 8 || len(digits) > 15 {
		return "", fmt.Errorf("invalid phone number length: %d digits", len(digits))
	}
	return digits, nil
}

// DevGateway logs messages instead of sending them
type DevGateway struct {
	logger *logrus.Logger
}

// NewDevGateway creates a logging-only gateway for development
func NewDevGateway(logger *logrus.Logger) *DevGateway {
	return &DevGateway{logger: logger}
}

// Send logs the message
func (d *DevGateway) Send(_ context.Context, phone, message string) (int64, error) {
	msisdn, err := FormatMSISDN(phone)
	if err != nil {
		return 0, fmt.Errorf("invalid phone number: %w", err)
	}
	d.logger.WithFields(logrus.Fields{
		"msisdn":  msisdn,
		"message": message,
	}).Info("SMS (dev mode, not sent)")
	return time.Now().UnixMicro(), nil
}

// GetName returns the name of this SMS gateway
func (d *DevGateway) GetName() string {
	return "Development Logger"
}
