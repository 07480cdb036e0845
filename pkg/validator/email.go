package validator

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidEmail indicates the address is not syntactically valid
var ErrInvalidEmail = errors.New("invalid email address")

var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidateEmail checks that email looks like local@domain.tld
func ValidateEmail(email string) error {
	if !emailRegex.MatchString(strings.TrimSpace(email)) {
		return ErrInvalidEmail
	}
	return nil
}

// NormalizeEmail trims and lower-cases an address for identity comparisons
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
