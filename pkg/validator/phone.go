package validator

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrEmptyPrefix indicates the country-code prefix is empty
	ErrEmptyPrefix = errors.New("country code cannot be empty")

	// ErrInvalidPrefix indicates the prefix is not "+" followed by digits, max 5 characters
	ErrInvalidPrefix = errors.New("country code must be + followed by up to 4 digits")

	// ErrEmptyPhone indicates phone number is empty
	ErrEmptyPhone = errors.New("phone number cannot be empty")

	// ErrInvalidFormat indicates phone number contains invalid characters
	ErrInvalidFormat = errors.New("phone number can only contain digits")

	// ErrInvalidLength indicates the local number is too short or too long
	ErrInvalidLength = errors.New("phone number must be between 4 and 14 digits")
)

const (
	maxPrefixLength = 5
	minLocalDigits  = 4
	maxLocalDigits  = 14
)

// prefixRegex matches "+" followed by 1-4 digits
var prefixRegex = regexp.MustCompile(`^\+\d{1,4}$`)

// digitsRegex matches digits only
var digitsRegex = regexp.MustCompile(`^\d+$`)

// PhoneValidator validates phone numbers entered as a country-code prefix plus a local number
type PhoneValidator struct{}

// NewPhoneValidator creates a new phone validator instance
func NewPhoneValidator() *PhoneValidator {
	return &PhoneValidator{}
}

// ValidatePrefix checks the country-code prefix, e.g. "+351"
func (v *PhoneValidator) ValidatePrefix(prefix string) error {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return ErrEmptyPrefix
	}
	if len(prefix) > maxPrefixLength || !prefixRegex.MatchString(prefix) {
		return ErrInvalidPrefix
	}
	return nil
}

// ValidateLocalNumber validates the local part and returns it as digits only.
// Accepts 912345678, 912 345 678, 912-345-678 or (91) 234.5678
func (v *PhoneValidator) ValidateLocalNumber(number string) (string, error) {
	if strings.TrimSpace(number) == "" {
		return "", ErrEmptyPhone
	}

	sanitized := v.Sanitize(number)
	if !digitsRegex.MatchString(sanitized) {
		return "", ErrInvalidFormat
	}
	if len(sanitized) < minLocalDigits || len(sanitized) > maxLocalDigits {
		return "", ErrInvalidLength
	}
	return sanitized, nil
}

// Validate validates prefix and number and returns the display form "+351 912345678"
func (v *PhoneValidator) Validate(prefix, number string) (string, error) {
	if err := v.ValidatePrefix(prefix); err != nil {
		return "", err
	}
	local, err := v.ValidateLocalNumber(number)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(prefix) + " " + local, nil
}

// Sanitize removes common separators from a local number
func (v *PhoneValidator) Sanitize(number string) string {
	return strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "").Replace(strings.TrimSpace(number))
}

// Split breaks a stored "+351 912345678" number back into prefix and local number.
// Numbers without a recognizable prefix get defaultPrefix.
func (v *PhoneValidator) Split(full, defaultPrefix string) (string, string) {
	full = strings.TrimSpace(full)
	if prefix, rest, ok := strings.Cut(full, " "); ok && v.ValidatePrefix(prefix) == nil {
		return prefix, v.Sanitize(rest)
	}
	return defaultPrefix, v.Sanitize(strings.TrimPrefix(full, "+"))
}
