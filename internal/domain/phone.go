package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// e164Pattern matches E.164 phone numbers: + followed by 7-15 digits.
var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

// separators are the grouping characters people type inside a number.
var separators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")

// PhoneNumber is a value object representing a phone number in E.164 format.
// Always valid in memory; construct with NewPhoneNumber.
type PhoneNumber struct {
	value string
}

// NewPhoneNumber strips grouping characters from raw and validates the
// result as E.164, so "+1 (415) 555-2671" and "+14155552671" are the same
// number.
func NewPhoneNumber(raw string) (PhoneNumber, error) {
	normalized := separators.Replace(strings.TrimSpace(raw))
	if normalized == "" {
		return PhoneNumber{}, fmt.Errorf("phone number cannot be empty: %w", ErrInvalidPhoneNumber)
	}
	if !e164Pattern.MatchString(normalized) {
		return PhoneNumber{}, fmt.Errorf("phone number %s is not valid E.164: %w", MaskPhone(normalized), ErrInvalidPhoneNumber)
	}
	return PhoneNumber{value: normalized}, nil
}

// MustPhoneNumber creates a PhoneNumber, panicking on invalid input. Use only in tests.
func MustPhoneNumber(raw string) PhoneNumber {
	p, err := NewPhoneNumber(raw)
	if err != nil {
		panic(err)
	}
	return p
}

func (p PhoneNumber) String() string { return p.value }
func (p PhoneNumber) IsZero() bool   { return p.value == "" }

// Masked returns the number with everything but the last 4 digits hidden.
func (p PhoneNumber) Masked() string { return MaskPhone(p.value) }

// MaskPhone returns a masked representation of a raw phone string showing
// only the last 4 characters. Strings shorter than 5 characters are fully
// masked. Use it for every phone number that reaches a log line.
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return "***" + phone[len(phone)-4:]
}
