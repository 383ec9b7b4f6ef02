// Package phone turns user supplied phone numbers into canonical international digits.
package phone

import (
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// ValidationError reports a phone number that cannot be used for pairing
type ValidationError struct {
	Input  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid phone number %q: %s", e.Input, e.Reason)
}

// Number is a canonical E.164 number without the leading '+'
type Number string

// String returns the digits
func (n Number) String() string {
	return string(n)
}

// Canonicalize strips formatting, checks the country calling code and
// number plan, and returns the E.164 digits.
func Canonicalize(raw string) (Number, error) {
	digits := Digits(raw)
	if digits == "" {
		return "", &ValidationError{Input: raw, Reason: "no digits"}
	}

	parsed, err := phonenumbers.Parse("+"+digits, "")
	if err != nil {
		return "", &ValidationError{Input: raw, Reason: err.Error()}
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return "", &ValidationError{Input: raw, Reason: "not a valid number for its country calling code"}
	}

	e164 := phonenumbers.Format(parsed, phonenumbers.E164)
	canonical := strings.TrimPrefix(e164, "+")
	if canonical == "" || Digits(canonical) != canonical {
		return "", &ValidationError{Input: raw, Reason: "cannot be formatted as E.164"}
	}
	return Number(canonical), nil
}

// Digits drops every non-digit rune
func Digits(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
