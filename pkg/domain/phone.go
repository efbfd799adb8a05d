package domain

import (
	"strings"

	dErrors "certproof/pkg/domain-errors"
)

// PhoneNumber is a normalized international number: a leading '+' followed
// by 8 to 15 digits. Separators (spaces, dashes, dots, parentheses) are removed
// at parse time.
type PhoneNumber string

// ParsePhoneNumber normalizes and validates user input.
//
// Errors: CodeValidation when the number is empty or not 8-15 digits.
func ParsePhoneNumber(s string) (PhoneNumber, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "phone_number is required")
	}
	plus := strings.HasPrefix(s, "+")
	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return "", dErrors.New(dErrors.CodeValidation, "phone_number contains invalid characters")
		}
	}
	digits := b.String()
	if !plus && strings.HasPrefix(digits, "00") {
		digits = digits[2:]
	}
	if len(digits) < 8 || len(digits) > 15 {
		return "", dErrors.New(dErrors.CodeValidation, "phone_number must have 8 to 15 digits")
	}
	return PhoneNumber("+" + digits), nil
}

func (p PhoneNumber) String() string { return string(p) }

// Masked keeps the country prefix and last two digits, e.g. +225*******89.
func (p PhoneNumber) Masked() string {
	s := string(p)
	if len(s) <= 6 {
		return s
	}
	return s[:4] + strings.Repeat("*", len(s)-6) + s[len(s)-2:]
}
