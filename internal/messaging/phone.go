package messaging

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPhone is returned when a number cannot be normalized to E.164.
var ErrInvalidPhone = errors.New("messaging: invalid phone number")

// NormalizeE164 converts a user-entered number to +<digits>. Numbers without a
// leading + or 00 get defaultCountryCode prepended. The result must carry
// between 8 and 15 digits.
func NormalizeE164(value, defaultCountryCode string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPhone)
	}
	international := strings.HasPrefix(value, "+")
	digits := sanitizePhone(value)
	if !international && strings.HasPrefix(digits, "00") {
		international = true
		digits = strings.TrimPrefix(digits, "00")
	}
	if digits == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, value)
	}
	if !international {
		cc := sanitizePhone(defaultCountryCode)
		if cc == "" {
			return "", fmt.Errorf("%w: %q has no country code", ErrInvalidPhone, value)
		}
		if !strings.HasPrefix(digits, cc) || len(digits) <= 10 {
			digits = cc + strings.TrimLeft(digits, "0")
		}
	}
	if len(digits) < 8 || len(digits) > 15 {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, value)
	}
	return "+" + digits, nil
}

func sanitizePhone(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
