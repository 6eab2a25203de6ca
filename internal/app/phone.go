package app

import (
	"strings"
)

// NormalizeMSISDN turns user input into the international digits-only form MoMo
// expects. Local numbers (leading 0, or nine digits) get countryCode prefixed.
func NormalizeMSISDN(raw, countryCode string) (string, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		case r == '+' && b.Len() == 0:
		default:
			return "", ErrInvalidPhone
		}
	}
	digits := b.String()
	digits = strings.TrimPrefix(digits, "00")

	cc := strings.TrimPrefix(strings.TrimSpace(countryCode), "+")
	switch {
	case strings.HasPrefix(digits, "0") && cc != "":
		digits = cc + strings.TrimPrefix(digits, "0")
	case len(digits) == 9 && cc != "" && !strings.HasPrefix(digits, cc):
		digits = cc + digits
	}

	if len(digits) < 10 || len(digits) > 15 {
		return "", ErrInvalidPhone
	}
	return digits, nil
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
