package utils

import (
	"regexp"
	"strings"
)

var nonDigit = regexp.MustCompile(`\D`)

// NormalizePhoneNumber reduces a phone number to E.164 form for storage and
// conversation keying. Bare 10-digit numbers are assumed to be US/Canada.
func NormalizePhoneNumber(phoneNumber string) string {
	digits := nonDigit.ReplaceAllString(phoneNumber, "")
	if digits == "" {
		return ""
	}

	if len(digits) == 10 {
		digits = "1" + digits
	}
	return "+" + digits
}

// ValidatePhoneNumber accepts E.164-ish input: optional +, 10 to 15 digits.
func ValidatePhoneNumber(phoneNumber string) bool {
	cleaned := nonDigit.ReplaceAllString(phoneNumber, "")
	if len(cleaned) < 10 || len(cleaned) > 15 {
		return false
	}
	return !strings.HasPrefix(cleaned, "0")
}

// DisplayPhoneNumber formats a normalized US number as +1 (XXX) XXX-XXXX.
func DisplayPhoneNumber(phoneNumber string) string {
	normalized := NormalizePhoneNumber(phoneNumber)
	if len(normalized) == 12 && strings.HasPrefix(normalized, "+1") {
		d := normalized[2:]
		return "+1 (" + d[:3] + ") " + d[3:6] + "-" + d[6:]
	}
	return phoneNumber
}
