package utils

import (
	netmail "net/mail"
	"os"
	"strconv"
	"strings"

	mail "gopkg.in/mail.v2"
)

// ValidateEmailAddress accepts a bare RFC 5322 address. Display names
// ("T.G. <tg@example.com>") are rejected; customers submit plain addresses.
func ValidateEmailAddress(address string) bool {
	parsed, err := netmail.ParseAddress(address)
	return err == nil && parsed.Address == address
}

// NormalizeEmailAddress lowercases the address for conversation keying, so
// replies from the same customer land in the same thread.
func NormalizeEmailAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// SendMail delivers an HTML email through the configured SMTP relay.
// Returns (false, err) on dial/send failure so callers can distinguish
// "not sent" from transport errors.
func SendMail(to string, subject string, html string) (bool, error) {
	host := os.Getenv("SMTP_HOST")
	port, portErr := strconv.Atoi(os.Getenv("SMTP_PORT"))
	if portErr != nil {
		port = 587
	}

	m := mail.NewMessage()
	m.SetHeader("From", os.Getenv("SMTP_FROM"))
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", html)

	d := mail.NewDialer(host, port, os.Getenv("SMTP_USER"), os.Getenv("SMTP_PASSWORD"))

	if err := d.DialAndSend(m); err != nil {
		return false, err
	}
	return true, nil
}
