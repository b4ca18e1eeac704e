package services

import (
	"net/mail"
	"strings"
)

// NormalizeEmail trims and lowercases raw and returns "" when the result is
// not a bare email address.
func NormalizeEmail(raw string) string {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return ""
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ""
	}
	return email
}
