package utils

import (
	"regexp"
	"strings"
)

// MinPasswordLength is the minimum accepted password length.
const MinPasswordLength = 6

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidateEmail validates an email address
func ValidateEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// ValidatePassword validates a password
func ValidatePassword(password string) bool {
	return len(password) >= MinPasswordLength
}

// SanitizeEmail lower-cases and trims an email address
func SanitizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
