package validation

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MinPasswordLength = 8
	// bcrypt only reads the first 72 bytes of its input.
	MaxPasswordBytes = 72

	MaxCompanyNameLength = 200
	MaxDisplayNameLength = 100
	MaxEmailLength       = 254
)

var (
	// EmailRegex validates email format
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

	// UUIDRegex validates UUID format
	uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
)

// IsValidEmail checks if the string is a valid email format
func IsValidEmail(email string) bool {
	if len(email) > MaxEmailLength {
		return false
	}
	return emailRegex.MatchString(email)
}

// IsValidUUID checks if the string is a valid UUID format
func IsValidUUID(id string) bool {
	return uuidRegex.MatchString(id)
}

// IsValidPassword checks the password length bounds
func IsValidPassword(password string) (bool, string) {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return false, "Password must be at least 8 characters"
	}
	if len(password) > MaxPasswordBytes {
		return false, "Password must be at most 72 bytes"
	}
	return true, ""
}

// IsValidName checks a display or company name: not blank, at most maxLen
// characters, no control characters.
func IsValidName(name string, maxLen int) (bool, string) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return false, "is required"
	}
	if utf8.RuneCountInString(trimmed) > maxLen {
		return false, "is too long"
	}
	if SanitizeString(trimmed) != trimmed || strings.ContainsAny(trimmed, "\n\r\t") {
		return false, "contains invalid characters"
	}
	return true, ""
}

// SanitizeString removes potentially dangerous characters for display
func SanitizeString(s string) string {
	// Remove null bytes
	s = strings.ReplaceAll(s, "\x00", "")

	// Remove control characters except newlines and tabs
	var result strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || !unicode.IsControl(r) {
			result.WriteRune(r)
		}
	}

	return result.String()
}

// TruncateString truncates a string to maxLen characters
func TruncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen])
}
