package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidEmail(t *testing.T) {
	tests := []struct {
		name  string
		email string
		valid bool
	}{
		{"valid_simple", "user@example.com", true},
		{"valid_subdomain", "user@mail.example.com", true},
		{"valid_plus", "user+tag@example.com", true},
		{"valid_dash", "user-name@example.com", true},
		{"valid_dot", "user.name@example.com", true},
		{"valid_numbers", "user123@example456.com", true},
		{"invalid_no_at", "userexample.com", false},
		{"invalid_no_domain", "user@", false},
		{"invalid_no_user", "@example.com", false},
		{"invalid_double_at", "user@@example.com", false},
		{"invalid_spaces", "user @example.com", false},
		{"invalid_no_tld", "user@example", false},
		{"too_long", strings.Repeat("a", 250) + "@example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValidEmail(tt.email)
			assert.Equal(t, tt.valid, result, "Email: %s", tt.email)
		})
	}
}

func TestIsValidUUID(t *testing.T) {
	assert.True(t, IsValidUUID("123e4567-e89b-12d3-a456-426614174000"))
	assert.True(t, IsValidUUID("123E4567-E89B-12D3-A456-426614174000"))
	assert.False(t, IsValidUUID("123e4567e89b12d3a456426614174000"))
	assert.False(t, IsValidUUID("not-a-uuid"))
	assert.False(t, IsValidUUID(""))
}

func TestIsValidPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		valid    bool
		errMsg   string
	}{
		{"valid_plain", "longenough1", true, ""},
		{"valid_exactly_min", "12345678", true, ""},
		{"valid_max_bytes", strings.Repeat("a", 72), true, ""},
		{"valid_multibyte", "pässwörd", true, ""},
		{"too_short", "Pass1!", false, "at least 8 characters"},
		{"too_long", strings.Repeat("a", 73), false, "at most 72 bytes"},
		{"multibyte_over_limit", strings.Repeat("ü", 37), false, "at most 72 bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, msg := IsValidPassword(tt.password)
			assert.Equal(t, tt.valid, valid, "Password: %s", tt.password)
			if !valid {
				assert.Contains(t, msg, tt.errMsg)
			}
		})
	}
}

func TestIsValidName(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		max    int
		valid  bool
		errMsg string
	}{
		{"valid", "Acme Corp", 200, true, ""},
		{"valid_unicode", "Café Ünïcode", 200, true, ""},
		{"blank", "   ", 200, false, "required"},
		{"empty", "", 200, false, "required"},
		{"too_long", strings.Repeat("x", 101), 100, false, "too long"},
		{"control_chars", "Acme\x00Corp", 200, false, "invalid characters"},
		{"newline", "Acme\nCorp", 200, false, "invalid characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, msg := IsValidName(tt.input, tt.max)
			assert.Equal(t, tt.valid, valid)
			if !valid {
				assert.Contains(t, msg, tt.errMsg)
			}
		})
	}
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"clean_text", "Hello World", "Hello World"},
		{"null_bytes", "Hello\x00World", "HelloWorld"},
		{"control_chars", "Hello\x01\x02World", "HelloWorld"},
		{"keep_newlines", "Hello\nWorld", "Hello\nWorld"},
		{"keep_tabs", "Hello\tWorld", "Hello\tWorld"},
		{"keep_carriage_return", "Hello\rWorld", "Hello\rWorld"},
		{"mixed", "Hello\x00\x01\nWorld\t!", "Hello\nWorld\t!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SanitizeString(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxLen   int
		expected string
	}{
		{"shorter_than_max", "Hello", 10, "Hello"},
		{"equal_to_max", "Hello", 5, "Hello"},
		{"longer_than_max", "Hello World", 5, "Hello"},
		{"multibyte", "Ünïcödé", 3, "Ünï"},
		{"empty", "", 10, ""},
		{"zero_max", "Hello", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := TruncateString(tt.input, tt.maxLen)
			assert.Equal(t, tt.expected, result)
		})
	}
}
