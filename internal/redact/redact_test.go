package redact

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskEmail(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"address", "ops@example.com", "o***@example.com"},
		{"surrounding space", "  ops@example.com ", "o***@example.com"},
		{"password typed as email", "hunter2", Placeholder},
		{"two addresses", "a@example.com b@example.com", Placeholder},
		{"empty", "", Placeholder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MaskEmail(tt.input))
		})
	}
}

func TestText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "device offline", "device offline"},
		{"email", "notify eng@example.com now", "notify e***@example.com now"},
		{"card", "paid with 4111 1111 1111 1111", "paid with " + Placeholder},
		{"phone", "call +1 555-123-4567", "call " + Placeholder},
		{"short number kept", "reading 1234", "reading 1234"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Text(tt.input))
		})
	}
}

func TestDetails(t *testing.T) {
	email := "eng@example.com"
	in := map[string]interface{}{
		"password": "secret",
		"changes": map[string]interface{}{
			"notification_email": &email,
			"name":               "North wall",
		},
		"API_KEY": "abc",
		"rows":    12,
	}

	out := Details(in)

	assert.Equal(t, Placeholder, out["password"])
	assert.Equal(t, Placeholder, out["API_KEY"])
	assert.Equal(t, 12, out["rows"])

	changes := out["changes"].(map[string]interface{})
	assert.Equal(t, "North wall", changes["name"])
	assert.Equal(t, "e***@example.com", *changes["notification_email"].(*string))

	// input is untouched
	assert.Equal(t, "eng@example.com", email)
	assert.Nil(t, Details(nil))
}
