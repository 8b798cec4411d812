// Package redact masks personal data and secrets before they are written to
// the audit trail.
package redact

import (
	"regexp"
	"strings"
)

// Placeholder replaces values that cannot be partially shown
const Placeholder = "[REDACTED]"

var (
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)

	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-. ()]{8,}[0-9]`)

	cardPattern = regexp.MustCompile(`\b(?:[0-9][ \-]?){12,18}[0-9]\b`)

	// sensitiveKeys are detail keys whose values are never stored
	sensitiveKeys = []string{"password", "api_key", "apikey", "token", "secret", "authorization"}
)

// MaskEmail keeps the first letter of the local part and the domain:
// "ops@example.com" becomes "o***@example.com". Anything that is not a single
// address is replaced outright, since failed logins sometimes carry a password
// typed into the email field.
func MaskEmail(email string) string {
	email = strings.TrimSpace(email)
	if !emailPattern.MatchString(email) || emailPattern.FindString(email) != email {
		return Placeholder
	}
	at := strings.LastIndex(email, "@")
	return email[:1] + "***" + email[at:]
}

// Text masks emails, card numbers and phone numbers inside free text
func Text(s string) string {
	s = emailPattern.ReplaceAllStringFunc(s, MaskEmail)
	s = cardPattern.ReplaceAllStringFunc(s, func(m string) string {
		if luhnCheck(m) {
			return Placeholder
		}
		return m
	})
	return phonePattern.ReplaceAllString(s, Placeholder)
}

// Details returns a copy of details with sensitive keys replaced and string
// values passed through Text. Nested maps are handled; other values are kept.
func Details(details map[string]interface{}) map[string]interface{} {
	if details == nil {
		return nil
	}
	out := make(map[string]interface{}, len(details))
	for k, v := range details {
		if isSensitiveKey(k) {
			out[k] = Placeholder
			continue
		}
		switch val := v.(type) {
		case string:
			out[k] = Text(val)
		case *string:
			if val != nil {
				masked := Text(*val)
				out[k] = &masked
			} else {
				out[k] = val
			}
		case map[string]interface{}:
			out[k] = Details(val)
		default:
			out[k] = v
		}
	}
	return out
}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

// luhnCheck validates a card number using the Luhn algorithm
func luhnCheck(number string) bool {
	number = strings.NewReplacer(" ", "", "-", "").Replace(number)
	if len(number) < 13 || len(number) > 19 {
		return false
	}

	sum := 0
	second := false
	for i := len(number) - 1; i >= 0; i-- {
		digit := int(number[i] - '0')
		if second {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		second = !second
	}
	return sum%10 == 0
}
