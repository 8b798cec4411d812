// Package session classifies the bearer credential carried in the dashboard
// session cookie. It only looks at the payload segment; signatures are
// verified by the resource API, never here.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
)

// State is the outcome of inspecting a credential.
type State int

const (
	// Missing means no credential was supplied.
	Missing State = iota
	// Malformed covers wrong segment counts, undecodable payloads and a missing exp claim.
	Malformed
	// Expired means exp is not strictly after the evaluation instant.
	Expired
	// Valid means the credential is well-formed and unexpired.
	Valid
)

// String returns the lowercase name of the state
func (s State) String() string {
	switch s {
	case Missing:
		return "missing"
	case Malformed:
		return "malformed"
	case Expired:
		return "expired"
	case Valid:
		return "valid"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrSegmentCount is returned when the credential is not three dot-separated segments
	ErrSegmentCount = errors.New("credential must have three segments")

	// ErrEmptySegment is returned when any of the three segments is empty
	ErrEmptySegment = errors.New("credential has an empty segment")

	// ErrPayloadEncoding is returned when the payload is not base64url encoded UTF-8
	ErrPayloadEncoding = errors.New("credential payload is not base64url text")

	// ErrPayloadFormat is returned when the payload is not a JSON object
	ErrPayloadFormat = errors.New("credential payload is not a JSON object")

	// ErrMissingExpiration is returned when the payload has no exp claim
	ErrMissingExpiration = errors.New("credential payload has no exp claim")
)

// segmentDecoder decodes base64url segments, tolerating trailing padding.
var segmentDecoder = jwt.NewParser(jwt.WithPaddingAllowed())

// Inspection describes a single credential evaluation.
type Inspection struct {
	State     State
	ExpiresAt time.Time // zero unless the payload carried a usable exp
	Err       error     // why the credential is not valid; nil when Valid
}

// Valid reports whether the credential may be admitted
func (i Inspection) Valid() bool {
	return i.State == Valid
}

// Inspect classifies raw against now. It never panics and never fails: every
// anomaly is folded into a non-Valid state.
func Inspect(raw string, now time.Time) (result Inspection) {
	if raw == "" {
		return Inspection{State: Missing}
	}

	defer func() {
		if r := recover(); r != nil {
			result = Inspection{State: Malformed, Err: fmt.Errorf("credential inspection panicked: %v", r)}
		}
	}()

	claims, err := DecodePayload(raw)
	if err != nil {
		return Inspection{State: Malformed, Err: err}
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return Inspection{State: Malformed, Err: fmt.Errorf("%w: %v", ErrMissingExpiration, err)}
	}
	if exp == nil {
		return Inspection{State: Malformed, Err: ErrMissingExpiration}
	}

	if !exp.Time.After(now) {
		return Inspection{
			State:     Expired,
			ExpiresAt: exp.Time,
			Err:       fmt.Errorf("credential expired at %s", exp.Time.UTC().Format(time.RFC3339)),
		}
	}

	return Inspection{State: Valid, ExpiresAt: exp.Time}
}

// DecodePayload splits raw into header.payload.signature and decodes the payload
// segment into a claim map. The header and signature are only checked for presence.
func DecodePayload(raw string) (jwt.MapClaims, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: got %d", ErrSegmentCount, len(parts))
	}
	for _, part := range parts {
		if part == "" {
			return nil, ErrEmptySegment
		}
	}

	payload, err := segmentDecoder.DecodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadEncoding, err)
	}
	if !utf8.Valid(payload) {
		return nil, ErrPayloadEncoding
	}

	var claims jwt.MapClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadFormat, err)
	}
	if claims == nil {
		return nil, ErrPayloadFormat
	}

	return claims, nil
}
