package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrEmptySecret is returned when an issuer or validator is built without a key
var ErrEmptySecret = errors.New("signing secret is empty")

// Issuer signs HS256 access tokens
type Issuer struct {
	secret   []byte
	issuer   string
	lifetime time.Duration
	now      func() time.Time
}

// IssuerOption customizes an Issuer
type IssuerOption func(*Issuer)

// WithIssuerClock overrides the clock used for iat and exp
func WithIssuerClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.now = now
	}
}

// NewIssuer creates a new Issuer
func NewIssuer(secret, issuer string, lifetime time.Duration, opts ...IssuerOption) (*Issuer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if lifetime <= 0 {
		return nil, fmt.Errorf("token lifetime must be positive, got %s", lifetime)
	}

	i := &Issuer{
		secret:   []byte(secret),
		issuer:   issuer,
		lifetime: lifetime,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Lifetime returns how long issued tokens stay valid
func (i *Issuer) Lifetime() time.Duration {
	return i.lifetime
}

// Issue signs a token for the given user and returns it with its expiry
func (i *Issuer) Issue(userID uuid.UUID, email, role string) (string, time.Time, error) {
	now := i.now().Truncate(time.Second)
	expiresAt := now.Add(i.lifetime)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email: email,
		Role:  role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, expiresAt, nil
}
