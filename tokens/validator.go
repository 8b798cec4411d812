package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when the token is invalid
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when the token has expired
	ErrTokenExpired = errors.New("token expired")
)

// Validator verifies HS256 access tokens signed by an Issuer with the same secret
type Validator struct {
	secret []byte
	parser *jwt.Parser
}

// ValidatorOption customizes a Validator
type ValidatorOption func(*validatorOptions)

type validatorOptions struct {
	issuer string
	now    func() time.Time
}

// WithExpectedIssuer rejects tokens whose iss differs
func WithExpectedIssuer(issuer string) ValidatorOption {
	return func(o *validatorOptions) {
		o.issuer = issuer
	}
}

// WithValidatorClock overrides the clock used for exp checks
func WithValidatorClock(now func() time.Time) ValidatorOption {
	return func(o *validatorOptions) {
		o.now = now
	}
}

// NewValidator creates a new Validator
func NewValidator(secret string, opts ...ValidatorOption) (*Validator, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	o := &validatorOptions{}
	for _, opt := range opts {
		opt(o)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if o.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(o.issuer))
	}
	if o.now != nil {
		parserOpts = append(parserOpts, jwt.WithTimeFunc(o.now))
	}

	return &Validator{
		secret: []byte(secret),
		parser: jwt.NewParser(parserOpts...),
	}, nil
}

// ValidateToken verifies signature and expiry and returns the parsed claims
func (v *Validator) ValidateToken(ctx context.Context, tokenString string) (*ParsedClaims, error) {
	token, err := v.parser.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	parsed, err := parseClaims(claims)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return parsed, nil
}
