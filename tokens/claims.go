package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrMissingClaim is returned when a required claim is missing
	ErrMissingClaim = errors.New("missing required claim")
)

// Claims are the claims carried by dashboard access tokens
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

// ParsedClaims represents parsed and validated claims
type ParsedClaims struct {
	Sub       uuid.UUID
	Email     string
	Role      string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ExtractClaims extracts and parses claims from a token without verifying
// its signature or expiry. Used by diagnostics that only need to read a token.
func ExtractClaims(tokenString string) (*ParsedClaims, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())

	claims := &Claims{}
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	return parseClaims(claims)
}

func parseClaims(claims *Claims) (*ParsedClaims, error) {
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	sub, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("invalid sub UUID: %w", err)
	}

	parsed := &ParsedClaims{
		Sub:    sub,
		Email:  claims.Email,
		Role:   claims.Role,
		Issuer: claims.Issuer,
	}
	if claims.IssuedAt != nil {
		parsed.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		parsed.ExpiresAt = claims.ExpiresAt.Time
	}

	return parsed, nil
}

// UserContext carries the authenticated user through the request pipeline
type UserContext struct {
	UserID uuid.UUID
	Email  string
	Role   string
}

// ToUserContext converts ParsedClaims to UserContext
func (p *ParsedClaims) ToUserContext() *UserContext {
	return &UserContext{
		UserID: p.Sub,
		Email:  p.Email,
		Role:   p.Role,
	}
}

// IsAdmin checks if the user has admin role
func (u *UserContext) IsAdmin() bool {
	return u.Role == "admin"
}

// HasAnyRole checks if the user has any of the specified roles
func (u *UserContext) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if u.Role == role {
			return true
		}
	}
	return false
}
