package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/structsense/dashboard/tokens"
	"github.com/structsense/dashboard/utils"
	"go.uber.org/zap"
)

// TokenValidator defines the interface for validating access tokens
type TokenValidator interface {
	// ValidateToken validates a JWT and returns its claims
	ValidateToken(ctx context.Context, token string) (*tokens.ParsedClaims, error)
}

// AuthMiddleware provides authentication middleware functionality
type AuthMiddleware struct {
	validator  TokenValidator
	cookieName string
	logger     *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware. The session cookie named
// cookieName is accepted when no Authorization header is present.
func NewAuthMiddleware(validator TokenValidator, cookieName string, logger *zap.Logger) *AuthMiddleware {
	if cookieName == "" {
		cookieName = DefaultSessionCookieName
	}
	return &AuthMiddleware{
		validator:  validator,
		cookieName: cookieName,
		logger:     logger,
	}
}

// RequireAuth is a middleware that requires a valid JWT token
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		token := m.extractToken(r)
		if token == "" {
			m.logger.Warn("missing token",
				zap.String("request_id", requestID))
			_ = utils.WriteUnauthorized(w, "Missing or invalid authorization")
			return
		}

		claims, err := m.validator.ValidateToken(ctx, token)
		if err != nil {
			m.logger.Warn("token validation failed",
				zap.String("request_id", requestID),
				zap.Error(err))
			_ = utils.WriteUnauthorized(w, "Invalid or expired token")
			return
		}

		ctx = WithClaims(ctx, claims)

		m.logger.Debug("authentication successful",
			zap.String("request_id", requestID),
			zap.String("sub", claims.Sub.String()),
			zap.String("role", claims.Role))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole is a middleware that requires one of the given roles.
// It must run after RequireAuth.
func (m *AuthMiddleware) RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestIDFromContext(ctx)

			user := GetUserFromContext(ctx)
			if user == nil {
				m.logger.Error("user not found in context",
					zap.String("request_id", requestID))
				_ = utils.WriteUnauthorized(w, "Authentication required")
				return
			}

			if !user.HasAnyRole(roles...) {
				m.logger.Warn("insufficient permissions",
					zap.String("request_id", requestID),
					zap.Strings("required_roles", roles),
					zap.String("user_role", user.Role))
				_ = utils.WriteForbidden(w, "Insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractToken extracts the JWT from the Authorization header or the session cookie.
// The Authorization header takes precedence when both are present.
func (m *AuthMiddleware) extractToken(r *http.Request) string {
	if token := extractBearerToken(r); token != "" {
		return token
	}
	if cookie, err := r.Cookie(m.cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}

// extractBearerToken extracts the Bearer token from the Authorization header
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
