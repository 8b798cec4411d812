package middleware

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/structsense/dashboard/tokens"
)

// Context key type to avoid collisions
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"

	// ClaimsKey is the context key for validated token claims
	ClaimsKey contextKey = "claims"

	// UserKey is the context key for the authenticated user
	UserKey contextKey = "user"
)

// GetRequestIDFromContext retrieves the request ID from context.
// Falls back to the ID assigned by chi's RequestID middleware.
func GetRequestIDFromContext(ctx context.Context) string {
	if val := ctx.Value(RequestIDKey); val != nil {
		if requestID, ok := val.(string); ok {
			return requestID
		}
	}
	return chimw.GetReqID(ctx)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetClaimsFromContext retrieves validated claims from context
func GetClaimsFromContext(ctx context.Context) *tokens.ParsedClaims {
	if val := ctx.Value(ClaimsKey); val != nil {
		if claims, ok := val.(*tokens.ParsedClaims); ok {
			return claims
		}
	}
	return nil
}

// WithClaims adds validated claims and the derived user to the context
func WithClaims(ctx context.Context, claims *tokens.ParsedClaims) context.Context {
	ctx = context.WithValue(ctx, ClaimsKey, claims)
	return WithUser(ctx, claims.ToUserContext())
}

// GetUserFromContext retrieves the authenticated user from context
func GetUserFromContext(ctx context.Context) *tokens.UserContext {
	if val := ctx.Value(UserKey); val != nil {
		if user, ok := val.(*tokens.UserContext); ok {
			return user
		}
	}
	return nil
}

// WithUser adds the authenticated user to the context
func WithUser(ctx context.Context, user *tokens.UserContext) context.Context {
	return context.WithValue(ctx, UserKey, user)
}

// GetUserIDFromContext retrieves the authenticated user ID, or nil
func GetUserIDFromContext(ctx context.Context) *uuid.UUID {
	user := GetUserFromContext(ctx)
	if user == nil {
		return nil
	}
	id := user.UserID
	return &id
}
