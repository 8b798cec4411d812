package services

import (
	"errors"
	"fmt"

	"github.com/structsense/dashboard/repositories"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeRateLimit    ErrorType = "rate_limit"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeInternal     ErrorType = "internal"
	ErrorTypeUnavailable  ErrorType = "unavailable"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables. They are matched by type through errors.Is;
// services build fresh errors with NewDomainError when attaching details.

var (
	// Not Found Errors
	ErrUserNotFound     = NewDomainError(ErrorTypeNotFound, "user not found", nil)
	ErrDeviceNotFound   = NewDomainError(ErrorTypeNotFound, "device not found", nil)
	ErrAuditLogNotFound = NewDomainError(ErrorTypeNotFound, "audit log not found", nil)

	// Validation Errors
	ErrInvalidInput       = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrInvalidThresholds  = NewDomainError(ErrorTypeValidation, "invalid threshold profile", nil)
	ErrInvalidEmail       = NewDomainError(ErrorTypeValidation, "invalid email format", nil)
	ErrWeakPassword       = NewDomainError(ErrorTypeValidation, "password does not meet requirements", nil)
	ErrUnsupportedFormat  = NewDomainError(ErrorTypeValidation, "unsupported export format", nil)
	ErrInvalidTimeRange   = NewDomainError(ErrorTypeValidation, "invalid time range", nil)
	ErrInvalidStatusValue = NewDomainError(ErrorTypeValidation, "invalid reading status", nil)

	// Authorization Errors
	ErrUnauthorized       = NewDomainError(ErrorTypeUnauthorized, "unauthorized", nil)
	ErrInvalidCredentials = NewDomainError(ErrorTypeUnauthorized, "incorrect email or password", nil)
	ErrInactiveUser       = NewDomainError(ErrorTypeUnauthorized, "inactive user", nil)
	ErrInvalidAPIKey      = NewDomainError(ErrorTypeUnauthorized, "invalid API key", nil)
	ErrInvalidToken       = NewDomainError(ErrorTypeUnauthorized, "invalid authentication token", nil)
	ErrTokenExpired       = NewDomainError(ErrorTypeUnauthorized, "authentication token expired", nil)

	// Permission Errors
	ErrForbidden               = NewDomainError(ErrorTypeForbidden, "access forbidden", nil)
	ErrInsufficientPermissions = NewDomainError(ErrorTypeForbidden, "insufficient permissions", nil)

	// Rate Limit Errors
	ErrRateLimitExceeded    = NewDomainError(ErrorTypeRateLimit, "rate limit exceeded", nil)
	ErrTooManyLoginAttempts = NewDomainError(ErrorTypeRateLimit, "too many failed login attempts", nil)

	// Conflict Errors
	ErrDuplicateEmail     = NewDomainError(ErrorTypeConflict, "email already registered", nil)
	ErrDuplicateDeviceUID = NewDomainError(ErrorTypeConflict, "device UID already registered", nil)

	// Internal Errors
	ErrInternal          = NewDomainError(ErrorTypeInternal, "internal server error", nil)
	ErrDatabaseError     = NewDomainError(ErrorTypeInternal, "database error", nil)
	ErrTransactionFailed = NewDomainError(ErrorTypeInternal, "transaction failed", nil)

	// Dependency Errors
	ErrDatabaseUnavailable = NewDomainError(ErrorTypeUnavailable, "database unavailable", nil)
)

// Error type checking helper functions

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeNotFound
	}
	return false
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeValidation
	}
	return false
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeUnauthorized
	}
	return false
}

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeForbidden
	}
	return false
}

// IsRateLimitError checks if an error is a rate limit error
func IsRateLimitError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeRateLimit
	}
	return false
}

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeConflict
	}
	return false
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeInternal
	}
	return false
}

// IsUnavailableError checks if an error is a dependency outage
func IsUnavailableError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeUnavailable
	}
	return false
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// FromRepository converts a repository error into a domain error. notFound and
// conflict are the errors reported for repositories.ErrNotFound and
// repositories.ErrDuplicate; anything else becomes an internal error.
func FromRepository(err error, notFound, conflict *DomainError) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrNotFound) && notFound != nil:
		return NewDomainError(notFound.Type, notFound.Message, err)
	case errors.Is(err, repositories.ErrDuplicate) && conflict != nil:
		return NewDomainError(conflict.Type, conflict.Message, err)
	}
	return WrapInternal(ErrDatabaseError.Message, err)
}
