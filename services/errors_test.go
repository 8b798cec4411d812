package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/structsense/dashboard/repositories"
)

func TestNewDomainError(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := NewDomainError(ErrorTypeNotFound, "resource not found", baseErr)

	assert.Equal(t, ErrorTypeNotFound, domainErr.Type)
	assert.Equal(t, "resource not found", domainErr.Message)
	assert.Equal(t, baseErr, domainErr.Err)
	assert.NotNil(t, domainErr.Details)
}

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *DomainError
		wantMsg string
	}{
		{
			name: "error with wrapped error",
			err: &DomainError{
				Type:    ErrorTypeNotFound,
				Message: "device not found",
				Err:     errors.New("db error"),
			},
			wantMsg: "not_found: device not found (db error)",
		},
		{
			name: "error without wrapped error",
			err: &DomainError{
				Type:    ErrorTypeValidation,
				Message: "invalid input",
			},
			wantMsg: "validation: invalid input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := NewDomainError(ErrorTypeInternal, "internal error", baseErr)

	assert.Equal(t, baseErr, errors.Unwrap(domainErr))
}

func TestDomainError_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{"same error type", NewDomainError(ErrorTypeNotFound, "not found", nil), ErrDeviceNotFound, true},
		{"different error type", NewDomainError(ErrorTypeValidation, "validation", nil), ErrDeviceNotFound, false},
		{"not a domain error", NewDomainError(ErrorTypeNotFound, "not found", nil), errors.New("regular error"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

func TestDomainError_WithDetail(t *testing.T) {
	err := NewDomainError(ErrorTypeValidation, "validation error", nil)

	err.WithDetail("field", "email").WithDetail("value", "invalid-email")

	assert.Equal(t, "email", err.Details["field"])
	assert.Equal(t, "invalid-email", err.Details["value"])
}

func TestErrorCheckers(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		checker func(error) bool
		want    bool
	}{
		{"device not found", ErrDeviceNotFound, IsNotFoundError, true},
		{"wrapped user not found", fmt.Errorf("wrapped: %w", ErrUserNotFound), IsNotFoundError, true},
		{"validation is not not-found", ErrInvalidInput, IsNotFoundError, false},
		{"nil is nothing", nil, IsNotFoundError, false},
		{"thresholds", ErrInvalidThresholds, IsValidationError, true},
		{"export format", ErrUnsupportedFormat, IsValidationError, true},
		{"credentials", ErrInvalidCredentials, IsUnauthorizedError, true},
		{"api key", ErrInvalidAPIKey, IsUnauthorizedError, true},
		{"inactive user", ErrInactiveUser, IsUnauthorizedError, true},
		{"forbidden", ErrInsufficientPermissions, IsForbiddenError, true},
		{"login throttled", ErrTooManyLoginAttempts, IsRateLimitError, true},
		{"duplicate uid", ErrDuplicateDeviceUID, IsConflictError, true},
		{"duplicate email", ErrDuplicateEmail, IsConflictError, true},
		{"database", ErrDatabaseError, IsInternalError, true},
		{"database down", ErrDatabaseUnavailable, IsUnavailableError, true},
		{"regular error", errors.New("regular"), IsInternalError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.checker(tt.err))
		})
	}
}

func TestGetErrorType(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"not found", ErrDeviceNotFound, ErrorTypeNotFound},
		{"validation", ErrInvalidInput, ErrorTypeValidation},
		{"rate limit", ErrRateLimitExceeded, ErrorTypeRateLimit},
		{"regular error", errors.New("regular"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetErrorType(tt.err))
		})
	}
}

func TestGetErrorDetails(t *testing.T) {
	err := NewDomainError(ErrorTypeValidation, "validation error", nil)
	err.WithDetail("field", "email").WithDetail("reason", "invalid format")

	details := GetErrorDetails(err)
	require.NotNil(t, details)
	assert.Equal(t, "email", details["field"])
	assert.Equal(t, "invalid format", details["reason"])

	assert.Nil(t, GetErrorDetails(errors.New("regular error")))
}

func TestWrapError(t *testing.T) {
	baseErr := errors.New("base error")
	wrapped := WrapError(ErrorTypeInternal, "wrapped message", baseErr)

	var domainErr *DomainError
	require.True(t, errors.As(wrapped, &domainErr))
	assert.Equal(t, ErrorTypeInternal, domainErr.Type)
	assert.Equal(t, "wrapped message", domainErr.Message)
	assert.Equal(t, baseErr, errors.Unwrap(wrapped))
}

func TestWrapInternal(t *testing.T) {
	baseErr := errors.New("database connection failed")
	wrapped := WrapInternal("failed to connect", baseErr)

	assert.True(t, IsInternalError(wrapped))
	assert.Equal(t, baseErr, errors.Unwrap(wrapped))
}

func TestFromRepository(t *testing.T) {
	notFound := fmt.Errorf("%w: device 7", repositories.ErrNotFound)
	duplicate := fmt.Errorf("%w: device ESP-001", repositories.ErrDuplicate)

	assert.NoError(t, FromRepository(nil, ErrDeviceNotFound, nil))

	err := FromRepository(notFound, ErrDeviceNotFound, ErrDuplicateDeviceUID)
	assert.True(t, IsNotFoundError(err))
	assert.ErrorIs(t, err, repositories.ErrNotFound)
	assert.Contains(t, err.Error(), "device not found")

	err = FromRepository(duplicate, ErrDeviceNotFound, ErrDuplicateDeviceUID)
	assert.True(t, IsConflictError(err))

	// without a conflict mapping, duplicates are internal
	err = FromRepository(duplicate, ErrDeviceNotFound, nil)
	assert.True(t, IsInternalError(err))

	err = FromRepository(errors.New("connection reset"), ErrDeviceNotFound, nil)
	assert.True(t, IsInternalError(err))
}

func TestFromRepository_DoesNotMutateSentinels(t *testing.T) {
	err := FromRepository(fmt.Errorf("%w: x", repositories.ErrNotFound), ErrDeviceNotFound, nil)

	var domainErr *DomainError
	require.True(t, errors.As(err, &domainErr))
	domainErr.WithDetail("device_id", 7)

	assert.Empty(t, ErrDeviceNotFound.Details)
}

func TestErrorTypeCheckersCoverage(t *testing.T) {
	typeCheckers := map[ErrorType]func(error) bool{
		ErrorTypeNotFound:     IsNotFoundError,
		ErrorTypeValidation:   IsValidationError,
		ErrorTypeUnauthorized: IsUnauthorizedError,
		ErrorTypeForbidden:    IsForbiddenError,
		ErrorTypeRateLimit:    IsRateLimitError,
		ErrorTypeConflict:     IsConflictError,
		ErrorTypeInternal:     IsInternalError,
		ErrorTypeUnavailable:  IsUnavailableError,
	}

	for errType, checker := range typeCheckers {
		t.Run(string(errType), func(t *testing.T) {
			err := NewDomainError(errType, "test error", nil)
			assert.True(t, checker(err), "checker should return true for %s", errType)
		})
	}
}
