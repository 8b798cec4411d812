package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type TestStruct struct {
	Name  string `validate:"required"`
	Email string `validate:"required,email"`
	Age   int    `validate:"required,gte=0,lte=150"`
}

func TestValidateStruct(t *testing.T) {
	t.Run("valid struct", func(t *testing.T) {
		s := TestStruct{
			Name:  "John Doe",
			Email: "john@example.com",
			Age:   30,
		}

		err := ValidateStruct(&s)
		assert.NoError(t, err)
	})

	t.Run("missing required field", func(t *testing.T) {
		s := TestStruct{
			Email: "john@example.com",
			Age:   30,
		}

		err := ValidateStruct(&s)
		assert.Error(t, err)
		assert.True(t, IsValidationError(err))

		fields := GetValidationFields(err)
		assert.Contains(t, fields, "Name")
	})

	t.Run("invalid email", func(t *testing.T) {
		s := TestStruct{
			Name:  "John Doe",
			Email: "invalid-email",
			Age:   30,
		}

		err := ValidateStruct(&s)
		assert.Error(t, err)
		assert.True(t, IsValidationError(err))

		fields := GetValidationFields(err)
		assert.Contains(t, fields, "Email")
	})

	t.Run("age out of range", func(t *testing.T) {
		s := TestStruct{
			Name:  "John Doe",
			Email: "john@example.com",
			Age:   200,
		}

		err := ValidateStruct(&s)
		assert.Error(t, err)
		assert.True(t, IsValidationError(err))

		fields := GetValidationFields(err)
		assert.Contains(t, fields, "Age")
	})
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name      string
		email     string
		wantError bool
	}{
		{
			name:      "valid email",
			email:     "user@example.com",
			wantError: false,
		},
		{
			name:      "valid email with subdomain",
			email:     "user@mail.example.com",
			wantError: false,
		},
		{
			name:      "valid email with plus",
			email:     "user+tag@example.com",
			wantError: false,
		},
		{
			name:      "invalid email - no @",
			email:     "userexample.com",
			wantError: true,
		},
		{
			name:      "invalid email - no domain",
			email:     "user@",
			wantError: true,
		},
		{
			name:      "invalid email - no TLD",
			email:     "user@example",
			wantError: true,
		},
		{
			name:      "empty string",
			email:     "",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewValidationError(t *testing.T) {
	t.Run("creates validation error with field details", func(t *testing.T) {
		s := TestStruct{
			Email: "invalid-email",
			Age:   200,
		}

		err := ValidateStruct(&s)
		require.Error(t, err)

		validationErr, ok := err.(*ValidationError)
		require.True(t, ok)

		assert.Equal(t, "Validation failed", validationErr.Message)
		assert.NotEmpty(t, validationErr.Fields)
		assert.Contains(t, validationErr.Fields, "Name")
		assert.Contains(t, validationErr.Fields, "Email")
		assert.Contains(t, validationErr.Fields, "Age")
	})
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{
		Message: "Test validation error",
		Fields: map[string]string{
			"field1": "error1",
		},
	}

	assert.Equal(t, "Test validation error", err.Error())
}

func TestIsValidationError(t *testing.T) {
	t.Run("is validation error", func(t *testing.T) {
		err := &ValidationError{
			Message: "test",
			Fields:  map[string]string{},
		}

		assert.True(t, IsValidationError(err))
	})

	t.Run("is not validation error", func(t *testing.T) {
		err := assert.AnError

		assert.False(t, IsValidationError(err))
	})
}

func TestGetValidationFields(t *testing.T) {
	t.Run("gets fields from validation error", func(t *testing.T) {
		fields := map[string]string{
			"field1": "error1",
			"field2": "error2",
		}
		err := &ValidationError{
			Message: "test",
			Fields:  fields,
		}

		extracted := GetValidationFields(err)
		assert.Equal(t, fields, extracted)
	})

	t.Run("returns nil for non-validation error", func(t *testing.T) {
		err := assert.AnError

		extracted := GetValidationFields(err)
		assert.Nil(t, extracted)
	})
}

type deviceRequest struct {
	DeviceUID string `json:"device_uid" validate:"required,max=64,device_uid"`
	Name      string `json:"name,omitempty" validate:"required"`
	Internal  string `json:"-" validate:"required"`
}

func TestValidateStruct_JSONFieldNames(t *testing.T) {
	err := ValidateStruct(&deviceRequest{})
	require.Error(t, err)

	fields := GetValidationFields(err)
	assert.Equal(t, "device_uid is required", fields["device_uid"])
	assert.Equal(t, "name is required", fields["name"])
	assert.Contains(t, fields, "Internal")
}

func TestValidateStruct_DeviceUID(t *testing.T) {
	tests := []struct {
		uid   string
		valid bool
	}{
		{"SENSOR-001", true},
		{"bldg.a:floor_2-07", true},
		{"0f3a", true},
		{"-leading-dash", false},
		{"has space", false},
		{"slash/in/uid", false},
	}

	for _, tt := range tests {
		t.Run(tt.uid, func(t *testing.T) {
			err := ValidateStruct(&deviceRequest{DeviceUID: tt.uid, Name: "n", Internal: "x"})
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, GetValidationFields(err)["device_uid"], "may only contain")
		})
	}
}
