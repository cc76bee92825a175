package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aelexs/authkit/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"ErrUnavailable", domain.ErrUnavailable, true},
		{"ErrNetwork", domain.ErrNetwork, true},
		{"ErrRateLimited", domain.ErrRateLimited, true},
		{"ErrWrongCode", domain.ErrWrongCode, false},
		{"ErrAccountConflict", domain.ErrAccountConflict, false},
		{"wrapped ErrNetwork", fmt.Errorf("context: %w", domain.ErrNetwork), true},
		{"random error", errors.New("something else"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := domain.IsRetryable(tt.err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsClientError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"ErrInvalidInput", domain.ErrInvalidInput, true},
		{"ErrInvalidPhoneNumber", domain.ErrInvalidPhoneNumber, true},
		{"ErrWrongCode", domain.ErrWrongCode, true},
		{"ErrAccountConflict", domain.ErrAccountConflict, true},
		{"ErrNotFound", domain.ErrNotFound, true},
		{"ErrNetwork", domain.ErrNetwork, false},
		{"ErrRateLimited", domain.ErrRateLimited, false},
		{"ErrAuthorizationFailure", domain.ErrAuthorizationFailure, false},
		{"wrapped ErrWrongCode", fmt.Errorf("context: %w", domain.ErrWrongCode), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := domain.IsClientError(tt.err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestErrorMessages(t *testing.T) {
	// Error results surface these strings to callers unchanged.
	assert.Equal(t, "invalid phone number", domain.ErrInvalidPhoneNumber.Error())
	assert.Equal(t, "too many requests", domain.ErrRateLimited.Error())
	assert.Equal(t, "network error", domain.ErrNetwork.Error())
	assert.Equal(t, "authorization failure", domain.ErrAuthorizationFailure.Error())
	assert.Equal(t, "wrong verification code", domain.ErrWrongCode.Error())
	assert.Equal(t, "user already exists", domain.ErrAccountConflict.Error())
}
