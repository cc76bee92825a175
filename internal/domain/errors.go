package domain

import "errors"

// Sentinel errors for domain error conditions.
// Use errors.Is() for matching - never compare error strings.
var (
	// Resource errors
	ErrNotFound      = errors.New("resource not found")
	ErrAlreadyExists = errors.New("resource already exists")

	// Validation errors
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidPhoneNumber = errors.New("invalid phone number")

	// Attempt outcome kinds. Every Error result carries exactly one of these.
	ErrRateLimited          = errors.New("too many requests")
	ErrNetwork              = errors.New("network error")
	ErrAuthorizationFailure = errors.New("authorization failure")
	ErrWrongCode            = errors.New("wrong verification code")
	ErrAccountConflict      = errors.New("user already exists")
	ErrCancelled            = errors.New("login cancelled")

	// Operational errors
	ErrUnavailable = errors.New("service temporarily unavailable")

	// Provider wiring errors
	ErrProviderNotConfigured = errors.New("provider is not configured")
	ErrRequestCodeConflict   = errors.New("request code already claimed by another provider")
	ErrProviderTypeMismatch  = errors.New("registered provider has a different type")

	// Configuration errors
	ErrConfigRequired = errors.New("required configuration key missing")
)

// IsRetryable returns true if the error represents a transient condition
// that may succeed if the user tries again unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrNetwork) ||
		errors.Is(err, ErrRateLimited)
}

// clientErrors enumerates all domain errors caused by what the user entered.
var clientErrors = []error{
	ErrInvalidInput,
	ErrInvalidPhoneNumber,
	ErrWrongCode,
	ErrAccountConflict,
	ErrNotFound,
}

// IsClientError returns true if the error represents a client-side issue
// that will not succeed on retry without the user changing their input.
func IsClientError(err error) bool {
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
