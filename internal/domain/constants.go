package domain

import "time"

// Request codes route asynchronous host results back to the provider that
// started them. Each registered provider must claim a distinct value.
const (
	RequestCodePhone          = 767 // "SMS" on a phone keypad
	RequestCodeFederated      = 474 // "GSI"
	RequestCodeDelegatedPhone = 372 // "EPA"
)

// Phone verification limits.
// These are compiled defaults that can be overridden via configuration.
const (
	// PhoneVerificationTimeout bounds how long the backend waits for automatic
	// code retrieval on the device before falling back to manual entry.
	PhoneVerificationTimeout = 30 * time.Second

	// Development backend limits
	VerificationCodeLength   = 6
	VerificationCodeValidity = 5 * time.Minute  // How long a dispatched code can be confirmed
	CodeSendLimitPerPhone    = 3                // Max non-resend dispatches per phone per window
	CodeSendWindow           = 15 * time.Minute // Rate limit window for code dispatch
	SessionTokenLifetime     = 1 * time.Hour    // ID token validity
	MaxVerifyAttempts        = 5                // Wrong codes before the number is locked out
	VerifyLockoutDuration    = 15 * time.Minute // Lockout after too many wrong codes

	// Timeout contracts
	RedisTimeout = 2 * time.Second // Max time for Redis operations

	// Graceful shutdown
	ShutdownHTTPTimeout = 10 * time.Second // Max time to drain the health endpoint
	ShutdownOTELTimeout = 5 * time.Second  // Max time to flush telemetry on exit
)

// ResultKind labels the variant of a terminal login result for metrics and logs.
type ResultKind string

const (
	ResultKindSuccess      ResultKind = "success"
	ResultKindError        ResultKind = "error"
	ResultKindCancellation ResultKind = "cancellation"
)
