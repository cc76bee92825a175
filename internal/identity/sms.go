package identity

import (
	"context"
	"time"
)

// SMSProvider abstracts verification code delivery for vendor independence.
type SMSProvider interface {
	// SendCode delivers code to the given phone number.
	// Returns nil on successful delivery acceptance (not necessarily receipt).
	SendCode(ctx context.Context, phone, code string) error
}

// RateLimiter checks and enforces code dispatch limits.
type RateLimiter interface {
	CheckAndIncrement(ctx context.Context, key string, limit, windowSeconds int) (bool, error)
	CheckLockout(ctx context.Context, key string) (bool, error)
	SetLockout(ctx context.Context, key string, ttlSeconds int) error
}

// RevocationStore records ID tokens invalidated before their expiry.
// IsRevoked reports true alongside any error.
type RevocationStore interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

func sendKey(phoneHash string) string    { return "code_send:phone:" + phoneHash }
func lockoutKey(phoneHash string) string { return "code_verify:lockout:" + phoneHash }
