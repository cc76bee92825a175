package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/aelexs/authkit/internal/identity"
	redisclient "github.com/aelexs/authkit/internal/redis"
)

// revokedPrefix keys revoked token IDs: revoked_jti:{jti}.
const revokedPrefix = "revoked_jti:"

var _ identity.RevocationStore = (*RevocationStore)(nil)

// RevocationStore keeps revoked ID token JTIs in Redis until the token
// would have expired anyway.
type RevocationStore struct {
	cmd redisclient.Cmdable
}

// NewRevocationStore creates a RevocationStore issuing commands through cmd.
func NewRevocationStore(cmd redisclient.Cmdable) *RevocationStore {
	return &RevocationStore{cmd: cmd}
}

// Revoke marks jti as revoked for ttl.
func (s *RevocationStore) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	ctx, span := startRedisSpan(ctx, "redis.revocation.revoke", "SET")
	defer span.End()

	if err := s.cmd.Set(ctx, revokedPrefix+jti, "1", ttl).Err(); err != nil {
		return redisError(span, fmt.Errorf("revoke jti %q: %w", jti, err))
	}
	return nil
}

// IsRevoked reports whether jti has been revoked. On a Redis error it
// returns true with the error.
func (s *RevocationStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	ctx, span := startRedisSpan(ctx, "redis.revocation.is_revoked", "EXISTS")
	defer span.End()

	n, err := s.cmd.Exists(ctx, revokedPrefix+jti).Result()
	if err != nil {
		return true, redisError(span, fmt.Errorf("check revocation %q: %w", jti, err))
	}
	return n > 0, nil
}
