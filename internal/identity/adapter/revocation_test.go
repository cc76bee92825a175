package adapter_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aelexs/authkit/internal/identity/adapter"
	redisclient "github.com/aelexs/authkit/internal/redis"
)

func newTestRevocationStore(t *testing.T) (*adapter.RevocationStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redisclient.NewClient(redisclient.Config{
		Addr:         mr.Addr(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})
	t.Cleanup(func() {
		require.NoError(t, client.Close())
	})

	return adapter.NewRevocationStore(client.RDB), mr
}

func TestRevocationStore_Revoke(t *testing.T) {
	t.Run("stores the jti with the given ttl", func(t *testing.T) {
		store, mr := newTestRevocationStore(t)

		require.NoError(t, store.Revoke(context.Background(), "jti-1", 90*time.Second))

		assert.True(t, mr.Exists("revoked_jti:jti-1"))
		assert.Equal(t, 90*time.Second, mr.TTL("revoked_jti:jti-1"))
	})

	t.Run("revoking twice succeeds", func(t *testing.T) {
		store, mr := newTestRevocationStore(t)
		ctx := context.Background()

		require.NoError(t, store.Revoke(ctx, "jti-2", time.Minute))
		require.NoError(t, store.Revoke(ctx, "jti-2", time.Minute))

		assert.True(t, mr.Exists("revoked_jti:jti-2"))
	})

	t.Run("returns error when redis fails", func(t *testing.T) {
		store, mr := newTestRevocationStore(t)
		mr.SetError("ERR simulated outage")

		err := store.Revoke(context.Background(), "jti-3", time.Minute)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "revoke jti")
	})
}

func TestRevocationStore_IsRevoked(t *testing.T) {
	t.Run("lifecycle: unknown, revoked, expired", func(t *testing.T) {
		store, mr := newTestRevocationStore(t)
		ctx := context.Background()

		revoked, err := store.IsRevoked(ctx, "jti-4")
		require.NoError(t, err)
		assert.False(t, revoked)

		require.NoError(t, store.Revoke(ctx, "jti-4", time.Minute))
		revoked, err = store.IsRevoked(ctx, "jti-4")
		require.NoError(t, err)
		assert.True(t, revoked)

		mr.FastForward(61 * time.Second)
		revoked, err = store.IsRevoked(ctx, "jti-4")
		require.NoError(t, err)
		assert.False(t, revoked)
	})

	t.Run("other jtis are unaffected", func(t *testing.T) {
		store, _ := newTestRevocationStore(t)
		ctx := context.Background()

		require.NoError(t, store.Revoke(ctx, "jti-a", time.Minute))

		revoked, err := store.IsRevoked(ctx, "jti-b")
		require.NoError(t, err)
		assert.False(t, revoked)
	})

	t.Run("fails closed when redis fails", func(t *testing.T) {
		store, mr := newTestRevocationStore(t)
		mr.SetError("ERR simulated outage")

		revoked, err := store.IsRevoked(context.Background(), "jti-5")

		require.Error(t, err)
		assert.True(t, revoked)
	})
}
