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

func newTestRateLimiter(t *testing.T) (*adapter.RateLimiter, *miniredis.Miniredis) {
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

	return adapter.NewRateLimiter(client.RDB), mr
}

func TestRateLimiter_CheckAndIncrement(t *testing.T) {
	t.Run("allows up to the limit then rejects", func(t *testing.T) {
		rl, _ := newTestRateLimiter(t)
		ctx := context.Background()
		key := "code_send:phone:abc"

		for i := 0; i < 3; i++ {
			allowed, err := rl.CheckAndIncrement(ctx, key, 3, 60)
			require.NoError(t, err)
			assert.True(t, allowed, "request %d should be allowed", i+1)
		}

		allowed, err := rl.CheckAndIncrement(ctx, key, 3, 60)
		require.NoError(t, err)
		assert.False(t, allowed)
	})

	t.Run("window starts on the first hit", func(t *testing.T) {
		rl, mr := newTestRateLimiter(t)
		ctx := context.Background()
		key := "code_send:phone:def"

		_, err := rl.CheckAndIncrement(ctx, key, 10, 900)
		require.NoError(t, err)
		assert.Equal(t, 900*time.Second, mr.TTL(key))

		mr.FastForward(100 * time.Second)

		_, err = rl.CheckAndIncrement(ctx, key, 10, 900)
		require.NoError(t, err)
		assert.Equal(t, 800*time.Second, mr.TTL(key), "later hits keep the window")
	})

	t.Run("keys are independent", func(t *testing.T) {
		rl, _ := newTestRateLimiter(t)
		ctx := context.Background()

		_, err := rl.CheckAndIncrement(ctx, "code_send:phone:a", 1, 60)
		require.NoError(t, err)

		allowed, err := rl.CheckAndIncrement(ctx, "code_send:phone:b", 1, 60)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("counter resets after the window", func(t *testing.T) {
		rl, mr := newTestRateLimiter(t)
		ctx := context.Background()
		key := "code_send:phone:ghi"

		_, err := rl.CheckAndIncrement(ctx, key, 1, 60)
		require.NoError(t, err)
		allowed, err := rl.CheckAndIncrement(ctx, key, 1, 60)
		require.NoError(t, err)
		require.False(t, allowed)

		mr.FastForward(61 * time.Second)

		allowed, err = rl.CheckAndIncrement(ctx, key, 1, 60)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("fails closed when redis is down", func(t *testing.T) {
		rl, mr := newTestRateLimiter(t)
		mr.SetError("ERR simulated outage")

		allowed, err := rl.CheckAndIncrement(context.Background(), "code_send:phone:jkl", 3, 60)

		require.Error(t, err)
		assert.False(t, allowed)
	})
}

func TestRateLimiter_Lockout(t *testing.T) {
	t.Run("not locked by default", func(t *testing.T) {
		rl, _ := newTestRateLimiter(t)

		locked, err := rl.CheckLockout(context.Background(), "code_verify:lockout:abc")

		require.NoError(t, err)
		assert.False(t, locked)
	})

	t.Run("set lockout then expire", func(t *testing.T) {
		rl, mr := newTestRateLimiter(t)
		ctx := context.Background()
		key := "code_verify:lockout:def"

		require.NoError(t, rl.SetLockout(ctx, key, 900))
		assert.Equal(t, 900*time.Second, mr.TTL(key))

		locked, err := rl.CheckLockout(ctx, key)
		require.NoError(t, err)
		assert.True(t, locked)

		mr.FastForward(901 * time.Second)

		locked, err = rl.CheckLockout(ctx, key)
		require.NoError(t, err)
		assert.False(t, locked)
	})

	t.Run("reads as locked when redis is down", func(t *testing.T) {
		rl, mr := newTestRateLimiter(t)
		mr.SetError("ERR simulated outage")

		locked, err := rl.CheckLockout(context.Background(), "code_verify:lockout:ghi")

		require.Error(t, err)
		assert.True(t, locked)
	})
}
