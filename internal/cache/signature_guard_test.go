package cache_test

import (
	"context"
	"testing"
	"time"

	"raffle-ledger/internal/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignatureGuard_Redis(t *testing.T) {
	ctx := context.Background()
	guard := cache.NewRedisSignatureGuard(testRdb)
	clearRedis(ctx)
	t.Cleanup(func() { clearRedis(ctx) })

	t.Run("Success - first claim", func(t *testing.T) {
		defer clearRedis(ctx)
		fresh, err := guard.Claim(ctx, "0xabc", time.Minute)
		require.NoError(t, err)
		assert.True(t, fresh)

		ttl, err := testRdb.TTL(ctx, "auth:used:0xabc").Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, 50*time.Second)
	})

	t.Run("Failed - second claim", func(t *testing.T) {
		defer clearRedis(ctx)
		_, err := guard.Claim(ctx, "0xabc", time.Minute)
		require.NoError(t, err)

		fresh, err := guard.Claim(ctx, "0xabc", time.Minute)
		require.NoError(t, err)
		assert.False(t, fresh)

		fresh, err = guard.Claim(ctx, "0xdef", time.Minute)
		require.NoError(t, err)
		assert.True(t, fresh)
	})
}

func TestSignatureGuard_Memory(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	guard := cache.NewMemorySignatureGuard(func() time.Time { return now })

	fresh, err := guard.Claim(ctx, "0xabc", time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = guard.Claim(ctx, "0xabc", time.Minute)
	require.NoError(t, err)
	assert.False(t, fresh)

	// 過期後同一個 key 可以再次領取
	now = now.Add(time.Minute)
	fresh, err = guard.Claim(ctx, "0xabc", time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh)
}
