package redis

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/brandcraft/server/internal/model"
	"github.com/brandcraft/server/internal/port/outbound"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient connects to CREATIVE_TEST_REDIS_ADDR or skips the test.
func newTestClient(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("CREATIVE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CREATIVE_TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, client.Ping(ctx).Err())
	require.NoError(t, client.FlushDB(ctx).Err())

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	return client
}

func TestFingerprintStore(t *testing.T) {
	client := newTestClient(t)
	store := NewFingerprintStore(client)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	entry := &model.CacheEntry{
		Result:     "Fresh roast every Tuesday.",
		Validation: model.ValidationResult{Score: 95, Passed: true, Issues: []string{}},
		Usage:      model.Usage{InputTokens: 10, OutputTokens: 20},
		CreatedAt:  now,
		ExpiresAt:  now.Add(time.Hour),
	}

	t.Run("miss", func(t *testing.T) {
		got, err := store.Get(ctx, "absent")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("set get delete", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "fp1", entry))

		got, err := store.Get(ctx, "fp1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, entry.Result, got.Result)
		assert.True(t, entry.ExpiresAt.Equal(got.ExpiresAt))

		n, err := store.Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		require.NoError(t, store.Delete(ctx, "fp1"))
		got, err = store.Get(ctx, "fp1")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("sweep removes expired", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "live", entry))
		stale := *entry
		stale.ExpiresAt = now.Add(-time.Hour)
		require.NoError(t, store.Set(ctx, "stale", &stale))

		removed, err := store.Sweep(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		got, err := store.Get(ctx, "live")
		require.NoError(t, err)
		assert.NotNil(t, got)
	})
}

func TestBalanceStore(t *testing.T) {
	client := newTestClient(t)
	store := NewBalanceStore(client)
	ctx := context.Background()

	_, err := store.Read(ctx, "nobody")
	assert.ErrorIs(t, err, outbound.ErrCallerNotFound)
	_, err = store.Debit(ctx, "nobody", 1)
	assert.ErrorIs(t, err, outbound.ErrCallerNotFound)

	balance, err := store.Credit(ctx, "c1", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)

	balance, err = store.Debit(ctx, "c1", 4)
	require.NoError(t, err)
	assert.Equal(t, int64(6), balance)

	_, err = store.Debit(ctx, "c1", 7)
	assert.ErrorIs(t, err, outbound.ErrInsufficientBalance)

	t.Run("concurrent debits never go negative", func(t *testing.T) {
		_, err := store.Credit(ctx, "c2", 10)
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 25; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = store.Debit(ctx, "c2", 1)
			}()
		}
		wg.Wait()

		balance, err := store.Read(ctx, "c2")
		require.NoError(t, err)
		assert.Equal(t, int64(0), balance)
	})
}

func TestSettlementGuard(t *testing.T) {
	client := newTestClient(t)
	guard := NewSettlementGuard(client, time.Hour)
	ctx := context.Background()
	id := uuid.NewString()

	ok, err := guard.Claim(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = guard.Claim(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, guard.Release(ctx, id))
	ok, err = guard.Claim(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRateLimiter(t *testing.T) {
	client := newTestClient(t)
	limiter := NewRateLimiter(client)
	ctx := context.Background()
	key := "caller:" + uuid.NewString()

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, key, 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i+1)
	}

	ok, err := limiter.Allow(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	remaining, err := limiter.Remaining(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	remaining, err = limiter.Remaining(ctx, "caller:"+uuid.NewString(), 3, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 3, remaining)
}
