package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestRedisStoreIncr(t *testing.T) {
	client, _ := setupTestRedis(t)
	store := NewRedisStore(client)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		count, resetAt, err := store.Incr(ctx, "1.2.3.4", time.Minute)
		require.NoError(t, err)
		require.Equal(t, i, count)
		require.True(t, resetAt.After(time.Now()), "reset must be in the future")
	}
}

func TestRedisStoreWindowExpiry(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewRedisStore(client)
	ctx := context.Background()

	count, _, err := store.Incr(ctx, "1.2.3.4", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	mr.FastForward(61 * time.Second)

	count, _, err = store.Incr(ctx, "1.2.3.4", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, count, "expired window should restart the count")
}

func TestRedisStoreSharedBudgetAcrossClients(t *testing.T) {
	client, _ := setupTestRedis(t)
	a := NewRedisStore(client)
	b := NewRedisStore(client)
	ctx := context.Background()

	_, _, err := a.Incr(ctx, "1.2.3.4", time.Minute)
	require.NoError(t, err)
	count, _, err := b.Incr(ctx, "1.2.3.4", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 2, count, "both instances must see one shared counter")
}

func TestRedisStoreErrorSurfaces(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewRedisStore(client)
	mr.Close()

	_, _, err := store.Incr(context.Background(), "1.2.3.4", time.Minute)
	require.Error(t, err)
}

func TestLimiterOverRedisStore(t *testing.T) {
	client, _ := setupTestRedis(t)
	limiter := NewLimiter(NewRedisStore(client), 2, time.Minute, nil)
	ctx := context.Background()

	require.True(t, limiter.Allow(ctx, "a").Allowed)
	require.True(t, limiter.Allow(ctx, "a").Allowed)
	res := limiter.Allow(ctx, "a")
	require.False(t, res.Allowed)
	require.Equal(t, 0, res.Remaining)
}
