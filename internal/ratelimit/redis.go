package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore backs rate windows with Redis INCR + EXPIRE, letting multiple
// instances share one budget per client key.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed window store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "intake:rl"}
}

// Incr implements Store.
func (s *RedisStore) Incr(ctx context.Context, key string, dur time.Duration) (int, time.Time, error) {
	rkey := fmt.Sprintf("%s:%s", s.prefix, key)

	count, err := s.client.Incr(ctx, rkey).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("ratelimit: incr %s: %w", rkey, err)
	}

	// Start the window on first increment.
	if count == 1 {
		if err := s.client.Expire(ctx, rkey, dur).Err(); err != nil {
			return 0, time.Time{}, fmt.Errorf("ratelimit: expire %s: %w", rkey, err)
		}
	}

	ttl, err := s.client.TTL(ctx, rkey).Result()
	if err != nil || ttl < 0 {
		ttl = dur
	}
	return int(count), time.Now().Add(ttl), nil
}
