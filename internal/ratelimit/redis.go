package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/Daseanle/ai-navigator-pro-sub002/internal/cache"
)

// RedisStore backs the counter with a shared Redis instance so multiple API
// processes enforce one global limit. Window expiry rides on the key TTL.
type RedisStore struct {
	redis *cache.Redis
}

// NewRedisStore creates a Redis-backed counter store
func NewRedisStore(redis *cache.Redis) *RedisStore {
	return &RedisStore{redis: redis}
}

// Incr counts one request via INCR, attaching the window TTL when the key is
// first created. INCR is atomic server-side, so concurrent instances cannot
// lose updates.
func (r *RedisStore) Incr(ctx context.Context, clientKey string, now time.Time, window time.Duration) (int64, time.Time, error) {
	key := fmt.Sprintf("ratelimit:fixed:%s", clientKey)

	count, err := r.redis.Client.Incr(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	if count == 1 {
		if err := r.redis.Client.PExpire(ctx, key, window).Err(); err != nil {
			return 0, time.Time{}, fmt.Errorf("failed to set rate limit window: %w", err)
		}
		return count, now.Add(window), nil
	}

	ttl, err := r.redis.Client.PTTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		// Missing TTL means the key predates this window scheme or expiry
		// raced; re-arm it rather than leaving an immortal counter.
		_ = r.redis.Client.PExpire(ctx, key, window).Err()
		ttl = window
	}

	return count, now.Add(ttl), nil
}
