// ratelimit.go -- Redis fixed-window rate limiter with lockout.
package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter counts attempts per key in Redis.
// Shares the client (and pool) with RedisStore.
type RedisRateLimiter struct {
	rdb *redis.Client
}

// NewRedisRateLimiter wraps an existing client.
func NewRedisRateLimiter(rdb *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{rdb: rdb}
}

// Allow records one attempt for key under policy.
// Returns ErrRateLimitExceeded while key is locked out or once the attempt count
// passes MaxAttempts inside Window (which also starts the lockout).
// A zero MaxAttempts disables limiting.
func (l *RedisRateLimiter) Allow(ctx context.Context, key string, policy RateLimit) error {
	if policy.MaxAttempts <= 0 {
		return nil
	}

	lockKey := "ratelimit:lock:" + key
	countKey := "ratelimit:count:" + key

	locked, err := l.rdb.Exists(ctx, lockKey).Result()
	if err != nil {
		return fmt.Errorf("checking lockout: %w", err)
	}
	if locked > 0 {
		return ErrRateLimitExceeded
	}

	// INCR + EXPIRE NX together: the window starts at the first attempt and is not extended.
	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, countKey)
	pipe.ExpireNX(ctx, countKey, policy.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recording attempt: %w", err)
	}

	if incr.Val() <= int64(policy.MaxAttempts) {
		return nil
	}

	if policy.LockoutTTL > 0 {
		pipe := l.rdb.TxPipeline()
		pipe.Set(ctx, lockKey, 1, policy.LockoutTTL)
		pipe.Del(ctx, countKey)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("starting lockout: %w", err)
		}
	}
	return ErrRateLimitExceeded
}
