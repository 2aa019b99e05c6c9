package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window counter kept in Redis (INCR + EXPIRE).
type RateLimiter struct {
	rdb    *redis.Client
	limit  int64
	window time.Duration
	prefix string
}

func NewRateLimiter(rdb *redis.Client, prefix string, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{rdb: rdb, prefix: prefix, limit: limit, window: window}
}

// Allow increments the counter for key and reports whether the call is within the limit.
// A limit <= 0 disables limiting. Redis errors are returned together with allowed=true.
func (r *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if r == nil || r.limit <= 0 {
		return true, nil
	}

	redisKey := FormatRateKey(r.prefix, key)
	count, err := r.rdb.Incr(ctx, redisKey).Result()
	if err != nil {
		return true, err
	}

	// Set expiration on first increment
	if count == 1 {
		if err := r.rdb.Expire(ctx, redisKey, r.window).Err(); err != nil {
			return true, err
		}
	}

	return count <= r.limit, nil
}

// Reset clears the counter for key
func (r *RateLimiter) Reset(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, FormatRateKey(r.prefix, key)).Err()
}

// FormatRateKey formats a rate limit key for a prefix and subject
func FormatRateKey(prefix, key string) string {
	return fmt.Sprintf("ratelimit:%s:%s", prefix, key)
}
