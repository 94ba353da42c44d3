package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// RateLimiter counts requests per fixed window in Redis so the limit holds
// across API replicas.
type RateLimiter struct {
	cache *Cache
}

// NewRateLimiter creates a limiter on top of cache.
func NewRateLimiter(cache *Cache) *RateLimiter {
	return &RateLimiter{cache: cache}
}

// Allow increments the counter for key in the current window and reports
// whether it is still within limit.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	bucket := time.Now().UnixNano() / int64(window)
	k := r.cache.Key("ratelimit:", key, ":", strconv.FormatInt(bucket, 10))

	count, err := r.cache.Client().Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit incr: %w", err)
	}
	if count == 1 {
		if err := r.cache.Client().Expire(ctx, k, window).Err(); err != nil {
			return false, fmt.Errorf("rate limit expire: %w", err)
		}
	}
	return count <= int64(limit), nil
}
