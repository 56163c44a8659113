// Package ratelimit counts attempts per key in fixed Redis windows.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Limiter allows at most max attempts per key within window
type Limiter struct {
	client *redis.Client
	prefix string
	max    int
	window time.Duration
}

func NewLimiter(client *redis.Client, prefix string, max int, window time.Duration) *Limiter {
	return &Limiter{client: client, prefix: prefix, max: max, window: window}
}

// Allow records an attempt for key and reports whether it is within the limit. The
// window starts with the first attempt.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	k := l.prefix + key

	n, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", l.prefix, err)
	}
	if n == 1 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return false, fmt.Errorf("rate limit %s: %w", l.prefix, err)
		}
	}
	return n <= int64(l.max), nil
}

// Reset forgets the attempts of key, e.g. after a successful login
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, l.prefix+key).Err()
}

// RetryAfter is how long until key's window closes
func (l *Limiter) RetryAfter(ctx context.Context, key string) time.Duration {
	ttl, err := l.client.TTL(ctx, l.prefix+key).Result()
	if err != nil || ttl < 0 {
		return l.window
	}
	return ttl
}
