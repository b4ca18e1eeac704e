// Package cooldown enforces minimum intervals between repeated actions, such
// as requesting another verification code for the same email.
package cooldown

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter grants at most one Acquire per key within ttl by storing one
// expiring marker per key.
type RedisLimiter struct {
	client *redis.Client
}

// Connect parses url, tunes the pool and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opt.PoolSize = 10
	opt.MinIdleConns = 2
	opt.MaxRetries = 3
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client}
}

// Acquire reports whether key was free. When it was not, the second result is
// the time left until it frees up.
func (l *RedisLimiter) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, time.Duration, error) {
	ok, err := l.client.SetNX(ctx, key, time.Now().UnixMilli(), ttl).Result()
	if err != nil {
		return false, 0, err
	}
	if ok {
		return true, 0, nil
	}

	remaining, err := l.client.PTTL(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}
	// The marker expired between SETNX and PTTL, or has no expiry.
	if remaining <= 0 {
		remaining = ttl
	}
	return false, remaining, nil
}
