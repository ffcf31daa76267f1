// Package ratelimit guards the ingestion endpoint against producer floods.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter answers whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Close() error
}

// redisLimiter implements sliding-window rate limiting on Redis. When
// disabled it allows everything, so the server runs fine without Redis.
type redisLimiter struct {
	client   *redis.Client
	limit    int64
	window   time.Duration
	disabled bool
}

// NewRedisLimiter connects to Redis and returns a sliding-window limiter
// permitting limit requests per key per window. Pass disabled=true to get a
// no-op limiter without a Redis connection.
func NewRedisLimiter(redisURL string, limit int, window time.Duration, disabled bool) (Limiter, error) {
	if disabled {
		return &redisLimiter{disabled: true}, nil
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &redisLimiter{
		client: client,
		limit:  int64(limit),
		window: window,
	}, nil
}

// NewRedisLimiterWithClient wraps an existing client. Tests use this with
// miniredis.
func NewRedisLimiterWithClient(client *redis.Client, limit int, window time.Duration) Limiter {
	return &redisLimiter{
		client: client,
		limit:  int64(limit),
		window: window,
	}
}

// allowScript implements the sliding window atomically server-side.
var allowScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])

	redis.call('ZREMRANGEBYSCORE', key, 0, window_start)

	local current = redis.call('ZCARD', key)
	if current < limit then
		redis.call('ZADD', key, now, now)
		redis.call('EXPIRE', key, 60)
		return 1
	end
	return 0
`)

func (r *redisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if r.disabled {
		return true, nil
	}

	now := time.Now().UnixNano()
	windowStart := now - r.window.Nanoseconds()

	result, err := allowScript.Run(ctx, r.client, []string{"ratelimit:" + key}, now, windowStart, r.limit).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}
	return result == 1, nil
}

func (r *redisLimiter) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
