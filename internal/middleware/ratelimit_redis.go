package middleware

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimitStore implements fixed-window rate limiting backed by
// Redis, so limits are shared across API instances. On Redis errors the
// store fails open: availability is preferred over strict enforcement.
type RedisRateLimitStore struct {
	client  *redis.Client
	metrics *Metrics
}

// NewRedisRateLimitStore creates a rate limit store on the given client.
func NewRedisRateLimitStore(client *redis.Client) *RedisRateLimitStore {
	return &RedisRateLimitStore{client: client}
}

// WithMetrics enables counting of fail-open events on Redis errors.
func (s *RedisRateLimitStore) WithMetrics(m *Metrics) *RedisRateLimitStore {
	s.metrics = m
	return s
}

// Allow checks if a request from the given key should be allowed.
// Returns allowed, the remaining quota in the current window, and the
// number of seconds until the window resets when blocked.
func (s *RedisRateLimitStore) Allow(ctx context.Context, key string, config RateLimitConfig) (bool, int, int) {
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, config.WindowDuration)
	ttl := pipe.PTTL(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil {
		// Fail open: Redis being down should not take the API with it.
		if s.metrics != nil {
			s.metrics.IncRateLimitRedisErrors()
		}
		return true, config.RequestsPerWindow, 0
	}

	count := int(incr.Val())
	remaining := config.RequestsPerWindow - count
	if remaining < 0 {
		remaining = 0
	}

	if count <= config.RequestsPerWindow {
		return true, remaining, 0
	}

	retryAfter := int(ttl.Val().Round(time.Second).Seconds())
	if retryAfter <= 0 {
		retryAfter = 1
	}
	return false, 0, retryAfter
}

// redisStoreAdapter adapts RedisRateLimitStore to the RateLimitStore
// interface used by the RateLimiter middleware.
type redisStoreAdapter struct {
	store *RedisRateLimitStore
}

// AsStore returns the store as a RateLimitStore for use with RateLimiter.
func (s *RedisRateLimitStore) AsStore() RateLimitStore {
	return &redisStoreAdapter{store: s}
}

func (a *redisStoreAdapter) Allow(ctx context.Context, key string, config RateLimitConfig) (bool, int) {
	allowed, _, retryAfter := a.store.Allow(ctx, key, config)
	return allowed, retryAfter
}
