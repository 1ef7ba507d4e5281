package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisOpTimeout bounds each Redis round trip so a slow or dead Redis
// cannot stall the request path.
const redisOpTimeout = 100 * time.Millisecond

// RedisRateLimitStore implements RateLimitStore backed by Redis, so the
// limit is shared across instances. It uses a fixed window counter:
// INCR on a per-key-per-window counter, EXPIRE on first increment.
//
// The store fails OPEN: if Redis is unreachable, requests are allowed
// and the error is counted.
type RedisRateLimitStore struct {
	client  *redis.Client
	logger  *slog.Logger
	metrics *Metrics
}

// NewRedisRateLimitStore creates a Redis-backed rate limit store.
// logger and metrics may be nil.
func NewRedisRateLimitStore(client *redis.Client, logger *slog.Logger, metrics *Metrics) *RedisRateLimitStore {
	return &RedisRateLimitStore{
		client:  client,
		logger:  logger,
		metrics: metrics,
	}
}

// Allow checks if a request from the given key should be allowed.
// Implements the RateLimitStore interface.
func (s *RedisRateLimitStore) Allow(ctx context.Context, key string, config RateLimitConfig) (bool, int) {
	opCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	now := time.Now()
	window := now.Unix() / int64(config.WindowDuration.Seconds())
	redisKey := fmt.Sprintf("ratelimit:%s:%d", key, window)

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(opCtx, redisKey)
	// Expire a window past its end so retryAfter inspection still works
	pipe.Expire(opCtx, redisKey, 2*config.WindowDuration)
	if _, err := pipe.Exec(opCtx); err != nil {
		s.failOpen(err)
		return true, 0
	}

	count := incr.Val()
	if count <= int64(config.RequestsPerWindow) {
		return true, 0
	}

	windowEnd := time.Unix((window+1)*int64(config.WindowDuration.Seconds()), 0)
	retryAfter := int(windowEnd.Sub(now).Seconds())
	if retryAfter <= 0 {
		retryAfter = 1
	}
	return false, retryAfter
}

func (s *RedisRateLimitStore) failOpen(err error) {
	if s.metrics != nil {
		s.metrics.IncRateLimitRedisErrors()
	}
	if s.logger != nil {
		s.logger.Warn("rate limit store unavailable, failing open", "error", err)
	}
}
