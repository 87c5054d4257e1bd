package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stagepass/identity-service/pkg/database"
)

// RateLimiter handles rate limiting using Redis
type RateLimiter struct {
	redis *database.Redis
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(redis *database.Redis) *RateLimiter {
	return &RateLimiter{redis: redis}
}

// Allow checks if a request is allowed under a sliding window log.
// Returns true if the request is allowed, false if the limit is exceeded.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	windowStart := now.Add(-window)

	redisKey := fmt.Sprintf("ratelimit:%s", key)

	err := r.redis.Client.ZRemRangeByScore(ctx, redisKey, "0", fmt.Sprintf("%d", windowStart.Unix())).Err()
	if err != nil {
		return false, fmt.Errorf("failed to clean old entries: %w", err)
	}

	count, err := r.redis.Client.ZCard(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to count entries: %w", err)
	}

	if count >= int64(limit) {
		return false, nil
	}

	member := fmt.Sprintf("%d-%d", now.UnixNano(), now.Unix())
	err = r.redis.Client.ZAdd(ctx, redisKey, redis.Z{
		Score:  float64(now.Unix()),
		Member: member,
	}).Err()
	if err != nil {
		return false, fmt.Errorf("failed to add entry: %w", err)
	}

	// Buffer past the window so in-window entries never expire early
	if err := r.redis.Client.Expire(ctx, redisKey, window+time.Minute).Err(); err != nil {
		_ = err
	}

	return true, nil
}
