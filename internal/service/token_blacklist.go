package service

import (
	"context"
	"fmt"
	"time"

	"github.com/stagepass/identity-service/pkg/database"
)

// RedisTokenBlacklist stores revoked tokens in Redis until they expire
type RedisTokenBlacklist struct {
	redis *database.Redis
}

// NewRedisTokenBlacklist creates a Redis-backed token blacklist
func NewRedisTokenBlacklist(redis *database.Redis) *RedisTokenBlacklist {
	return &RedisTokenBlacklist{redis: redis}
}

// AddToken adds a token to the blacklist for the given expiry
func (s *RedisTokenBlacklist) AddToken(ctx context.Context, token string, expiry time.Duration) error {
	key := fmt.Sprintf("blacklist:token:%s", token)
	err := s.redis.Client.Set(ctx, key, "1", expiry).Err()
	if err != nil {
		return fmt.Errorf("failed to add token to blacklist: %w", err)
	}
	return nil
}

// IsTokenBlacklisted checks if a token is in the blacklist
func (s *RedisTokenBlacklist) IsTokenBlacklisted(ctx context.Context, token string) (bool, error) {
	key := fmt.Sprintf("blacklist:token:%s", token)
	exists, err := s.redis.Client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token blacklist: %w", err)
	}
	return exists > 0, nil
}
