package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"threadcast-backend/pkg/jwt"
)

const revokedKeyPrefix = "threadcast:revoked:"

// RedisRevocationChecker implements RevocationChecker with a Redis jti blacklist
type RedisRevocationChecker struct {
	client *redis.Client
}

// NewRedisRevocationChecker creates a new RedisRevocationChecker
func NewRedisRevocationChecker(client *redis.Client) *RedisRevocationChecker {
	return &RedisRevocationChecker{client: client}
}

// IsTokenRevoked reports whether the token id is on the blacklist
func (r *RedisRevocationChecker) IsTokenRevoked(ctx context.Context, claims *jwt.Claims) (bool, error) {
	if claims.ID == "" {
		return false, nil
	}

	exists, err := r.client.Exists(ctx, revokedKeyPrefix+claims.ID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist in redis: %w", err)
	}
	return exists > 0, nil
}

// Revoke blacklists the token until it would have expired anyway
func (r *RedisRevocationChecker) Revoke(ctx context.Context, claims *jwt.Claims) error {
	if claims.ID == "" {
		return fmt.Errorf("token has no id")
	}

	ttl := time.Minute
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
	}
	if ttl <= 0 {
		return nil
	}

	if err := r.client.Set(ctx, revokedKeyPrefix+claims.ID, 1, ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}
