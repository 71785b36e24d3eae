package token

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/voyagerhq/auth-service/internal/logging"
)

const redisBlacklistPrefix = "auth:blacklist:"

// RedisBlacklist is the shared Blacklist for multi-instance deployments:
// one key per jti with a TTL equal to the token's remaining life, so Redis
// does the sweeping. Same contract as MemoryBlacklist.
type RedisBlacklist struct {
	client *redis.Client
	logger logging.Logger

	now func() time.Time
}

func NewRedisBlacklist(client *redis.Client, logger logging.Logger) *RedisBlacklist {
	return &RedisBlacklist{
		client: client,
		logger: logger.With("component", "redis_blacklist"),
		now:    time.Now,
	}
}

func (b *RedisBlacklist) Add(ctx context.Context, tokenString string) error {
	claims, err := decodeUnverified(tokenString)
	if err != nil {
		return err
	}
	if claims.ID == "" || claims.ExpiresAt == nil {
		return nil
	}
	ttl := claims.ExpiresAt.Time.Sub(b.now())
	if ttl <= 0 {
		return nil
	}

	return b.client.Set(ctx, redisBlacklistPrefix+claims.ID, 1, ttl).Err()
}

// Contains treats a Redis failure as "not blacklisted": the token still dies
// at its own short expiry, and failing closed here would take every
// authenticated request down with the cache.
func (b *RedisBlacklist) Contains(ctx context.Context, jti string) bool {
	n, err := b.client.Exists(ctx, redisBlacklistPrefix+jti).Result()
	if err != nil {
		b.logger.Warn(ctx, "blacklist lookup failed open", "error", err)
		return false
	}
	return n > 0
}
