package event

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"hookgate/internal/constants"
)

// ResultCache is a read-through cache of completed results keyed by provider
// and provider event id. Never authoritative; a miss always falls through to
// the ledger.
type ResultCache interface {
	GetResult(ctx context.Context, provider, providerEventID string) ([]byte, error)
	SetResult(ctx context.Context, provider, providerEventID string, result []byte, ttl time.Duration) error
}

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) ResultCache {
	return &RedisCache{client: client}
}

func resultKey(provider, providerEventID string) string {
	return constants.CacheKeyPrefixResult + provider + ":" + providerEventID
}

// GetResult returns (nil, nil) on a cache miss.
func (c *RedisCache) GetResult(ctx context.Context, provider, providerEventID string) ([]byte, error) {
	val, err := c.client.Get(ctx, resultKey(provider, providerEventID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET failed: %w", err)
	}
	return val, nil
}

func (c *RedisCache) SetResult(ctx context.Context, provider, providerEventID string, result []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, resultKey(provider, providerEventID), result, ttl).Err(); err != nil {
		return fmt.Errorf("redis SET failed: %w", err)
	}
	return nil
}
