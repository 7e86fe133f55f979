package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lirads-audit-server/internal/domain"
	"github.com/lirads-audit-server/pkg/auditpack"
)

const keyPrefix = "lirads:pack:"

// RedisCache shares latest packs between server replicas.
type RedisCache struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// NewRedisCache connects to config.RedisURL and pings it.
func NewRedisCache(config domain.CacheConfig) (*RedisCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	if config.MaxRetries > 0 {
		opts.MaxRetries = config.MaxRetries
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{
		redis:      client,
		defaultTTL: config.DefaultTTL,
	}, nil
}

func packKey(caseID string) string {
	return keyPrefix + caseID
}

func (c *RedisCache) Get(ctx context.Context, caseID string) (*auditpack.Pack, bool, error) {
	key := packKey(caseID)

	val, err := c.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cached pack: %w", err)
	}

	p, err := auditpack.ParsePack(val)
	if err != nil {
		// Remove corrupted cache entry
		c.redis.Del(ctx, key)
		return nil, false, nil
	}
	return p, true, nil
}

func (c *RedisCache) Set(ctx context.Context, p *auditpack.Pack) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal pack: %w", err)
	}
	return c.redis.Set(ctx, packKey(p.CaseID), data, c.defaultTTL).Err()
}

func (c *RedisCache) Delete(ctx context.Context, caseID string) error {
	return c.redis.Del(ctx, packKey(caseID)).Err()
}

func (c *RedisCache) Close() error {
	return c.redis.Close()
}
