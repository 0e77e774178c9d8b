package replies

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gosight/campaignsync/internal/config"
)

const keyPrefix = "reply:"

// RedisCache keeps resolved reply content in Redis so later syncs skip the lookup
type RedisCache struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisCache creates a new reply cache
func NewRedisCache(redisCfg config.RedisConfig) *RedisCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})

	return &RedisCache{
		redis: rdb,
		ttl:   redisCfg.ReplyTTL,
	}
}

// Ping checks the connection
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// GetMany returns the cached content for the given event ids. Misses are absent from the result.
func (c *RedisCache) GetMany(ctx context.Context, eventIDs []string) (map[string]string, error) {
	if len(eventIDs) == 0 {
		return nil, nil
	}

	pipe := c.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(eventIDs))
	for i, id := range eventIDs {
		cmds[i] = pipe.Get(ctx, keyPrefix+id)
	}

	// redis.Nil from a miss surfaces here too, per-command results are checked below
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	out := make(map[string]string)
	for i, cmd := range cmds {
		v, err := cmd.Result()
		if err != nil {
			continue
		}
		out[eventIDs[i]] = v
	}
	return out, nil
}

// SetMany stores content by event id with the configured TTL
func (c *RedisCache) SetMany(ctx context.Context, contents map[string]string) error {
	if len(contents) == 0 {
		return nil
	}

	pipe := c.redis.Pipeline()
	for id, content := range contents {
		pipe.Set(ctx, keyPrefix+id, content, c.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Close closes the connection
func (c *RedisCache) Close() error {
	return c.redis.Close()
}
