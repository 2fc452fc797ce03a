package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/schoolhouse/pkg/auth"
	"github.com/platinummonkey/schoolhouse/pkg/observability"
	"github.com/platinummonkey/schoolhouse/pkg/storage"
)

// NewRedisClient creates a Redis client from storage configuration and
// verifies the connection
func NewRedisClient(ctx context.Context, config storage.Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	// Override with config values if provided
	if config.RedisPassword != "" {
		opts.Password = config.RedisPassword
	}
	if config.RedisDB > 0 {
		opts.DB = config.RedisDB
	}
	if config.RedisMaxRetries > 0 {
		opts.MaxRetries = config.RedisMaxRetries
	}
	if config.RedisPoolSize > 0 {
		opts.PoolSize = config.RedisPoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// Redis stores identities as JSON under "<prefix>:identity:<userID>" and
// keeps the fill generation in "<prefix>:identity:generation". Instances
// sharing a Redis see each other's invalidations immediately.
type Redis struct {
	client  *redis.Client
	ttl     time.Duration
	prefix  string
	logger  *observability.Logger
	metrics *observability.Metrics
}

// fillScript sets KEYS[2] only while KEYS[1] still holds the caller's generation
var fillScript = redis.NewScript(`
if (redis.call("GET", KEYS[1]) or "0") ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
else
	redis.call("SET", KEYS[2], ARGV[2])
end
return 1
`)

// unknownGeneration never matches a stored generation, so fills taken
// while Redis is unreachable are dropped
const unknownGeneration = ^uint64(0)

// NewRedis creates a Redis backed identity cache
func NewRedis(client *redis.Client, ttl time.Duration, prefix string, logger *observability.Logger, metrics *observability.Metrics) *Redis {
	if prefix == "" {
		prefix = "schoolhouse"
	}
	return &Redis{client: client, ttl: ttl, prefix: prefix, logger: logger, metrics: metrics}
}

func (c *Redis) key(userID string) string {
	return fmt.Sprintf("%s:identity:%s", c.prefix, userID)
}

func (c *Redis) generationKey() string {
	return c.prefix + ":identity:generation"
}

func (c *Redis) Get(ctx context.Context, userID string) (auth.Identity, bool) {
	key := c.key(userID)
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		recordMiss(c.metrics)
		return auth.Identity{}, false
	} else if err != nil {
		c.warn(err, "redis get failed")
		recordMiss(c.metrics)
		return auth.Identity{}, false
	}

	var identity auth.Identity
	if err := json.Unmarshal(data, &identity); err != nil {
		// corrupt entry
		c.client.Del(ctx, key)
		c.warn(err, "dropping undecodable identity")
		recordMiss(c.metrics)
		return auth.Identity{}, false
	}
	recordHit(c.metrics, "redis")
	return identity, true
}

func (c *Redis) Generation(ctx context.Context) uint64 {
	generation, err := c.client.Get(ctx, c.generationKey()).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0
	} else if err != nil {
		c.warn(err, "redis generation read failed")
		return unknownGeneration
	}
	return generation
}

func (c *Redis) Fill(ctx context.Context, identity auth.Identity, generation uint64) bool {
	if generation == unknownGeneration {
		return false
	}
	data, err := json.Marshal(identity)
	if err != nil {
		c.warn(err, "failed to marshal identity")
		return false
	}
	keys := []string{c.generationKey(), c.key(identity.UserID)}
	stored, err := fillScript.Run(ctx, c.client, keys, generation, data, c.ttl.Milliseconds()).Int()
	if err != nil {
		c.warn(err, "redis fill failed")
		return false
	}
	return stored == 1
}

// Invalidate advances the generation and removes the entry in one transaction
func (c *Redis) Invalidate(ctx context.Context, userID string) {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.generationKey())
		pipe.Del(ctx, c.key(userID))
		return nil
	})
	if err != nil {
		c.warn(err, "redis invalidate failed")
	}
}

func (c *Redis) warn(err error, msg string) {
	if c.logger != nil {
		c.logger.WithError(err).Warn(msg)
	}
}
