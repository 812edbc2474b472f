package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisCache shares scan results across runs and across agents. CI fleets
// replay near-identical build logs all day; a shared cache means each payload
// is scanned once per catalog configuration, fleet-wide.
type RedisCache struct {
	client *redis.Client
	config *Config
	logger *zap.Logger
	stats  *redisStats
}

// redisStats tracks cache performance for the end-of-run debug log.
type redisStats struct {
	hits   int64
	misses int64
}

// NewRedisCache connects to Redis and verifies the connection before the run
// starts; a cache that cannot be reached should fail loudly at startup, not
// quietly slow every record.
func NewRedisCache(config *Config, logger *zap.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = config.MaxConnections
	opts.MinIdleConns = config.MinIdleConns

	client := redis.NewClient(opts)

	c := &RedisCache{
		client: client,
		config: config,
		logger: logger,
		stats:  &redisStats{},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Scan cache connected",
		zap.String("redis_url", maskRedisURL(config.RedisURL)),
		zap.Int("max_connections", config.MaxConnections),
		zap.Duration("default_ttl", config.DefaultTTL))

	return c, nil
}

// Get fetches a memoized scan result. A corrupt value is deleted and treated
// as a miss.
func (c *RedisCache) Get(ctx context.Context, key string) (*Entry, bool, error) {
	data, err := c.client.Get(ctx, c.prefixed(key)).Result()
	if err == redis.Nil {
		c.stats.misses++
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache lookup failed: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		c.logger.Warn("Deleting corrupt cache entry", zap.String("key", key), zap.Error(err))
		c.client.Del(ctx, c.prefixed(key))
		c.stats.misses++
		return nil, false, nil
	}

	c.stats.hits++
	return &entry, true, nil
}

// Set stores a scan result with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, key string, entry *Entry) error {
	entry.CachedAt = time.Now()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	if err := c.client.Set(ctx, c.prefixed(key), data, c.config.DefaultTTL).Err(); err != nil {
		return fmt.Errorf("cache store failed: %w", err)
	}
	return nil
}

// Close logs hit statistics and releases the connection pool.
func (c *RedisCache) Close() error {
	total := c.stats.hits + c.stats.misses
	if total > 0 {
		c.logger.Debug("Scan cache statistics",
			zap.Int64("hits", c.stats.hits),
			zap.Int64("misses", c.stats.misses),
			zap.Float64("hit_rate", float64(c.stats.hits)/float64(total)))
	}
	return c.client.Close()
}

func (c *RedisCache) prefixed(key string) string {
	if c.config.KeyPrefix == "" {
		return "binscrub:" + key
	}
	return c.config.KeyPrefix + ":" + key
}

// maskRedisURL hides credentials embedded in the connection URL before it is
// logged. A redaction tool that leaks its own cache password would be a poor
// joke.
func maskRedisURL(url string) string {
	at := strings.LastIndex(url, "@")
	scheme := strings.Index(url, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return url
	}
	return url[:scheme+3] + "***" + url[at:]
}
