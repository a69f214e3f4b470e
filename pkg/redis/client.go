package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/canopy-network/socialx/pkg/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Client wraps the Redis client used for the response cache and ingestion events.
type Client struct {
	client *redis.Client
	logger *zap.Logger
}

// NewClient creates a new Redis client using environment variables for configuration.
// Environment variables:
//   - REDIS_HOST: Redis host (default: "localhost")
//   - REDIS_PORT: Redis port (default: "6379")
//   - REDIS_PASSWORD: Redis password (default: "")
//   - REDIS_DB: Redis database number (default: "0")
func NewClient(ctx context.Context, logger *zap.Logger) (*Client, error) {
	host := utils.Env("REDIS_HOST", "localhost")
	port := utils.Env("REDIS_PORT", "6379")

	return NewFromOptions(ctx, logger, &redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: utils.Env("REDIS_PASSWORD", ""),
		DB:       int(utils.EnvInt64("REDIS_DB", 0)),

		// Connection pool
		PoolSize:     10,
		MinIdleConns: 2,

		// Timeouts
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}

// NewFromOptions connects with explicit options and verifies the connection with a PING.
func NewFromOptions(ctx context.Context, logger *zap.Logger, opts *redis.Options) (*Client, error) {
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}

	logger.Info("Connected to Redis",
		zap.String("addr", opts.Addr),
		zap.Int("db", opts.DB))

	return &Client{
		client: rdb,
		logger: logger,
	}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// GetClient returns the underlying Redis client.
func (c *Client) GetClient() *redis.Client {
	return c.client
}

// Publish publishes a message to a Redis Pub/Sub channel.
// This is a best-effort operation: errors are logged but not returned so a missed
// notification never fails an ingestion.
func (c *Client) Publish(ctx context.Context, channel string, message interface{}) {
	if err := c.client.Publish(ctx, channel, message).Err(); err != nil {
		c.logger.Warn("Failed to publish Redis message",
			zap.String("channel", channel),
			zap.Error(err))
	}
}

// PSubscribe subscribes to one or more Redis Pub/Sub channel patterns, e.g.
// "social:*:ingest.completed". The caller is responsible for closing the PubSub.
func (c *Client) PSubscribe(ctx context.Context, patterns ...string) *redis.PubSub {
	c.logger.Debug("Subscribing to Redis patterns", zap.Strings("patterns", patterns))
	return c.client.PSubscribe(ctx, patterns...)
}

// Health checks if Redis is healthy.
func (c *Client) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// NewOptional connects when REDIS_ENABLED is true. It returns nil when Redis is disabled or
// unreachable, since the cache and the event relay are optional for both services.
func NewOptional(ctx context.Context, logger *zap.Logger) *Client {
	if !utils.EnvBool("REDIS_ENABLED", false) {
		logger.Info("Redis disabled - response cache and real-time events will not be available")
		return nil
	}
	client, err := NewClient(ctx, logger)
	if err != nil {
		logger.Warn("Failed to initialize Redis client - response cache and real-time events will be disabled",
			zap.Error(err))
		return nil
	}
	return client
}
