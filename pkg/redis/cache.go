package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/canopy-network/socialx/pkg/db/models/social"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// KeyPrefix namespaces every key and channel this service writes.
	KeyPrefix = "social"

	scanCount = 500
)

// CacheKey is "social:cache:<platform>:<parts...>".
func CacheKey(p social.Platform, parts ...any) string {
	key := fmt.Sprintf("%s:cache:%s", KeyPrefix, p)
	for _, part := range parts {
		key += fmt.Sprintf(":%v", part)
	}
	return key
}

// HistoryKey caches one account's history response.
func HistoryKey(p social.Platform, username string) string {
	return CacheKey(p, "history", username)
}

// LeaderboardKey caches one leaderboard page. The query must already be normalized so
// equivalent requests share a key.
func LeaderboardKey(p social.Platform, q social.LeaderboardQuery) string {
	return CacheKey(p, "leaderboard", q.Page, q.PerPage, q.Sort, q.Order)
}

// InfluencersKey caches the raw snapshot listing.
func InfluencersKey(p social.Platform) string {
	return CacheKey(p, "influencers")
}

// PlatformPattern matches every cached response of a platform.
func PlatformPattern(p social.Platform) string {
	return CacheKey(p, "*")
}

// GetBytes returns a cached value. Any failure is treated as a miss.
func (c *Client) GetBytes(ctx context.Context, key string) ([]byte, bool) {
	b, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return b, true
}

// SetBytes stores a value with a TTL. Best-effort.
func (c *Client) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// DeletePattern removes every key matching pattern using SCAN, so large keyspaces never block
// the server. Returns the number of keys removed.
func (c *Client) DeletePattern(ctx context.Context, pattern string) (int64, error) {
	var (
		cursor  uint64
		deleted int64
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return deleted, fmt.Errorf("scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			n, err := c.client.Unlink(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("unlink %s: %w", pattern, err)
			}
			deleted += n
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	c.logger.Debug("Cache invalidated", zap.String("pattern", pattern), zap.Int64("keys", deleted))
	return deleted, nil
}
