package verifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/foxseedlab/nyukoku/internal/verifier"
	"github.com/redis/go-redis/v9"
)

const identityCacheKeyPrefix = "nyukoku:identity:"

// CachingVerifier remembers positive lookups in redis. Negative results are never
// cached so a corrected spelling or a freshly created account is picked up at once.
type CachingVerifier struct {
	next verifier.Verifier
	rdb  *redis.Client
	ttl  time.Duration
}

func NewCachingVerifier(next verifier.Verifier, rdb *redis.Client, ttl time.Duration) *CachingVerifier {
	return &CachingVerifier{next: next, rdb: rdb, ttl: ttl}
}

func identityCacheKey(edition verifier.Edition, handle string) string {
	return fmt.Sprintf("%s%s:%s", identityCacheKeyPrefix, edition, strings.ToLower(handle))
}

func (c *CachingVerifier) Exists(ctx context.Context, edition verifier.Edition, handle string) bool {
	if c.rdb == nil {
		return c.next.Exists(ctx, edition, handle)
	}
	key := identityCacheKey(edition, handle)
	_, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		return true
	case !errors.Is(err, redis.Nil):
		slog.Warn("identity cache read failed", "error", err, "key", key)
	}

	exists := c.next.Exists(ctx, edition, handle)
	if !exists {
		return false
	}
	if err := c.rdb.Set(ctx, key, "1", c.ttl).Err(); err != nil {
		slog.Warn("identity cache write failed", "error", err, "key", key)
	}
	return true
}

func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}
