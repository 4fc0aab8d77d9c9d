package extraction

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ ModelClient = (*CachedModelClient)(nil)

const modelCachePrefix = "gstfile:model:"

// CachedModelClient memoises model replies in Redis keyed by a hash of the
// prompt. Redis failures degrade to an uncached call.
type CachedModelClient struct {
	next   ModelClient
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedModelClient wraps next with a Redis response cache.
func NewCachedModelClient(next ModelClient, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedModelClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedModelClient{next: next, client: client, ttl: ttl, logger: logger}
}

// Generate implements ModelClient.
func (c *CachedModelClient) Generate(ctx context.Context, prompt string) (string, error) {
	key := modelCacheKey(prompt)

	cached, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		return cached, nil
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("model cache read failed", "error", err)
	}

	text, err := c.next.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}

	// Empty replies trigger fallbacks downstream and must not be pinned.
	if strings.TrimSpace(text) != "" {
		if err := c.client.Set(ctx, key, text, c.ttl).Err(); err != nil {
			c.logger.Warn("model cache write failed", "error", err)
		}
	}
	return text, nil
}

func modelCacheKey(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return modelCachePrefix + hex.EncodeToString(sum[:])
}
