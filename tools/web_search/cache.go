package web_search

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arguslabs/argus/tools/web_search/models"
)

// Cached is a redis read-through wrapper over a WebSearcher. Identical queries
// within the TTL are served from cache instead of hitting the provider again.
// Cache failures are logged and ignored, the provider is the source of truth.
type Cached struct {
	inner  WebSearcher
	rdb    redis.UniversalClient
	ttl    time.Duration
	logger *log.Logger
}

// NewCached wraps inner with a redis result cache.
func NewCached(inner WebSearcher, rdb redis.UniversalClient, ttl time.Duration, logger *log.Logger) *Cached {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[SEARCH] ", log.LstdFlags)
	}
	return &Cached{inner: inner, rdb: rdb, ttl: ttl, logger: logger}
}

func cacheKey(q string) string { return "search:" + q }

func (c *Cached) Search(ctx context.Context, q string, k int) ([]models.Result, error) {
	if raw, err := c.rdb.Get(ctx, cacheKey(q)).Result(); err == nil {
		var cached []models.Result
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			if len(cached) > k {
				cached = cached[:k]
			}
			return cached, nil
		}
	} else if err != redis.Nil {
		c.logger.Printf("cache get failed for %q: %v", q, err)
	}

	results, err := c.inner.Search(ctx, q, k)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(results); err == nil {
		if err := c.rdb.Set(ctx, cacheKey(q), raw, c.ttl).Err(); err != nil {
			c.logger.Printf("cache set failed for %q: %v", q, err)
		}
	}
	return results, nil
}
