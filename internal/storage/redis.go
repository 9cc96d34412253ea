package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SeenCache keeps a short-lived (site, url) -> listing id mapping in Redis so
// the exact-duplicate check on the hot path avoids a Postgres round trip for
// listings observed in recent runs.
type SeenCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSeenCache(addr string, ttl time.Duration) *SeenCache {
	return &SeenCache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
	}
}

func (c *SeenCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func seenKey(site, url string) string {
	return fmt.Sprintf("seen:%s:%s", site, url)
}

// MarkSeen records that a listing URL maps to an existing row.
func (c *SeenCache) MarkSeen(ctx context.Context, site, url string, id int64) error {
	return c.client.Set(ctx, seenKey(site, url), id, c.ttl).Err()
}

// Lookup returns the cached listing id for a URL, or ok=false on a miss.
// Cache errors degrade to a miss; the caller falls through to Postgres.
func (c *SeenCache) Lookup(ctx context.Context, site, url string) (int64, bool) {
	id, err := c.client.Get(ctx, seenKey(site, url)).Int64()
	if err != nil {
		return 0, false
	}
	return id, true
}
