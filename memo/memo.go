// Package memo implements the "keyed memoization layer with lifetime
// bounded by the process" that Design Notes §9 asks for in place of the
// module-level singleton caches observed in sibling code (pool address,
// pool reserves, oracle handles). It is an internal service instance, not
// a package-level global: callers construct one and pass it around.
package memo

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scorpius-io/rule-engine/rlog"
)

// Fetcher computes the value for key on a cache miss.
type Fetcher func(ctx context.Context, key string) (string, error)

// Cache implements get_or_fetch(key) -> value, backed by Redis when
// configured and falling back to an in-process map (bounded only by
// process lifetime, per §9) when redisURL is empty or fails to parse.
// Reachability is not checked at construction; a Redis error at lookup time
// goes straight to fetch.
type Cache struct {
	ttl    time.Duration
	rdb    *redis.Client
	mu     sync.Mutex
	local  map[string]string
}

// New builds a Cache. An empty redisURL selects the in-process-only mode.
func New(redisURL string, ttl time.Duration) *Cache {
	c := &Cache{ttl: ttl, local: make(map[string]string)}
	if redisURL == "" {
		return c
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		rlog.Warn("memo: invalid redis_url, falling back to in-process cache", "error", err)
		return c
	}
	c.rdb = redis.NewClient(opt)
	return c
}

// GetOrFetch returns the memoized value for key, computing and storing it
// via fetch on a miss.
func (c *Cache) GetOrFetch(ctx context.Context, key string, fetch Fetcher) (string, error) {
	if c.rdb != nil {
		if v, err := c.rdb.Get(ctx, key).Result(); err == nil {
			return v, nil
		} else if err != redis.Nil {
			rlog.Warn("memo: redis get failed, fetching directly", "error", err)
		}
	} else {
		c.mu.Lock()
		v, ok := c.local[key]
		c.mu.Unlock()
		if ok {
			return v, nil
		}
	}

	v, err := fetch(ctx, key)
	if err != nil {
		return "", err
	}

	if c.rdb != nil {
		if err := c.rdb.Set(ctx, key, v, c.ttl).Err(); err != nil {
			rlog.Warn("memo: redis set failed", "error", err)
		}
	} else {
		c.mu.Lock()
		c.local[key] = v
		c.mu.Unlock()
	}
	return v, nil
}

// Close releases the backing Redis client, if any.
func (c *Cache) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}
