package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Namespace identifies one cached projection family. Each namespace has its
// own TTL tuned to how fast the underlying data mutates.
type Namespace string

const (
	// NamespaceStatus caches status projections; short TTL because the edit
	// is still mutating and polls are frequent.
	NamespaceStatus Namespace = "edit_status"
	// NamespaceFeedback caches feedback; long TTL, immutable once written.
	NamespaceFeedback Namespace = "edit_feedback"
	// NamespaceChain caches chain histories; changes only when a follow-up
	// edit is attached.
	NamespaceChain Namespace = "chain_history"
)

var defaultTTLs = map[Namespace]time.Duration{
	NamespaceStatus:   30 * time.Second,
	NamespaceFeedback: 5 * time.Minute,
	NamespaceChain:    60 * time.Second,
}

// Cache is a read-through, write-invalidate layer in front of the edit
// store. Keys are scoped by deployment environment so preview and
// production deployments sharing a Redis never see each other's entries.
// Every operation degrades to a no-op on Redis failure: callers fall
// through to PostgreSQL and requests never fail because of the cache.
type Cache struct {
	rdb *redis.Client
	env string
	log zerolog.Logger
}

func New(rdb *redis.Client, env string, log zerolog.Logger) *Cache {
	return &Cache{rdb: rdb, env: env, log: log}
}

// Get loads the cached value for (ns, id) into dest and reports a hit.
func (c *Cache) Get(ctx context.Context, ns Namespace, id string, dest any) bool {
	if c == nil || c.rdb == nil {
		return false
	}
	raw, err := c.rdb.Get(ctx, c.key(ns, id)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Str("namespace", string(ns)).Msg("cache: get failed")
		}
		return false
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		c.log.Warn().Err(err).Str("namespace", string(ns)).Msg("cache: decode failed")
		return false
	}
	return true
}

// Put stores value under (ns, id) with the namespace TTL.
func (c *Cache) Put(ctx context.Context, ns Namespace, id string, value any) {
	if c == nil || c.rdb == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		c.log.Warn().Err(err).Str("namespace", string(ns)).Msg("cache: encode failed")
		return
	}
	if err := c.rdb.Set(ctx, c.key(ns, id), raw, defaultTTLs[ns]).Err(); err != nil {
		c.log.Warn().Err(err).Str("namespace", string(ns)).Msg("cache: set failed")
	}
}

// Invalidate removes the entry for (ns, id). Mutating writes call this
// synchronously so a subsequent read never observes a value older than the
// write, regardless of remaining TTL.
func (c *Cache) Invalidate(ctx context.Context, ns Namespace, id string) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, c.key(ns, id)).Err(); err != nil {
		c.log.Warn().Err(err).Str("namespace", string(ns)).Msg("cache: invalidate failed")
	}
}

func (c *Cache) key(ns Namespace, id string) string {
	return fmt.Sprintf("%s:cache:%s:%s", c.env, ns, id)
}
