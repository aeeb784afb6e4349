/*
cache.go - IntensityCache interface and implementations

PURPOSE:
  The resolver's cache is injected, not a package singleton, so tests can
  control time and tenants can be isolated. Two implementations:

  MemoryCache: process-local, the default for a single instance
  RedisCache:  shared across instances; TTL enforced by Redis itself

CONTRACT:
  Get returns (record, false) once the record is older than the TTL the
  implementation was handed at Set time. Writes are last-writer-wins.
*/
package grid

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// IntensityCache stores resolved records keyed by lowercased country name.
type IntensityCache interface {
	Get(ctx context.Context, country string) (Record, bool, error)
	Set(ctx context.Context, country string, rec Record, ttl time.Duration) error
}

// =============================================================================
// MEMORY CACHE
// =============================================================================

type memoryEntry struct {
	rec       Record
	expiresAt time.Time
}

// MemoryCache is a process-local IntensityCache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

// NewMemoryCacheWithClock injects a clock for tests.
func NewMemoryCacheWithClock(now func() time.Time) *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: now}
}

func (c *MemoryCache) Get(_ context.Context, country string) (Record, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[strings.ToLower(country)]
	if !ok || c.now().After(entry.expiresAt) {
		return Record{}, false, nil
	}
	return entry.rec, true, nil
}

func (c *MemoryCache) Set(_ context.Context, country string, rec Record, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[strings.ToLower(country)] = memoryEntry{rec: rec, expiresAt: c.now().Add(ttl)}
	return nil
}

// =============================================================================
// REDIS CACHE - For multi-instance deployments
// =============================================================================

const redisKeyPrefix = "grid:intensity:"

// RedisCache is a Redis-backed IntensityCache. Expiry is enforced by the
// key TTL, so Get never has to compare timestamps.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, country string) (Record, bool, error) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+strings.ToLower(country)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func (c *RedisCache) Set(ctx context.Context, country string, rec Record, ttl time.Duration) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, redisKeyPrefix+strings.ToLower(country), raw, ttl).Err()
}
