// Package mapcache implements the shard-map façade's mapping cache:
// spec.md §4.5's TTL-based cache of resolved mappings, with a backoff that
// doubles on a transient connect failure and resets on success.
package mapcache

import (
	"sync"
	"time"

	"github.com/dreamware/shardcatalog/internal/catalogmodel"
)

// entry is one cached mapping plus its TTL bookkeeping. It mirrors the
// teacher's ShardRegistry assignment-record shape (an application struct
// plus a last-seen timestamp), generalized with the doubling-TTL behavior
// the teacher's HealthMonitor applies to its failure counter instead.
type entry struct {
	point      *catalogmodel.PointMapping
	rangeEntry *catalogmodel.RangeMapping
	expiresAt  time.Time
	ttl        time.Duration
}

func (e *entry) expired(now time.Time) bool { return now.After(e.expiresAt) }

// Cache holds resolved point/range mappings keyed by (map id, encoded key
// region), invalidating them after a TTL that starts at BaseTTL and doubles
// (capped at MaxTTL) each time RecordFailure is called for that key before
// a success resets it, per spec.md §4.5.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry

	BaseTTL time.Duration
	MaxTTL  time.Duration

	now func() time.Time
}

// New returns a Cache with the given base/max TTLs. baseTTL must be > 0;
// maxTTL <= 0 means unbounded doubling.
func New(baseTTL, maxTTL time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]*entry),
		BaseTTL: baseTTL,
		MaxTTL:  maxTTL,
		now:     time.Now,
	}
}

func cacheKey(mapID string, key []byte) string {
	return mapID + "\x00" + string(key)
}

// GetPoint returns a cached point mapping for (mapID, key), or ok=false if
// absent or expired.
func (c *Cache) GetPoint(mapID string, key []byte) (catalogmodel.PointMapping, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[cacheKey(mapID, key)]
	if !ok || e.point == nil || e.expired(c.now()) {
		return catalogmodel.PointMapping{}, false
	}
	return *e.point, true
}

// PutPoint caches a point mapping under its base TTL, resetting any
// previously-doubled TTL for that key (a successful resolution resets the
// backoff, per spec.md §4.5).
func (c *Cache) PutPoint(mapID string, key []byte, m catalogmodel.PointMapping) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	mCopy := m
	c.entries[cacheKey(mapID, key)] = &entry{point: &mCopy, ttl: c.BaseTTL, expiresAt: now.Add(c.BaseTTL)}
}

// GetRange returns a cached range mapping for (mapID, key), or ok=false if
// absent or expired.
func (c *Cache) GetRange(mapID string, key []byte) (catalogmodel.RangeMapping, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[cacheKey(mapID, key)]
	if !ok || e.rangeEntry == nil || e.expired(c.now()) {
		return catalogmodel.RangeMapping{}, false
	}
	return *e.rangeEntry, true
}

// PutRange caches a range mapping under its base TTL.
func (c *Cache) PutRange(mapID string, key []byte, m catalogmodel.RangeMapping) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	mCopy := m
	c.entries[cacheKey(mapID, key)] = &entry{rangeEntry: &mCopy, ttl: c.BaseTTL, expiresAt: now.Add(c.BaseTTL)}
}

// RecordFailure doubles the TTL backing whatever entry is cached for
// (mapID, key) — if the entry is still present, the next successful lookup
// after this one waits longer before being trusted again, modeling a
// transient connect failure against the shard the mapping points at
// without forcing an immediate cache eviction.
func (c *Cache) RecordFailure(mapID string, key []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[cacheKey(mapID, key)]
	if !ok {
		return
	}
	next := e.ttl * 2
	if next <= 0 {
		next = c.BaseTTL
	}
	if c.MaxTTL > 0 && next > c.MaxTTL {
		next = c.MaxTTL
	}
	e.ttl = next
	e.expiresAt = c.now().Add(next)
}

// Invalidate removes the cached entry for (mapID, key), used when the
// mapping cache needs a hard eviction — e.g. the kill-on-offline path
// (spec.md §4.8) or an explicit UpdateMapping call.
func (c *Cache) Invalidate(mapID string, key []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey(mapID, key))
}

// InvalidateMap removes every cached entry for a shard map, used when a
// shard underneath it goes offline and every mapping on it needs
// revalidation.
func (c *Cache) InvalidateMap(mapID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := mapID + "\x00"
	for k := range c.entries {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(c.entries, k)
		}
	}
}
