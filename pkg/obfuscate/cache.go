package obfuscate

import (
	"sync"
	"sync/atomic"
)

// Bin identifies the stratum a value belongs to. Equal values in different
// bins are cached independently.
type Bin uint64

// Key addresses one cache entry.
type Key struct {
	Value uint64
	Bin   Bin
}

// Cache stores obfuscated results so repeated queries get the same answer.
// It is owned by the caller and must be used with a single Config for its
// whole lifetime.
type Cache interface {
	// Lookup returns the stored result for key, if any.
	Lookup(key Key) (uint64, bool)

	// Insert stores value at key only if the key is absent. It returns the
	// value held at key afterwards, which is the earlier one when the key was
	// already present. Existing entries are never overwritten.
	Insert(key Key, value uint64) (uint64, error)
}

// MapCache is an in-memory Cache. It does no locking; callers sharing one
// across goroutines wrap it in a LockedCache or shard it by bin.
type MapCache map[Key]uint64

// NewMapCache creates an empty MapCache.
func NewMapCache() MapCache {
	return make(MapCache)
}

func (c MapCache) Lookup(key Key) (uint64, bool) {
	v, ok := c[key]
	return v, ok
}

func (c MapCache) Insert(key Key, value uint64) (uint64, error) {
	if existing, ok := c[key]; ok {
		return existing, nil
	}
	c[key] = value
	return value, nil
}

// Len returns the number of cached entries.
func (c MapCache) Len() int {
	return len(c)
}

// LockedCache serializes access to an underlying Cache.
type LockedCache struct {
	mu    sync.Mutex
	cache Cache
}

// NewLockedCache wraps cache with a mutex.
func NewLockedCache(cache Cache) *LockedCache {
	return &LockedCache{cache: cache}
}

func (c *LockedCache) Lookup(key Key) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Lookup(key)
}

func (c *LockedCache) Insert(key Key, value uint64) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Insert(key, value)
}

// CacheStats is a snapshot of StatsCache counters.
type CacheStats struct {
	Hits    uint64
	Misses  uint64
	Inserts uint64
}

// StatsCache counts lookups and inserts on an underlying Cache.
type StatsCache struct {
	cache   Cache
	hits    atomic.Uint64
	misses  atomic.Uint64
	inserts atomic.Uint64
}

// NewStatsCache wraps cache with hit/miss counters.
func NewStatsCache(cache Cache) *StatsCache {
	return &StatsCache{cache: cache}
}

func (c *StatsCache) Lookup(key Key) (uint64, bool) {
	v, ok := c.cache.Lookup(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

func (c *StatsCache) Insert(key Key, value uint64) (uint64, error) {
	stored, err := c.cache.Insert(key, value)
	if err == nil {
		c.inserts.Add(1)
	}
	return stored, err
}

// Stats returns the current counters.
func (c *StatsCache) Stats() CacheStats {
	return CacheStats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Inserts: c.inserts.Load(),
	}
}
