package cache

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/weather-forecast-display/internal/models"
)

// Cache stores forecast snapshots by coordinate key.
// Get returns an entry only while fresh (within its TTL). GetStale also returns
// entries past their TTL that are still retained for the stale window; the
// returned snapshot has Stale set when it is no longer fresh.
type Cache interface {
	Get(ctx context.Context, key string) (models.Snapshot, bool, error)
	GetStale(ctx context.Context, key string) (models.Snapshot, bool, error)
	Set(ctx context.Context, key string, value models.Snapshot, ttl time.Duration) error
}

// Pinger is implemented by backends that can report reachability for /health.
type Pinger interface {
	Ping() error
}

// InMemoryCache implements Cache with a mutex-guarded map. Entries are kept
// for ttl+staleTTL and removed on access once past that.
type InMemoryCache struct {
	mu       sync.Mutex
	data     map[string]cacheEntry
	staleTTL time.Duration
	now      func() time.Time
}

type cacheEntry struct {
	value      models.Snapshot
	freshUntil time.Time
	expiresAt  time.Time
}

// NewInMemoryCache creates an in-memory cache retaining entries staleTTL past their TTL.
func NewInMemoryCache(staleTTL time.Duration) *InMemoryCache {
	if staleTTL < 0 {
		staleTTL = 0
	}
	return &InMemoryCache{
		data:     make(map[string]cacheEntry),
		staleTTL: staleTTL,
		now:      time.Now,
	}
}

// Get returns (snapshot, true, nil) while the entry is fresh.
func (c *InMemoryCache) Get(ctx context.Context, key string) (models.Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.Snapshot{}, false, err
	}
	entry, ok := c.lookup(key)
	if !ok || c.now().After(entry.freshUntil) {
		return models.Snapshot{}, false, nil
	}
	return entry.value, true, nil
}

// GetStale returns any retained entry, fresh or stale.
func (c *InMemoryCache) GetStale(ctx context.Context, key string) (models.Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.Snapshot{}, false, err
	}
	entry, ok := c.lookup(key)
	if !ok {
		return models.Snapshot{}, false, nil
	}
	snap := entry.value
	snap.Stale = c.now().After(entry.freshUntil)
	return snap, true, nil
}

func (c *InMemoryCache) lookup(key string) (cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.data[key]
	if !ok {
		return cacheEntry{}, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.data, key)
		return cacheEntry{}, false
	}
	return entry, true
}

// Set stores the snapshot fresh for ttl and retained for ttl+staleTTL.
func (c *InMemoryCache) Set(ctx context.Context, key string, value models.Snapshot, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := c.now()
	value.Stale = false
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = cacheEntry{
		value:      value,
		freshUntil: now.Add(ttl),
		expiresAt:  now.Add(ttl + c.staleTTL),
	}
	return nil
}

// Len returns the number of retained entries, expired or not.
func (c *InMemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// Ping always succeeds for the in-process backend.
func (c *InMemoryCache) Ping() error {
	return nil
}
