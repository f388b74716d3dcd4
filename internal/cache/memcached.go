package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/kjstillabower/weather-forecast-display/internal/models"
)

const keyPrefix = "forecast:"

// maxRelativeExp is memcached's limit for relative expirations (30 days).
const maxRelativeExp = 30 * 24 * 60 * 60

// memcacheClient is the subset of *memcache.Client used here.
type memcacheClient interface {
	Get(key string) (*memcache.Item, error)
	Set(item *memcache.Item) error
	Ping() error
	Close() error
}

// MemcachedCache implements Cache using memcached. Each item holds an envelope
// with the fresh deadline; the item itself expires after ttl+staleTTL.
type MemcachedCache struct {
	client   memcacheClient
	staleTTL time.Duration
	now      func() time.Time
}

type envelope struct {
	Snapshot   models.Snapshot `json:"snapshot"`
	StoredAt   time.Time       `json:"storedAt"`
	FreshUntil time.Time       `json:"freshUntil"`
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// configure the client; both use package defaults if zero.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int, staleTTL time.Duration) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return newMemcachedCache(client, staleTTL), nil
}

func newMemcachedCache(client memcacheClient, staleTTL time.Duration) *MemcachedCache {
	if staleTTL < 0 {
		staleTTL = 0
	}
	return &MemcachedCache{client: client, staleTTL: staleTTL, now: time.Now}
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (c *MemcachedCache) key(k string) string {
	return keyPrefix + strings.ReplaceAll(k, " ", "_")
}

func (c *MemcachedCache) load(ctx context.Context, key string) (envelope, bool, error) {
	if err := ctx.Err(); err != nil {
		return envelope{}, false, err
	}
	item, err := c.client.Get(c.key(key))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return envelope{}, false, nil
		}
		return envelope{}, false, fmt.Errorf("memcache get %s: %w", key, err)
	}
	var env envelope
	if err := json.Unmarshal(item.Value, &env); err != nil {
		return envelope{}, false, fmt.Errorf("memcache decode %s: %w", key, err)
	}
	return env, true, nil
}

// Get implements Cache.Get. Returns false, nil on miss or when the entry is no longer fresh.
func (c *MemcachedCache) Get(ctx context.Context, key string) (models.Snapshot, bool, error) {
	env, ok, err := c.load(ctx, key)
	if err != nil || !ok {
		return models.Snapshot{}, false, err
	}
	if c.now().After(env.FreshUntil) {
		return models.Snapshot{}, false, nil
	}
	return env.Snapshot, true, nil
}

// GetStale implements Cache.GetStale.
func (c *MemcachedCache) GetStale(ctx context.Context, key string) (models.Snapshot, bool, error) {
	env, ok, err := c.load(ctx, key)
	if err != nil || !ok {
		return models.Snapshot{}, false, err
	}
	snap := env.Snapshot
	snap.Stale = c.now().After(env.FreshUntil)
	return snap, true, nil
}

// Set implements Cache.Set.
func (c *MemcachedCache) Set(ctx context.Context, key string, value models.Snapshot, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := c.now()
	value.Stale = false
	raw, err := json.Marshal(envelope{Snapshot: value, StoredAt: now, FreshUntil: now.Add(ttl)})
	if err != nil {
		return fmt.Errorf("memcache encode %s: %w", key, err)
	}
	expSec := int32((ttl + c.staleTTL).Seconds())
	if expSec <= 0 || expSec > maxRelativeExp {
		expSec = 3600
	}
	if err := c.client.Set(&memcache.Item{
		Key:        c.key(key),
		Value:      raw,
		Expiration: expSec,
	}); err != nil {
		return fmt.Errorf("memcache set %s: %w", key, err)
	}
	return nil
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
