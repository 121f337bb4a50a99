package cache

import (
	"context"
	"time"
)

// Observer is notified of cache lookups.
type Observer interface {
	CacheHit()
	CacheMiss()
}

// Entry is a cached payload and the time it was stored.
type Entry struct {
	Value    []byte    `json:"v"`
	StoredAt time.Time `json:"at"`
}

// Store persists entries. Implementations keep entries past the cache TTL
// so that Cache.Stale can serve a last known-good value.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, e Entry) error
	Clear(ctx context.Context) error
}

// Cache applies a TTL on top of a Store.
type Cache struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
	obs   Observer
}

// Option customizes a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func WithObserver(obs Observer) Option {
	return func(c *Cache) { c.obs = obs }
}

func New(store Store, ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{store: store, ttl: ttl, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns the value stored under key if it is younger than the TTL.
// Store errors count as misses.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	e, ok, err := c.store.Get(ctx, key)
	if err != nil || !ok || c.now().Sub(e.StoredAt) >= c.ttl {
		if c.obs != nil {
			c.obs.CacheMiss()
		}
		return nil, false
	}
	if c.obs != nil {
		c.obs.CacheHit()
	}
	return e.Value, true
}

// Stale returns the last value stored under key regardless of its age.
func (c *Cache) Stale(ctx context.Context, key string) (Entry, bool) {
	e, ok, err := c.store.Get(ctx, key)
	if err != nil || !ok {
		return Entry{}, false
	}
	return e, true
}

func (c *Cache) Set(ctx context.Context, key string, v []byte) error {
	return c.store.Set(ctx, key, Entry{Value: v, StoredAt: c.now()})
}

// Clear drops every entry, fresh or stale.
func (c *Cache) Clear(ctx context.Context) error {
	return c.store.Clear(ctx)
}

func (c *Cache) TTL() time.Duration {
	return c.ttl
}
