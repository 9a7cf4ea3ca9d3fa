// Package cache provides a concurrent-safe get-or-populate cache with
// optional TTL expiry and LRU eviction.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Config controls capacity and expiry. Zero values disable the limit.
type Config struct {
	// MaxEntries evicts the least recently used entry once reached. 0 = unbounded.
	MaxEntries int
	// TTL expires entries this long after they were stored. 0 = never.
	TTL time.Duration
	// LoadTimeout bounds a shared load in GetOrLoad. 0 = no bound beyond
	// what the loader enforces itself.
	LoadTimeout time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Stats contains cache performance statistics.
type Stats struct {
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
}

// Cache maps string keys to values of type V. Stored values are returned as
// is; callers must treat them as read-only.
type Cache[V any] struct {
	mu         sync.Mutex
	entries    map[string]*entry[V]
	order      []string // LRU order: front=oldest, back=newest
	maxEntries  int
	ttl         time.Duration
	loadTimeout time.Duration
	now         func() time.Time
	group       singleflight.Group
	hits        atomic.Int64
	misses      atomic.Int64
}

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// New creates an empty cache.
func New[V any](cfg Config) *Cache[V] {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Cache[V]{
		entries:    make(map[string]*entry[V]),
		maxEntries:  cfg.MaxEntries,
		ttl:         cfg.TTL,
		loadTimeout: cfg.LoadTimeout,
		now:         now,
	}
}

// Get returns the value for key if present and not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.lookup(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Put stores value under key, evicting the oldest entry if at capacity.
func (c *Cache[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.removeFromOrder(key)
	} else {
		for c.maxEntries > 0 && len(c.entries) >= c.maxEntries && len(c.order) > 0 {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
	}
	c.entries[key] = &entry[V]{value: value, storedAt: c.now()}
	c.order = append(c.order, key)
}

// GetOrLoad returns the cached value for key, or calls load to produce it.
// Concurrent misses on the same key share a single load. The shared load is
// detached from any one caller's cancellation so a caller that gives up does
// not fail the others; each caller still returns early when its own ctx is
// done. Only successful loads are stored. The boolean reports a cache hit.
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string, load func(ctx context.Context) (V, error)) (V, bool, error) {
	var zero V
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		c.mu.Lock()
		v, ok := c.lookup(key)
		c.mu.Unlock()
		if ok {
			return v, nil
		}

		loadCtx := context.WithoutCancel(ctx)
		if c.loadTimeout > 0 {
			var cancel context.CancelFunc
			loadCtx, cancel = context.WithTimeout(loadCtx, c.loadTimeout)
			defer cancel()
		}

		v, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		c.Put(key, v)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, false, res.Err
		}
		return res.Val.(V), false, nil
	}
}

// Purge drops every entry.
func (c *Cache[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry[V])
	c.order = nil
}

// Stats returns cache performance statistics.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	entries := len(c.entries)
	c.mu.Unlock()

	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return Stats{
		Entries:    entries,
		MaxEntries: c.maxEntries,
		Hits:       hits,
		Misses:     misses,
		HitRate:    hitRate,
	}
}

// lookup must be called with mu held. Expired entries are removed.
func (c *Cache[V]) lookup(key string) (V, bool) {
	var zero V
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if c.ttl > 0 && c.now().Sub(e.storedAt) >= c.ttl {
		delete(c.entries, key)
		c.removeFromOrder(key)
		return zero, false
	}
	c.removeFromOrder(key)
	c.order = append(c.order, key)
	return e.value, true
}

func (c *Cache[V]) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
