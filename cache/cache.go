// ABOUTME: In-memory reference-data cache with TTL-based expiration
// ABOUTME: Thread-safe via sync.Map; concurrent refreshes coalesce through singleflight

package cache

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type entry struct {
	data      interface{}
	expiresAt time.Time
}

type Cache struct {
	store sync.Map
	group singleflight.Group
	ttl   time.Duration

	// now is swappable for tests
	now func() time.Time
}

func New(ttl time.Duration) *Cache {
	c := &Cache{
		ttl: ttl,
		now: time.Now,
	}
	go c.startCleanup()
	return c
}

func (c *Cache) Get(key string) (interface{}, bool) {
	val, ok := c.store.Load(key)
	if !ok {
		slog.Debug("Cache miss", "key", key)
		return nil, false
	}

	e := val.(entry)
	if c.now().After(e.expiresAt) {
		c.store.Delete(key)
		slog.Debug("Cache expired", "key", key)
		return nil, false
	}

	slog.Debug("Cache hit", "key", key)
	return e.data, true
}

func (c *Cache) Set(key string, value interface{}) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores a value with a custom TTL
func (c *Cache) SetWithTTL(key string, value interface{}, ttl time.Duration) {
	e := entry{
		data:      value,
		expiresAt: c.now().Add(ttl),
	}
	c.store.Store(key, e)
	slog.Debug("Cache set", "key", key, "ttl", ttl)
}

func (c *Cache) Clear(key string) {
	c.store.Delete(key)
}

// Fetch returns the cached value for key, refreshing it with fetch when
// missing or expired. Concurrent callers for the same expired key share a
// single fetch; readers of other keys are never blocked. Fetch errors are
// not cached.
func (c *Cache) Fetch(key string, ttl time.Duration, fetch func() (interface{}, error)) (interface{}, error) {
	if val, ok := c.Get(key); ok {
		return val, nil
	}

	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Another caller in the same flight may have filled it already
		if val, ok := c.Get(key); ok {
			return val, nil
		}
		val, err := fetch()
		if err != nil {
			return nil, err
		}
		c.SetWithTTL(key, val, ttl)
		return val, nil
	})
	return val, err
}

func (c *Cache) startCleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		now := c.now()
		c.store.Range(func(key, val interface{}) bool {
			e := val.(entry)
			if now.After(e.expiresAt) {
				c.store.Delete(key)
			}
			return true
		})
	}
}
