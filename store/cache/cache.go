// Package cache provides a small in-memory TTL cache used to front
// metadata reads. It is safe for concurrent use.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the cache configuration.
type Config struct {
	// DefaultTTL is applied to entries set without an explicit TTL.
	DefaultTTL time.Duration
	// CleanupInterval controls how often expired entries are swept.
	CleanupInterval time.Duration
	// MaxItems caps the number of entries. When the cap is reached, new
	// sets evict the entry closest to expiry.
	MaxItems int
	// OnEviction, if set, is called for every evicted or expired entry.
	OnEviction func(key string, value any)
}

type item struct {
	value     any
	expiresAt time.Time
}

// Cache is an in-memory key/value store with per-entry expiry.
type Cache struct {
	config Config
	data   sync.Map
	size   atomic.Int64
	done   chan struct{}
	once   sync.Once
}

// New creates a cache and starts its cleanup goroutine.
func New(config Config) *Cache {
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 10 * time.Minute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Minute
	}
	if config.MaxItems <= 0 {
		config.MaxItems = 1000
	}

	c := &Cache{
		config: config,
		done:   make(chan struct{}),
	}
	go c.janitor()
	return c
}

// Get returns the value for key if present and not expired.
func (c *Cache) Get(_ context.Context, key string) (any, bool) {
	v, ok := c.data.Load(key)
	if !ok {
		return nil, false
	}
	it := v.(item)
	if time.Now().After(it.expiresAt) {
		c.remove(key, it)
		return nil, false
	}
	return it.value, true
}

// Set stores a value with the default TTL.
func (c *Cache) Set(ctx context.Context, key string, value any) {
	c.SetWithTTL(ctx, key, value, c.config.DefaultTTL)
}

// SetWithTTL stores a value with an explicit TTL.
func (c *Cache) SetWithTTL(_ context.Context, key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}
	if c.size.Load() >= int64(c.config.MaxItems) {
		c.evictOne()
	}
	_, loaded := c.data.Swap(key, item{value: value, expiresAt: time.Now().Add(ttl)})
	if !loaded {
		c.size.Add(1)
	}
}

// Delete removes a key.
func (c *Cache) Delete(_ context.Context, key string) {
	if v, ok := c.data.LoadAndDelete(key); ok {
		c.size.Add(-1)
		if c.config.OnEviction != nil {
			c.config.OnEviction(key, v.(item).value)
		}
	}
}

// Clear removes all entries.
func (c *Cache) Clear(ctx context.Context) {
	c.data.Range(func(key, _ any) bool {
		c.Delete(ctx, key.(string))
		return true
	})
}

// Size returns the current number of entries.
func (c *Cache) Size() int64 {
	return c.size.Load()
}

// Close stops the cleanup goroutine.
func (c *Cache) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *Cache) remove(key string, it item) {
	if _, ok := c.data.LoadAndDelete(key); ok {
		c.size.Add(-1)
		if c.config.OnEviction != nil {
			c.config.OnEviction(key, it.value)
		}
	}
}

// evictOne drops the entry closest to expiry to make room for a new one.
func (c *Cache) evictOne() {
	var victimKey string
	var victim item
	var found bool
	c.data.Range(func(key, value any) bool {
		it := value.(item)
		if !found || it.expiresAt.Before(victim.expiresAt) {
			victimKey = key.(string)
			victim = it
			found = true
		}
		return true
	})
	if found {
		c.remove(victimKey, victim)
	}
}

func (c *Cache) janitor() {
	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			now := time.Now()
			c.data.Range(func(key, value any) bool {
				it := value.(item)
				if now.After(it.expiresAt) {
					c.remove(key.(string), it)
				}
				return true
			})
		}
	}
}
