package categorization

import (
	"slices"
	"sync"
	"time"
)

// Cache holds the category list for a bounded time. The clock is
// injectable so tests can expire entries without sleeping.
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu        sync.RWMutex
	items     []Category
	expiresAt time.Time
	loaded    bool
}

// NewCache creates a cache with the given TTL. A nil clock uses time.Now.
func NewCache(ttl time.Duration, now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{ttl: ttl, now: now}
}

// Get returns a copy of the cached categories while they are fresh.
func (c *Cache) Get() ([]Category, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loaded || !c.now().Before(c.expiresAt) {
		return nil, false
	}
	return cloneCategories(c.items), true
}

// Set replaces the cached categories.
func (c *Cache) Set(categories []Category) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = cloneCategories(categories)
	c.expiresAt = c.now().Add(c.ttl)
	c.loaded = true
}

// Invalidate drops the cached categories.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = nil
	c.loaded = false
}

func cloneCategories(in []Category) []Category {
	out := make([]Category, len(in))
	for i, c := range in {
		c.Keywords = slices.Clone(c.Keywords)
		out[i] = c
	}
	return out
}
