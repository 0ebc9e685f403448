package draft

import (
	"sync"
	"time"

	"github.com/mailmeimmu/echeck-sub000/model"
)

const (
	cacheFreshFor  = 10 * time.Second
	cacheRetainFor = 5 * time.Minute
)

type cacheEntry struct {
	draft     *model.Draft // nil means known-absent
	fetchedAt time.Time
}

// Cache is the read cache for fetched drafts. A fetch result stays
// fresh for 10 seconds and is retained up to 5 minutes as a stale
// fallback for hydration when the store is unreachable. The cache is
// passed to every consumer explicitly; there is no package-level
// instance.
type Cache struct {
	mu      sync.Mutex
	entries map[model.DraftKey]cacheEntry

	freshFor  time.Duration
	retainFor time.Duration
	now       func() time.Time
}

func NewCache() *Cache {
	return &Cache{
		entries:   map[model.DraftKey]cacheEntry{},
		freshFor:  cacheFreshFor,
		retainFor: cacheRetainFor,
		now:       time.Now,
	}
}

// Get returns the cached result while it is fresh. ok distinguishes a
// usable entry from a miss: (nil, true) means the store was recently
// confirmed to hold no draft.
func (c *Cache) Get(key model.DraftKey) (draft *model.Draft, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.entries[key]
	if !found {
		return nil, false
	}
	age := c.now().Sub(e.fetchedAt)
	if age > c.retainFor {
		delete(c.entries, key)
		return nil, false
	}
	if age > c.freshFor {
		return nil, false
	}
	return e.draft, true
}

// GetStale returns any retained entry regardless of freshness. Used as
// a last resort when a re-fetch fails transiently.
func (c *Cache) GetStale(key model.DraftKey) (draft *model.Draft, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.entries[key]
	if !found {
		return nil, false
	}
	if c.now().Sub(e.fetchedAt) > c.retainFor {
		delete(c.entries, key)
		return nil, false
	}
	return e.draft, true
}

func (c *Cache) Put(key model.DraftKey, draft *model.Draft) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{draft: draft, fetchedAt: c.now()}
}

func (c *Cache) Invalidate(key model.DraftKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
