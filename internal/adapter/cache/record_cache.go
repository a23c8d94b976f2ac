package cache

import (
	"container/list"
	"context"
	"sync"

	"kge/internal/adapter/analyzer"
	"kge/internal/domain"
	"kge/internal/port"
)

// RecordCache is a bounded LRU of entity lookups keyed by normalized key.
// Misses are cached as well; the corpus never changes while it is served.
type RecordCache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List
	maxSize int

	hits   uint64
	misses uint64
}

type cacheEntry struct {
	key    string
	result domain.EntityResult
}

func NewRecordCache(maxSize int) *RecordCache {
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &RecordCache{
		entries: make(map[string]*list.Element, maxSize),
		order:   list.New(),
		maxSize: maxSize,
	}
}

func (c *RecordCache) Get(key string) (domain.EntityResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return domain.EntityResult{}, false
	}
	c.hits++
	c.order.MoveToBack(el)
	return el.Value.(*cacheEntry).result, true
}

func (c *RecordCache) Put(key string, result domain.EntityResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).result = result
		c.order.MoveToBack(el)
		return
	}

	if c.order.Len() >= c.maxSize {
		c.evictOldest()
	}
	c.entries[key] = c.order.PushBack(&cacheEntry{key: key, result: result})
}

func (c *RecordCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (c *RecordCache) HitRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}

func (c *RecordCache) evictOldest() {
	oldest := c.order.Front()
	if oldest == nil {
		return
	}
	c.order.Remove(oldest)
	delete(c.entries, oldest.Value.(*cacheEntry).key)
}

// CachedResolver puts a RecordCache in front of an entity resolver.
type CachedResolver struct {
	resolver port.EntityResolver
	cache    *RecordCache
}

func NewCachedResolver(resolver port.EntityResolver, cache *RecordCache) *CachedResolver {
	return &CachedResolver{
		resolver: resolver,
		cache:    cache,
	}
}

func (r *CachedResolver) ResolveEntity(ctx context.Context, rawURI string) (domain.EntityResult, error) {
	key := analyzer.NormalizeKey(rawURI)
	if result, hit := r.cache.Get(key); hit {
		return result, nil
	}

	result, err := r.resolver.ResolveEntity(ctx, rawURI)
	if err != nil {
		// read failures are not cached
		return result, err
	}

	r.cache.Put(key, result)
	return result, nil
}
