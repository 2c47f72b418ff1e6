package embedding

import (
	"container/list"
	"strings"
	"sync"
)

// CacheStats counts lookups against a VectorCache.
type CacheStats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

// VectorCache keeps the most recently used embeddings. Keys are text with runs of
// whitespace collapsed, so a query and an identical chunk line share one entry.
// Returned vectors are copies.
type VectorCache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List
	hits     uint64
	misses   uint64
}

type cached struct {
	key string
	vec []float32
}

// NewVectorCache returns a cache holding at most capacity vectors.
func NewVectorCache(capacity int) *VectorCache {
	if capacity < 1 {
		capacity = 1
	}
	return &VectorCache{
		capacity: capacity,
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

func cacheKey(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Get returns a copy of the vector stored for text.
func (c *VectorCache) Get(text string) ([]float32, bool) {
	key := cacheKey(text)
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.order.MoveToFront(el)
	return append([]float32(nil), el.Value.(*cached).vec...), true
}

// Put stores a copy of vec for text and evicts the least recently used entry when full.
func (c *VectorCache) Put(text string, vec []float32) {
	key := cacheKey(text)
	owned := append([]float32(nil), vec...)
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		el.Value.(*cached).vec = owned
		c.order.MoveToFront(el)
		return
	}
	c.items[key] = c.order.PushFront(&cached{key: key, vec: owned})
	for c.order.Len() > c.capacity {
		last := c.order.Back()
		c.order.Remove(last)
		delete(c.items, last.Value.(*cached).key)
	}
}

// Stats returns the entry count and lookup counters.
func (c *VectorCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Entries: c.order.Len(), Hits: c.hits, Misses: c.misses}
}
