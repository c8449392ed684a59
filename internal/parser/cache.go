package parser

import (
	"container/list"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// DefaultCacheSize is the default number of parse results retained.
const DefaultCacheSize = 50

// Result is a cached parse outcome. Formula text is immutable content
// and parsing is deterministic, so entries never go stale; they are
// only ever removed by LRU eviction.
type Result struct {
	Node   Node
	Errors []*ParseError
}

// Cache is a bounded, mutex-guarded LRU cache from formula text to
// parse result. It is purely an optimization: hit or miss, the caller
// observes identical output. Safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	capacity int
	entries  map[uint64]*list.Element
	order    *list.List // front = most recently used
}

type cacheEntry struct {
	key    uint64
	result Result
}

// NewCache creates a cache holding up to capacity entries. A
// non-positive capacity falls back to DefaultCacheSize.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	return &Cache{
		capacity: capacity,
		entries:  make(map[uint64]*list.Element, capacity),
		order:    list.New(),
	}
}

// Get returns the cached parse result for the formula text, if any.
func (c *Cache) Get(formula string) (Result, bool) {
	key := xxhash.Sum64String(formula)

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return Result{}, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*cacheEntry).result, true
}

// Put stores a parse result, evicting the least recently used entry
// when the cache is full.
func (c *Cache) Put(formula string, result Result) {
	key := xxhash.Sum64String(formula)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		elem.Value.(*cacheEntry).result = result
		c.order.MoveToFront(elem)
		return
	}

	if c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).key)
		}
	}

	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, result: result})
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Purge removes all entries.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[uint64]*list.Element, c.capacity)
	c.order.Init()
}
