package cache

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/c360/visualscript/errors"
)

type lruEntry[V any] struct {
	key   string
	value V
}

// LRU evicts the least recently used entry once it holds more than its maximum
// size
type LRU[V any] struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element
	order   *list.List // front is most recently used
	stats   *Statistics
	evictFn EvictCallback[V]
}

// NewLRU creates a cache holding at most maxSize entries
func NewLRU[V any](maxSize int, opts ...Option[V]) (*LRU[V], error) {
	if maxSize <= 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: cache size must be positive, got %d", errors.ErrInvalidConfig, maxSize),
			"cache", "NewLRU", "size check")
	}
	var o options[V]
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return &LRU[V]{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		order:   list.New(),
		stats:   &Statistics{},
		evictFn: o.evictFn,
	}, nil
}

// Get returns the value for key and marks it recently used
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.items[key]
	if !ok {
		c.stats.miss()
		var zero V
		return zero, false
	}
	c.order.MoveToFront(element)
	c.stats.hit()
	return element.Value.(*lruEntry[V]).value, true
}

// Set stores value under key. It reports whether a new entry was created.
func (c *LRU[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	if element, ok := c.items[key]; ok {
		element.Value.(*lruEntry[V]).value = value
		c.order.MoveToFront(element)
		c.mu.Unlock()
		return false, nil
	}

	c.items[key] = c.order.PushFront(&lruEntry[V]{key: key, value: value})
	var evicted *lruEntry[V]
	if len(c.items) > c.maxSize {
		evicted = c.removeElement(c.order.Back())
		c.stats.eviction()
	}
	c.stats.resize(len(c.items))
	c.mu.Unlock()

	if evicted != nil && c.evictFn != nil {
		c.evictFn(evicted.key, evicted.value)
	}
	return true, nil
}

// GetOrSet returns the cached value for key, or stores and returns the result
// of create. Errors from create are returned without caching.
func (c *LRU[V]) GetOrSet(key string, create func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := create()
	if err != nil {
		return v, err
	}
	if _, err := c.Set(key, v); err != nil {
		return v, err
	}
	return v, nil
}

// Delete removes key and reports whether it was present
func (c *LRU[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	element, ok := c.items[key]
	if !ok {
		c.mu.Unlock()
		return false, nil
	}
	removed := c.removeElement(element)
	c.stats.resize(len(c.items))
	c.mu.Unlock()

	if c.evictFn != nil {
		c.evictFn(removed.key, removed.value)
	}
	return true, nil
}

// Clear removes every entry, least recently used first
func (c *LRU[V]) Clear() {
	c.mu.Lock()
	var removed []*lruEntry[V]
	if c.evictFn != nil {
		removed = make([]*lruEntry[V], 0, len(c.items))
		for element := c.order.Back(); element != nil; element = element.Prev() {
			removed = append(removed, element.Value.(*lruEntry[V]))
		}
	}
	c.items = make(map[string]*list.Element)
	c.order.Init()
	c.stats.resize(0)
	c.mu.Unlock()

	for _, entry := range removed {
		c.evictFn(entry.key, entry.value)
	}
}

// Len returns the number of entries
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Keys returns the keys, most recently used first
func (c *LRU[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.items))
	for element := c.order.Front(); element != nil; element = element.Next() {
		keys = append(keys, element.Value.(*lruEntry[V]).key)
	}
	return keys
}

// Stats returns the live statistics of c
func (c *LRU[V]) Stats() *Statistics {
	return c.stats
}

// removeElement unlinks element. Callers hold c.mu.
func (c *LRU[V]) removeElement(element *list.Element) *lruEntry[V] {
	entry := element.Value.(*lruEntry[V])
	delete(c.items, entry.key)
	c.order.Remove(element)
	return entry
}
