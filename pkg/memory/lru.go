package memory

import (
	"container/list"
	"sync"
)

// lruCache is a bounded least-recently-used map. All operations are guarded
// so concurrent request handlers cannot tear the list.
type lruCache[K comparable, V any] struct {
	mu       sync.RWMutex
	capacity int
	order    *list.List
	items    map[K]*list.Element
}

type lruEntry[K comparable, V any] struct {
	key   K
	value V
}

func newLRUCache[K comparable, V any](capacity int) *lruCache[K, V] {
	if capacity < 1 {
		capacity = 1
	}
	return &lruCache[K, V]{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[K]*list.Element),
	}
}

// Get returns the value and marks the key most recently used.
func (c *lruCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*lruEntry[K, V]).value, true
}

// Put inserts or updates a key, evicting the least recently used entry when
// over capacity.
func (c *lruCache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		elem.Value.(*lruEntry[K, V]).value = value
		c.order.MoveToFront(elem)
		return
	}

	elem := c.order.PushFront(&lruEntry[K, V]{key: key, value: value})
	c.items[key] = elem

	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*lruEntry[K, V]).key)
		}
	}
}

// Remove evicts a key, reporting whether it was present.
func (c *lruCache[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return false
	}
	c.order.Remove(elem)
	delete(c.items, key)
	return true
}

// Len returns the current entry count.
func (c *lruCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len()
}
