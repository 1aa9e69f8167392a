// Package lru implements the bounded least-recently-used cache that holds
// object metadata records in front of the persistent store.
//
// The recency list is kept in an arena: a dense slice of nodes linked by
// integer prev/next indices, with a free list for recycled slots. This gives
// the usual O(1) hashmap-plus-linked-list guarantees without a pointer-linked
// structure.
package lru

import (
	"sync"

	"github.com/bucketlabs/pail"
)

const none = -1

type node struct {
	key        pail.ObjectKey
	value      *pail.ObjectInfo
	prev, next int
}

// Stats are cumulative cache counters since construction.
type Stats struct {
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Evictions     uint64 `json:"evictions"`
	Invalidations uint64 `json:"invalidations"`
}

// Cache is a fixed-capacity LRU cache mapping object keys to metadata
// records. All methods are safe for concurrent use; each acquires the
// internal mutex for the duration of the call and releases it before
// returning.
type Cache struct {
	mu       sync.Mutex
	capacity int
	nodes    []node
	index    map[pail.ObjectKey]int
	free     []int
	head     int // most recently used
	tail     int // least recently used
	stats    Stats
}

// New creates a cache holding at most capacity entries. A capacity of 0
// disables caching: every Put is a no-op and every Get is a miss.
// Negative capacities are treated as 0.
func New(capacity int) *Cache {
	if capacity < 0 {
		capacity = 0
	}
	return &Cache{
		capacity: capacity,
		nodes:    make([]node, 0, capacity),
		index:    make(map[pail.ObjectKey]int, capacity),
		head:     none,
		tail:     none,
	}
}

// Capacity returns the configured maximum entry count.
func (c *Cache) Capacity() int {
	return c.capacity
}

// Len returns the current number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}

// Stats returns a snapshot of the cumulative counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Get returns the cached record for key and marks it most recently used.
// A miss has no side effects.
func (c *Cache) Get(key pail.ObjectKey) (*pail.ObjectInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.index[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	c.moveToFront(i)
	c.stats.Hits++
	return c.nodes[i].value, true
}

// Peek returns the cached record for key without counting the lookup or
// refreshing its recency.
func (c *Cache) Peek(key pail.ObjectKey) (*pail.ObjectInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.index[key]
	if !ok {
		return nil, false
	}
	return c.nodes[i].value, true
}

// Put inserts or overwrites the record for key as most recently used. When
// the insertion exceeds capacity the least-recently-used entry is evicted.
func (c *Cache) Put(key pail.ObjectKey, value *pail.ObjectInfo) {
	if c.capacity == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if i, ok := c.index[key]; ok {
		// Existing entry: refresh value and recency, never duplicate.
		c.nodes[i].value = value
		c.moveToFront(i)
		return
	}

	if len(c.index) >= c.capacity {
		c.evictTail()
	}

	i := c.alloc(key, value)
	c.pushFront(i)
	c.index[key] = i
}

// Invalidate removes the entry for key if present. Removing an absent key is
// a benign no-op; it returns whether an entry was removed.
func (c *Cache) Invalidate(key pail.ObjectKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.index[key]
	if !ok {
		return false
	}
	c.remove(i)
	delete(c.index, key)
	c.stats.Invalidations++
	return true
}

// alloc takes a slot from the free list or grows the arena.
func (c *Cache) alloc(key pail.ObjectKey, value *pail.ObjectInfo) int {
	if n := len(c.free); n > 0 {
		i := c.free[n-1]
		c.free = c.free[:n-1]
		c.nodes[i] = node{key: key, value: value, prev: none, next: none}
		return i
	}
	c.nodes = append(c.nodes, node{key: key, value: value, prev: none, next: none})
	return len(c.nodes) - 1
}

func (c *Cache) evictTail() {
	t := c.tail
	if t == none {
		return
	}
	delete(c.index, c.nodes[t].key)
	c.remove(t)
	c.stats.Evictions++
}

// remove unlinks node i from the recency list and returns its slot to the
// free list.
func (c *Cache) remove(i int) {
	n := c.nodes[i]
	if n.prev != none {
		c.nodes[n.prev].next = n.next
	} else {
		c.head = n.next
	}
	if n.next != none {
		c.nodes[n.next].prev = n.prev
	} else {
		c.tail = n.prev
	}
	c.nodes[i] = node{prev: none, next: none}
	c.free = append(c.free, i)
}

func (c *Cache) pushFront(i int) {
	c.nodes[i].prev = none
	c.nodes[i].next = c.head
	if c.head != none {
		c.nodes[c.head].prev = i
	}
	c.head = i
	if c.tail == none {
		c.tail = i
	}
}

func (c *Cache) moveToFront(i int) {
	if c.head == i {
		return
	}
	n := c.nodes[i]
	if n.prev != none {
		c.nodes[n.prev].next = n.next
	}
	if n.next != none {
		c.nodes[n.next].prev = n.prev
	} else {
		c.tail = n.prev
	}
	c.pushFront(i)
}
