package lru

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bucketlabs/pail"
)

func key(k string) pail.ObjectKey {
	return pail.ObjectKey{Bucket: "b", Key: k}
}

func info(k string) *pail.ObjectInfo {
	return &pail.ObjectInfo{Bucket: "b", Key: k, Size: int64(len(k))}
}

func TestCacheGetPut(t *testing.T) {
	c := New(4)

	_, ok := c.Get(key("a"))
	require.False(t, ok)

	c.Put(key("a"), info("a"))
	got, ok := c.Get(key("a"))
	require.True(t, ok)
	assert.Equal(t, "a", got.Key)
	assert.Equal(t, 1, c.Len())
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := New(3)

	c.Put(key("a"), info("a"))
	c.Put(key("b"), info("b"))
	c.Put(key("c"), info("c"))

	// Touch a so b becomes the LRU entry.
	_, ok := c.Get(key("a"))
	require.True(t, ok)

	c.Put(key("d"), info("d"))

	_, ok = c.Get(key("b"))
	assert.False(t, ok, "b should have been evicted")
	for _, k := range []string{"a", "c", "d"} {
		_, ok := c.Get(key(k))
		assert.True(t, ok, "%s should still be cached", k)
	}
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestCachePutExistingRefreshesValueAndRecency(t *testing.T) {
	c := New(2)

	c.Put(key("a"), info("a"))
	c.Put(key("b"), info("b"))

	updated := &pail.ObjectInfo{Bucket: "b", Key: "a", Size: 99}
	c.Put(key("a"), updated)
	require.Equal(t, 2, c.Len(), "re-put must not create a duplicate entry")

	// a was refreshed, so b is now LRU and gets evicted.
	c.Put(key("c"), info("c"))

	got, ok := c.Get(key("a"))
	require.True(t, ok)
	assert.Equal(t, int64(99), got.Size)

	_, ok = c.Get(key("b"))
	assert.False(t, ok)
}

func TestCachePeekLeavesStatsAndRecencyAlone(t *testing.T) {
	c := New(2)

	c.Put(key("a"), info("a"))
	c.Put(key("b"), info("b"))

	got, ok := c.Peek(key("a"))
	require.True(t, ok)
	assert.Equal(t, "a", got.Key)

	_, ok = c.Peek(key("missing"))
	assert.False(t, ok)

	s := c.Stats()
	assert.Equal(t, uint64(0), s.Hits)
	assert.Equal(t, uint64(0), s.Misses)

	// a was peeked, not touched, so it is still LRU and gets evicted.
	c.Put(key("c"), info("c"))
	_, ok = c.Get(key("a"))
	assert.False(t, ok)
}

func TestCacheInvalidate(t *testing.T) {
	c := New(2)

	c.Put(key("a"), info("a"))
	require.True(t, c.Invalidate(key("a")))

	_, ok := c.Get(key("a"))
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())

	// Second invalidation is a no-op, as is invalidating a cold key.
	assert.False(t, c.Invalidate(key("a")))
	assert.False(t, c.Invalidate(key("never-seen")))
}

func TestCacheSlotReuseAfterInvalidate(t *testing.T) {
	c := New(2)

	c.Put(key("a"), info("a"))
	c.Put(key("b"), info("b"))
	c.Invalidate(key("a"))

	// The freed slot is recycled; capacity behaviour is unchanged.
	c.Put(key("c"), info("c"))
	c.Put(key("d"), info("d"))

	_, ok := c.Get(key("b"))
	assert.False(t, ok, "b was LRU and should have been evicted")
	for _, k := range []string{"c", "d"} {
		_, ok := c.Get(key(k))
		assert.True(t, ok)
	}
}

func TestCacheZeroCapacityDisablesCaching(t *testing.T) {
	c := New(0)

	c.Put(key("a"), info("a"))
	_, ok := c.Get(key("a"))
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())

	c = New(-5)
	assert.Equal(t, 0, c.Capacity())
}

func TestCacheSingleEntryCapacity(t *testing.T) {
	c := New(1)

	c.Put(key("a"), info("a"))
	c.Put(key("b"), info("b"))

	_, ok := c.Get(key("a"))
	assert.False(t, ok)
	_, ok = c.Get(key("b"))
	assert.True(t, ok)
}

func TestCacheStats(t *testing.T) {
	c := New(2)

	c.Put(key("a"), info("a"))
	c.Get(key("a"))
	c.Get(key("missing"))
	c.Invalidate(key("a"))

	s := c.Stats()
	assert.Equal(t, uint64(1), s.Hits)
	assert.Equal(t, uint64(1), s.Misses)
	assert.Equal(t, uint64(1), s.Invalidations)
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := New(16)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				k := key(fmt.Sprintf("k%d", i%32))
				switch i % 3 {
				case 0:
					c.Put(k, info(k.Key))
				case 1:
					c.Get(k)
				case 2:
					c.Invalidate(k)
				}
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 16)
}
