package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bucketlabs/pail"
	"github.com/bucketlabs/pail/store/lru"
	"github.com/bucketlabs/pail/telemetry"
)

// CachedStore fronts an authoritative Store with a bounded LRU cache of
// object metadata and enforces write-invalidation consistency: every store
// mutation invalidates the cached entry before the call returns, and only the
// read path ever populates the cache.
//
// Concurrency model:
//   - Cache hits go straight to the LRU, which has its own internal lock.
//     A read racing a write to the same key may observe the pre-write record,
//     which is fine: that write has not been acknowledged yet.
//   - The miss-populate sequence and the mutate-then-invalidate sequences are
//     serialised by a single coordinator mutex, so an invalidation can never
//     fire between a later write's store commit and its own invalidation,
//     and a populate can never race a committed write it has not seen.
type CachedStore struct {
	store  Store
	cache  *lru.Cache
	mu     sync.Mutex
	logger *slog.Logger
}

// CachedStoreOption configures a CachedStore.
type CachedStoreOption func(*CachedStore)

// WithLogger sets the logger used for cache events.
func WithLogger(logger *slog.Logger) CachedStoreOption {
	return func(c *CachedStore) {
		c.logger = logger
	}
}

// NewCachedStore creates a cached store over the given authoritative store.
// capacity is the maximum number of cached metadata records; 0 disables
// caching and turns every read into a store round-trip.
func NewCachedStore(s Store, capacity int, opts ...CachedStoreOption) *CachedStore {
	c := &CachedStore{
		store:  s,
		cache:  lru.New(capacity),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CacheStats returns a snapshot of the cache counters and current size.
func (c *CachedStore) CacheStats() (lru.Stats, int, int) {
	return c.cache.Stats(), c.cache.Len(), c.cache.Capacity()
}

// GetObject returns the metadata record for key, serving from the cache when
// possible and populating it on a miss. This is the only path that ever
// inserts into the cache.
func (c *CachedStore) GetObject(ctx context.Context, key pail.ObjectKey) (*pail.ObjectInfo, error) {
	info, _, err := c.LookupObject(ctx, key)
	return info, err
}

// LookupObject is GetObject plus whether the record was served from the
// cache, for callers that report the cache result per request.
func (c *CachedStore) LookupObject(ctx context.Context, key pail.ObjectKey) (*pail.ObjectInfo, bool, error) {
	if info, ok := c.cache.Get(key); ok {
		telemetry.RecordCacheLookup(ctx, telemetry.LookupHit)
		return info, true, nil
	}
	telemetry.RecordCacheLookup(ctx, telemetry.LookupMiss)

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another miss for the same key may have populated the cache while we
	// waited for the lock. The fast path already counted this lookup, so
	// peek without touching the counters.
	if info, ok := c.cache.Peek(key); ok {
		return info, false, nil
	}

	start := time.Now()
	info, err := c.store.GetObject(ctx, key)
	telemetry.RecordStoreOp(ctx, "get", outcomeFromError(err), time.Since(start))
	if err != nil {
		return nil, false, err
	}

	c.cache.Put(key, info)
	return info, false, nil
}

// PutObject writes the record to the store and, once the write has
// committed, removes any cached entry for the key. The record is never
// inserted into the cache here; the next read repopulates it. A store
// failure leaves the cache untouched.
func (c *CachedStore) PutObject(ctx context.Context, info *pail.ObjectInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	err := c.store.PutObject(ctx, info)
	telemetry.RecordStoreOp(ctx, "put", outcomeFromError(err), time.Since(start))
	if err != nil {
		return err
	}

	if c.cache.Invalidate(info.ObjectKey()) {
		telemetry.RecordCacheInvalidation(ctx)
		c.logger.Debug("invalidated cached metadata",
			"key", info.ObjectKey().String(), "etag", info.ETag.ShortString(), "reason", "put")
	}
	return nil
}

// DeleteObject removes the record from the store and then invalidates any
// cached entry. Invalidating a key that was never cached is a no-op.
func (c *CachedStore) DeleteObject(ctx context.Context, key pail.ObjectKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	err := c.store.DeleteObject(ctx, key)
	telemetry.RecordStoreOp(ctx, "delete", outcomeFromError(err), time.Since(start))
	if err != nil {
		return err
	}

	if c.cache.Invalidate(key) {
		telemetry.RecordCacheInvalidation(ctx)
		c.logger.Debug("invalidated cached metadata", "key", key.String(), "reason", "delete")
	}
	return nil
}

// Bucket operations are not cached and delegate to the store.

func (c *CachedStore) CreateBucket(ctx context.Context, name string) error {
	return c.store.CreateBucket(ctx, name)
}

func (c *CachedStore) BucketExists(ctx context.Context, name string) (bool, error) {
	return c.store.BucketExists(ctx, name)
}

func (c *CachedStore) ListBuckets(ctx context.Context) ([]pail.BucketInfo, error) {
	return c.store.ListBuckets(ctx)
}

func (c *CachedStore) DeleteBucket(ctx context.Context, name string) error {
	return c.store.DeleteBucket(ctx, name)
}

func (c *CachedStore) ListObjects(ctx context.Context, bucket string) ([]pail.ObjectInfo, error) {
	return c.store.ListObjects(ctx, bucket)
}

func outcomeFromError(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, pail.ErrObjectNotFound), errors.Is(err, pail.ErrBucketNotFound):
		return "not_found"
	default:
		return "error"
	}
}

var _ Store = (*CachedStore)(nil)
