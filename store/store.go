// Package store defines the metadata store contract and the cached store
// that coordinates the LRU metadata cache with the persistent store.
package store

import (
	"context"

	"github.com/bucketlabs/pail"
)

// Store is the authoritative metadata store for buckets and objects.
// Implementations must be safe for concurrent use.
type Store interface {
	// CreateBucket creates a bucket.
	// Returns pail.ErrBucketExists if the name is taken.
	CreateBucket(ctx context.Context, name string) error

	// BucketExists reports whether the bucket exists.
	BucketExists(ctx context.Context, name string) (bool, error)

	// ListBuckets returns all buckets ordered by name.
	ListBuckets(ctx context.Context) ([]pail.BucketInfo, error)

	// DeleteBucket removes an empty bucket.
	// Returns pail.ErrBucketNotFound if it does not exist and
	// pail.ErrBucketNotEmpty if it still holds objects.
	DeleteBucket(ctx context.Context, name string) error

	// GetObject returns the metadata record for key.
	// Returns pail.ErrObjectNotFound if no record exists.
	GetObject(ctx context.Context, key pail.ObjectKey) (*pail.ObjectInfo, error)

	// PutObject inserts or overwrites the metadata record (idempotent upsert).
	// Returns pail.ErrBucketNotFound if the bucket does not exist.
	PutObject(ctx context.Context, info *pail.ObjectInfo) error

	// DeleteObject removes the metadata record for key.
	// Returns pail.ErrObjectNotFound if no record exists.
	DeleteObject(ctx context.Context, key pail.ObjectKey) error

	// ListObjects returns the metadata records in a bucket ordered by key.
	// Returns pail.ErrBucketNotFound if the bucket does not exist.
	ListObjects(ctx context.Context, bucket string) ([]pail.ObjectInfo, error)
}
