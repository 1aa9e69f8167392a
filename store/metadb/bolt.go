package metadb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.etcd.io/bbolt"

	"github.com/bucketlabs/pail"
	"github.com/bucketlabs/pail/store"
)

// BoltDB implements store.Store using bbolt.
type BoltDB struct {
	db     *bbolt.DB
	codec  *recordCodec
	logger *slog.Logger
	now    func() time.Time
	noSync bool // disables fsync per transaction (for testing only)
}

// BoltDBOption configures a BoltDB instance.
type BoltDBOption func(*BoltDB)

// WithLogger sets the logger for the database.
func WithLogger(logger *slog.Logger) BoltDBOption {
	return func(b *BoltDB) {
		b.logger = logger
	}
}

// WithNow sets the time function for testing.
func WithNow(now func() time.Time) BoltDBOption {
	return func(b *BoltDB) {
		b.now = now
	}
}

// WithNoSync disables fsync per transaction.
// WARNING: This improves write performance but risks data loss on crash.
// Use only for testing or benchmarking, never in production.
func WithNoSync(noSync bool) BoltDBOption {
	return func(b *BoltDB) {
		b.noSync = noSync
	}
}

// NewBoltDB creates a new BoltDB instance with options.
func NewBoltDB(opts ...BoltDBOption) *BoltDB {
	b := &BoltDB{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Open opens the database at the given path.
func (b *BoltDB) Open(path string) error {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{
		Timeout: 1 * time.Second,
		NoSync:  b.noSync,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	b.db = db

	if err := b.createBuckets(); err != nil {
		_ = db.Close()
		return err
	}

	codec, err := newRecordCodec()
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("creating record codec: %w", err)
	}
	b.codec = codec

	b.logger.Debug("opened metadb", "path", path, "noSync", b.noSync)
	return nil
}

func (b *BoltDB) createBuckets() error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketBuckets, bucketObjects} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

// Close closes the database and releases resources.
func (b *BoltDB) Close() error {
	if b.codec != nil {
		b.codec.Close()
		b.codec = nil
	}
	if b.db == nil {
		return nil
	}
	b.logger.Debug("closing metadb")
	return b.db.Close()
}

// CreateBucket creates a bucket entry.
func (b *BoltDB) CreateBucket(_ context.Context, name string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		buckets := tx.Bucket(bucketBuckets)
		if buckets.Get([]byte(name)) != nil {
			return pail.ErrBucketExists
		}

		data, err := json.Marshal(pail.BucketInfo{Name: name, CreatedAt: b.now().UTC()})
		if err != nil {
			return fmt.Errorf("encoding bucket info: %w", err)
		}
		return buckets.Put([]byte(name), data)
	})
}

// BucketExists reports whether the bucket exists.
func (b *BoltDB) BucketExists(_ context.Context, name string) (bool, error) {
	var exists bool
	err := b.db.View(func(tx *bbolt.Tx) error {
		exists = tx.Bucket(bucketBuckets).Get([]byte(name)) != nil
		return nil
	})
	return exists, err
}

// ListBuckets returns all buckets ordered by name.
func (b *BoltDB) ListBuckets(_ context.Context) ([]pail.BucketInfo, error) {
	var out []pail.BucketInfo
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketBuckets).ForEach(func(_, v []byte) error {
			var info pail.BucketInfo
			if err := json.Unmarshal(v, &info); err != nil {
				return fmt.Errorf("decoding bucket info: %w", err)
			}
			out = append(out, info)
			return nil
		})
	})
	return out, err
}

// DeleteBucket removes an empty bucket.
func (b *BoltDB) DeleteBucket(_ context.Context, name string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		buckets := tx.Bucket(bucketBuckets)
		if buckets.Get([]byte(name)) == nil {
			return pail.ErrBucketNotFound
		}

		c := tx.Bucket(bucketObjects).Cursor()
		prefix := objectPrefix(name)
		if k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix) {
			return pail.ErrBucketNotEmpty
		}

		return buckets.Delete([]byte(name))
	})
}

// GetObject returns the metadata record for key.
func (b *BoltDB) GetObject(_ context.Context, key pail.ObjectKey) (*pail.ObjectInfo, error) {
	var info *pail.ObjectInfo
	err := b.db.View(func(tx *bbolt.Tx) error {
		val := tx.Bucket(bucketObjects).Get(makeObjectKey(key.Bucket, key.Key))
		if val == nil {
			return pail.ErrObjectNotFound
		}

		decoded, err := b.decodeObject(val)
		if err != nil {
			return err
		}
		info = decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// PutObject inserts or overwrites the metadata record for an object.
func (b *BoltDB) PutObject(_ context.Context, info *pail.ObjectInfo) error {
	value, err := b.encodeObject(info)
	if err != nil {
		return err
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketBuckets).Get([]byte(info.Bucket)) == nil {
			return pail.ErrBucketNotFound
		}
		return tx.Bucket(bucketObjects).Put(makeObjectKey(info.Bucket, info.Key), value)
	})
}

// DeleteObject removes the metadata record for key.
func (b *BoltDB) DeleteObject(_ context.Context, key pail.ObjectKey) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		objects := tx.Bucket(bucketObjects)
		compound := makeObjectKey(key.Bucket, key.Key)
		if objects.Get(compound) == nil {
			return pail.ErrObjectNotFound
		}
		return objects.Delete(compound)
	})
}

// ListObjects returns the metadata records in a bucket ordered by key.
func (b *BoltDB) ListObjects(_ context.Context, bucket string) ([]pail.ObjectInfo, error) {
	var out []pail.ObjectInfo
	err := b.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketBuckets).Get([]byte(bucket)) == nil {
			return pail.ErrBucketNotFound
		}

		c := tx.Bucket(bucketObjects).Cursor()
		prefix := objectPrefix(bucket)
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			info, err := b.decodeObject(v)
			if err != nil {
				_, key := parseObjectKey(k)
				return fmt.Errorf("decoding object %q: %w", key, err)
			}
			out = append(out, *info)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *BoltDB) encodeObject(info *pail.ObjectInfo) ([]byte, error) {
	data, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("encoding object info: %w", err)
	}
	value, err := b.codec.Encode(data)
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	return value, nil
}

func (b *BoltDB) decodeObject(value []byte) (*pail.ObjectInfo, error) {
	data, err := b.codec.Decode(value)
	if err != nil {
		return nil, err
	}
	var info pail.ObjectInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupted, err)
	}
	return &info, nil
}

var _ store.Store = (*BoltDB)(nil)
