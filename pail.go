// Package pail defines the shared types for the pail object-storage service:
// object identities, metadata records and the error taxonomy used across the
// metadata store, cache and HTTP layers.
package pail

import (
	"errors"
	"time"
)

// Errors surfaced by the metadata store. The cache layer never produces
// errors of its own; it degrades to a miss.
var (
	// ErrObjectNotFound is returned when an object does not exist.
	ErrObjectNotFound = errors.New("pail: object not found")

	// ErrBucketNotFound is returned when a bucket does not exist.
	ErrBucketNotFound = errors.New("pail: bucket not found")

	// ErrBucketExists is returned when creating a bucket that already exists.
	ErrBucketExists = errors.New("pail: bucket already exists")

	// ErrBucketNotEmpty is returned when deleting a bucket that still holds objects.
	ErrBucketNotEmpty = errors.New("pail: bucket not empty")
)

// ObjectKey identifies an object within a bucket. It is a comparable value
// used as the lookup identity for both the metadata store and the cache.
type ObjectKey struct {
	Bucket string
	Key    string
}

// String returns the key in "bucket/key" form for logging.
func (k ObjectKey) String() string {
	return k.Bucket + "/" + k.Key
}

// ObjectInfo is the metadata record for a stored object. The metadata store
// owns the authoritative record; the cache holds copies.
type ObjectInfo struct {
	Bucket       string    `json:"bucket"`
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ETag         Hash      `json:"etag"`
	ContentType  string    `json:"content_type"`
	LastModified time.Time `json:"last_modified"`

	// BlobKey is the opaque location of the object bytes in the backend.
	BlobKey string `json:"blob_key"`
}

// ObjectKey returns the lookup identity for this record.
func (o *ObjectInfo) ObjectKey() ObjectKey {
	return ObjectKey{Bucket: o.Bucket, Key: o.Key}
}

// BucketInfo describes a bucket.
type BucketInfo struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// MaxBucketNameLength is the maximum allowed bucket name length.
const MaxBucketNameLength = 63

// ValidBucketName reports whether name is a legal bucket name: 1-63
// characters of lowercase letters, digits, hyphens and dots, starting and
// ending with a letter or digit.
func ValidBucketName(name string) bool {
	if len(name) == 0 || len(name) > MaxBucketNameLength {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '.':
			if i == 0 || i == len(name)-1 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
