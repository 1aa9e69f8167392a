// Package backend provides byte-storage backends for object bodies. The
// metadata layer treats the backend as an opaque collaborator addressed by
// blob keys.
package backend

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a blob key does not exist in the backend.
var ErrNotFound = errors.New("not found")

// ErrInvalidKey is returned for blob keys that escape the backend root.
var ErrInvalidKey = errors.New("invalid key")

// Backend defines the interface for byte-storage backends.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Write stores data at the given blob key.
	// If the key already exists, it is overwritten.
	Write(ctx context.Context, key string, r io.Reader) error

	// Read retrieves data at the given blob key.
	// Returns ErrNotFound if the key does not exist.
	// The caller must close the returned ReadCloser.
	Read(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes data at the given blob key.
	// Returns nil if the key does not exist (idempotent).
	Delete(ctx context.Context, key string) error

	// Exists checks if a blob key exists.
	Exists(ctx context.Context, key string) (bool, error)

	// Size returns the size in bytes of the data at the given blob key.
	// Returns ErrNotFound if the key does not exist.
	Size(ctx context.Context, key string) (int64, error)

	// List returns all blob keys with the given prefix.
	// The prefix uses "/" as the path separator.
	List(ctx context.Context, prefix string) ([]string, error)
}
