package backend

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFilesystem(t *testing.T) *Filesystem {
	t.Helper()
	fs, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	return fs
}

func TestFilesystemWriteRead(t *testing.T) {
	ctx := context.Background()
	fs := newTestFilesystem(t)

	data := []byte("object body bytes")
	require.NoError(t, fs.Write(ctx, "blobs/photos/abc123", bytes.NewReader(data)))

	rc, err := fs.Read(ctx, "blobs/photos/abc123")
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestFilesystemWriteOverwrites(t *testing.T) {
	ctx := context.Background()
	fs := newTestFilesystem(t)

	require.NoError(t, fs.Write(ctx, "blobs/a", bytes.NewReader([]byte("old"))))
	require.NoError(t, fs.Write(ctx, "blobs/a", bytes.NewReader([]byte("new"))))

	rc, err := fs.Read(ctx, "blobs/a")
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), got)
}

func TestFilesystemReadMissing(t *testing.T) {
	ctx := context.Background()
	fs := newTestFilesystem(t)

	_, err := fs.Read(ctx, "blobs/missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFilesystemDelete(t *testing.T) {
	ctx := context.Background()
	fs := newTestFilesystem(t)

	require.NoError(t, fs.Write(ctx, "blobs/a", bytes.NewReader([]byte("x"))))
	require.NoError(t, fs.Delete(ctx, "blobs/a"))

	_, err := fs.Read(ctx, "blobs/a")
	require.ErrorIs(t, err, ErrNotFound)

	// Deleting a missing key is idempotent.
	require.NoError(t, fs.Delete(ctx, "blobs/a"))
}

func TestFilesystemExistsAndSize(t *testing.T) {
	ctx := context.Background()
	fs := newTestFilesystem(t)

	exists, err := fs.Exists(ctx, "blobs/a")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, fs.Write(ctx, "blobs/a", bytes.NewReader([]byte("12345"))))

	exists, err = fs.Exists(ctx, "blobs/a")
	require.NoError(t, err)
	assert.True(t, exists)

	size, err := fs.Size(ctx, "blobs/a")
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)

	_, err = fs.Size(ctx, "blobs/missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFilesystemList(t *testing.T) {
	ctx := context.Background()
	fs := newTestFilesystem(t)

	require.NoError(t, fs.Write(ctx, "blobs/photos/a", bytes.NewReader([]byte("1"))))
	require.NoError(t, fs.Write(ctx, "blobs/photos/b", bytes.NewReader([]byte("2"))))
	require.NoError(t, fs.Write(ctx, "blobs/docs/c", bytes.NewReader([]byte("3"))))

	keys, err := fs.List(ctx, "blobs/photos")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"blobs/photos/a", "blobs/photos/b"}, keys)

	keys, err = fs.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, keys, 3)

	keys, err = fs.List(ctx, "blobs/nonexistent")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestFilesystemRejectsEscapingKeys(t *testing.T) {
	ctx := context.Background()
	fs := newTestFilesystem(t)

	for _, key := range []string{"", "/etc/passwd", "../outside", "blobs/../../outside"} {
		err := fs.Write(ctx, key, bytes.NewReader([]byte("x")))
		assert.ErrorIs(t, err, ErrInvalidKey, "key %q", key)

		_, err = fs.Read(ctx, key)
		assert.ErrorIs(t, err, ErrInvalidKey, "key %q", key)
	}
}

func TestFilesystemWriteLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	fs := newTestFilesystem(t)

	require.NoError(t, fs.Write(ctx, "blobs/a", bytes.NewReader([]byte("x"))))

	entries, err := os.ReadDir(filepath.Join(fs.Root(), "blobs"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].Name())
}
