package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bucketlabs/pail"
	"github.com/bucketlabs/pail/backend"
	"github.com/bucketlabs/pail/telemetry"
)

// handleCreateBucket handles PUT /buckets/{bucket}.
func (s *Server) handleCreateBucket(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "bucket_create")
	name := r.PathValue("bucket")

	if !pail.ValidBucketName(name) {
		writeError(w, http.StatusBadRequest, "invalid bucket name")
		return
	}

	if err := s.meta.CreateBucket(r.Context(), name); err != nil {
		if errors.Is(err, pail.ErrBucketExists) {
			writeError(w, http.StatusConflict, fmt.Sprintf("bucket %q already exists", name))
			return
		}
		s.internalError(w, r, "creating bucket", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"message": fmt.Sprintf("bucket %q created", name),
	})
}

// handleListBuckets handles GET /buckets.
func (s *Server) handleListBuckets(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "bucket_list")

	buckets, err := s.meta.ListBuckets(r.Context())
	if err != nil {
		s.internalError(w, r, "listing buckets", err)
		return
	}
	if buckets == nil {
		buckets = []pail.BucketInfo{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"buckets": buckets})
}

// handleHeadBucket handles HEAD /buckets/{bucket}.
func (s *Server) handleHeadBucket(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "bucket_head")
	name := r.PathValue("bucket")

	exists, err := s.meta.BucketExists(r.Context(), name)
	if err != nil {
		s.internalError(w, r, "checking bucket", err)
		return
	}
	if !exists {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleDeleteBucket handles DELETE /buckets/{bucket}.
func (s *Server) handleDeleteBucket(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "bucket_delete")
	name := r.PathValue("bucket")

	if err := s.meta.DeleteBucket(r.Context(), name); err != nil {
		switch {
		case errors.Is(err, pail.ErrBucketNotFound):
			writeError(w, http.StatusNotFound, fmt.Sprintf("bucket %q not found", name))
		case errors.Is(err, pail.ErrBucketNotEmpty):
			writeError(w, http.StatusConflict, fmt.Sprintf("bucket %q is not empty", name))
		default:
			s.internalError(w, r, "deleting bucket", err)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handlePutObject handles PUT /objects/{bucket}/{key...}. The body is
// streamed to the byte backend under a fresh blob key while the ETag is
// computed, then the metadata record is committed through the cached store
// so any stale cache entry is invalidated before the client sees 201.
func (s *Server) handlePutObject(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "object_put")
	ctx := r.Context()
	bucketName := r.PathValue("bucket")
	objectKey := r.PathValue("key")

	if objectKey == "" {
		writeError(w, http.StatusBadRequest, "object key cannot be empty")
		return
	}

	exists, err := s.meta.BucketExists(ctx, bucketName)
	if err != nil {
		s.internalError(w, r, "checking bucket", err)
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, fmt.Sprintf("bucket %q not found", bucketName))
		return
	}

	key := pail.ObjectKey{Bucket: bucketName, Key: objectKey}

	// Previous record, if any, so the replaced blob can be cleaned up.
	prev, _, err := s.meta.LookupObject(ctx, key)
	if err != nil && !errors.Is(err, pail.ErrObjectNotFound) {
		s.internalError(w, r, "reading previous object metadata", err)
		return
	}

	// Each write gets a fresh blob key so a failed upload never clobbers
	// the committed bytes of the previous version.
	blobKey := fmt.Sprintf("blobs/%s/%s", bucketName, uuid.NewString())

	hasher := pail.NewHasher()
	if err := s.backend.Write(ctx, blobKey, io.TeeReader(r.Body, hasher)); err != nil {
		s.internalError(w, r, "storing object bytes", err)
		return
	}

	info := &pail.ObjectInfo{
		Bucket:       bucketName,
		Key:          objectKey,
		Size:         hasher.Size(),
		ETag:         hasher.Sum(),
		ContentType:  contentTypeFor(r, objectKey),
		LastModified: time.Now().UTC(),
		BlobKey:      blobKey,
	}

	if err := s.meta.PutObject(ctx, info); err != nil {
		// The metadata commit failed; remove the orphaned blob.
		if derr := s.backend.Delete(ctx, blobKey); derr != nil {
			s.logger.Warn("removing orphaned blob failed", "blob_key", blobKey, "error", derr)
		}
		if errors.Is(err, pail.ErrBucketNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("bucket %q not found", bucketName))
			return
		}
		s.internalError(w, r, "storing object metadata", err)
		return
	}

	// The new record is committed and the cache invalidated; the old blob
	// is unreachable and can go. A failure here leaves an orphan, never a
	// dangling record.
	if prev != nil && prev.BlobKey != blobKey {
		if err := s.backend.Delete(ctx, prev.BlobKey); err != nil {
			s.logger.Warn("removing replaced blob failed", "blob_key", prev.BlobKey, "error", err)
		}
	}

	telemetry.RecordObjectWrite(ctx, info.Size, prev == nil)

	w.Header().Set("ETag", quoteETag(info.ETag))
	writeJSON(w, http.StatusCreated, map[string]string{
		"message": fmt.Sprintf("object %q stored in bucket %q", objectKey, bucketName),
	})
}

// handleGetObject handles GET /objects/{bucket}/{key...}.
func (s *Server) handleGetObject(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "object_get")
	ctx := r.Context()

	info, ok := s.lookupObject(w, r)
	if !ok {
		return
	}
	if writeNotModified(w, r, info) {
		return
	}

	rc, err := s.backend.Read(ctx, info.BlobKey)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			// Metadata says the object exists but the bytes are gone.
			s.logger.Error("object bytes missing for committed metadata",
				"key", info.ObjectKey().String(), "blob_key", info.BlobKey)
			writeError(w, http.StatusInternalServerError, "object data not found")
			return
		}
		s.internalError(w, r, "reading object bytes", err)
		return
	}
	defer rc.Close()

	setObjectHeaders(w, info)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn("streaming object failed", "key", info.ObjectKey().String(), "error", err)
	}
}

// handleHeadObject handles HEAD /objects/{bucket}/{key...}.
func (s *Server) handleHeadObject(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "object_head")

	info, ok := s.lookupObject(w, r)
	if !ok {
		return
	}
	if writeNotModified(w, r, info) {
		return
	}

	setObjectHeaders(w, info)
	w.WriteHeader(http.StatusOK)
}

// handleDeleteObject handles DELETE /objects/{bucket}/{key...}.
func (s *Server) handleDeleteObject(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "object_delete")
	ctx := r.Context()
	key := pail.ObjectKey{Bucket: r.PathValue("bucket"), Key: r.PathValue("key")}

	// Fetch the record first so the blob can be removed after the metadata
	// delete commits.
	info, _, err := s.meta.LookupObject(ctx, key)
	if err != nil {
		if errors.Is(err, pail.ErrObjectNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("object %q not found in bucket %q", key.Key, key.Bucket))
			return
		}
		s.internalError(w, r, "reading object metadata", err)
		return
	}

	if err := s.meta.DeleteObject(ctx, key); err != nil {
		if errors.Is(err, pail.ErrObjectNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("object %q not found in bucket %q", key.Key, key.Bucket))
			return
		}
		s.internalError(w, r, "deleting object metadata", err)
		return
	}

	if err := s.backend.Delete(ctx, info.BlobKey); err != nil {
		s.logger.Warn("removing deleted object blob failed", "blob_key", info.BlobKey, "error", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleListObjects handles GET /objects/{bucket}.
func (s *Server) handleListObjects(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "object_list")
	bucketName := r.PathValue("bucket")

	objects, err := s.meta.ListObjects(r.Context(), bucketName)
	if err != nil {
		if errors.Is(err, pail.ErrBucketNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("bucket %q not found", bucketName))
			return
		}
		s.internalError(w, r, "listing objects", err)
		return
	}
	if objects == nil {
		objects = []pail.ObjectInfo{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"objects": objects})
}

// lookupObject resolves the object metadata for a GET/HEAD request through
// the cached store, tagging the request with the cache result and writing
// the error response on failure.
func (s *Server) lookupObject(w http.ResponseWriter, r *http.Request) (*pail.ObjectInfo, bool) {
	key := pail.ObjectKey{Bucket: r.PathValue("bucket"), Key: r.PathValue("key")}

	info, hit, err := s.meta.LookupObject(r.Context(), key)
	if err != nil {
		if errors.Is(err, pail.ErrObjectNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("object %q not found in bucket %q", key.Key, key.Bucket))
			return nil, false
		}
		s.internalError(w, r, "reading object metadata", err)
		return nil, false
	}

	if hit {
		telemetry.SetCacheResult(r, telemetry.CacheHit)
	} else {
		telemetry.SetCacheResult(r, telemetry.CacheMiss)
	}
	return info, true
}

// contentTypeFor resolves the content type for an uploaded object: the
// client's Content-Type header wins, then the key's extension, then the
// generic fallback.
func contentTypeFor(r *http.Request, key string) string {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// writeNotModified answers a conditional GET/HEAD with 304 when the client's
// If-None-Match header carries the object's current ETag.
func writeNotModified(w http.ResponseWriter, r *http.Request, info *pail.ObjectInfo) bool {
	match := strings.Trim(r.Header.Get("If-None-Match"), `"`)
	if match == "" {
		return false
	}

	etag, err := pail.ParseHash(match)
	if err != nil || etag != info.ETag {
		return false
	}

	w.Header().Set("ETag", quoteETag(info.ETag))
	w.WriteHeader(http.StatusNotModified)
	return true
}

func setObjectHeaders(w http.ResponseWriter, info *pail.ObjectInfo) {
	w.Header().Set("Content-Type", info.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	w.Header().Set("ETag", quoteETag(info.ETag))
	w.Header().Set("Last-Modified", info.LastModified.UTC().Format(http.TimeFormat))
}

func quoteETag(h pail.Hash) string {
	return `"` + h.String() + `"`
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.logger.Error(msg, "method", r.Method, "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
