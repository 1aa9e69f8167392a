// Package server provides the HTTP server for the pail object-storage service.
package server

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/bucketlabs/pail/backend"
	"github.com/bucketlabs/pail/store"
	"github.com/bucketlabs/pail/store/metadb"
	"github.com/bucketlabs/pail/telemetry"
)

// Config holds server configuration.
type Config struct {
	// Address to listen on (e.g., ":8080")
	Address string

	// DataPath is the root directory for object bytes and the metadata
	// database.
	DataPath string

	// CacheSize is the maximum number of object metadata records held in
	// the in-memory LRU cache. 0 disables caching.
	CacheSize int

	// APIKeys are the accepted values for the X-API-Key header. When empty,
	// requests are not authenticated.
	APIKeys []string

	// Logger for the server
	Logger *slog.Logger
}

// Server is the HTTP server for the object-storage service.
type Server struct {
	config     Config
	httpServer *http.Server
	logger     *slog.Logger

	// Components
	backend backend.Backend
	db      *metadb.BoltDB
	meta    *store.CachedStore
}

// New creates a new server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Address == "" {
		cfg.Address = ":8080"
	}
	if cfg.DataPath == "" {
		cfg.DataPath = "./data"
	}

	// Byte storage for object bodies
	fsBackend, err := backend.NewFilesystem(cfg.DataPath)
	if err != nil {
		return nil, fmt.Errorf("creating filesystem backend: %w", err)
	}

	// Authoritative metadata store
	db := metadb.NewBoltDB(metadb.WithLogger(cfg.Logger.With("component", "metadb")))
	if err := db.Open(fsBackend.Root() + "/metadata.db"); err != nil {
		return nil, fmt.Errorf("opening metadata database: %w", err)
	}

	// LRU cache + invalidation coordinator in front of the store
	meta := store.NewCachedStore(db, cfg.CacheSize,
		store.WithLogger(cfg.Logger.With("component", "metacache")))

	if err := telemetry.RegisterCacheStats(
		func() int64 {
			_, entries, _ := meta.CacheStats()
			return int64(entries)
		},
		func() int64 {
			stats, _, _ := meta.CacheStats()
			return int64(stats.Evictions)
		},
	); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("registering cache metrics: %w", err)
	}

	s := &Server{
		config:  cfg,
		logger:  cfg.Logger,
		backend: backend.NewInstrumentedBackend(fsBackend, "filesystem"),
		db:      db,
		meta:    meta,
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.loggingMiddleware(s.authMiddleware(mux)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // Long timeout for large object transfers
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// registerRoutes sets up the HTTP routes.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// Health check
	mux.HandleFunc("GET /health", s.handleHealth)

	// Metadata cache stats
	mux.HandleFunc("GET /stats", s.handleStats)

	// Prometheus metrics endpoint (returns 404 if not enabled)
	mux.Handle("GET /metrics", telemetry.PrometheusHandler())

	// Bucket endpoints
	mux.HandleFunc("GET /buckets", s.handleListBuckets)
	mux.HandleFunc("PUT /buckets/{bucket}", s.handleCreateBucket)
	mux.HandleFunc("HEAD /buckets/{bucket}", s.handleHeadBucket)
	mux.HandleFunc("DELETE /buckets/{bucket}", s.handleDeleteBucket)

	// Object endpoints
	mux.HandleFunc("GET /objects/{bucket}", s.handleListObjects)
	mux.HandleFunc("PUT /objects/{bucket}/{key...}", s.handlePutObject)
	mux.HandleFunc("GET /objects/{bucket}/{key...}", s.handleGetObject)
	mux.HandleFunc("HEAD /objects/{bucket}/{key...}", s.handleHeadObject)
	mux.HandleFunc("DELETE /objects/{bucket}/{key...}", s.handleDeleteObject)
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleStats reports metadata cache statistics.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, entries, capacity := s.meta.CacheStats()

	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w,
		`{"cache":{"capacity":%d,"entries":%d,"hits":%d,"misses":%d,"evictions":%d,"invalidations":%d}}`,
		capacity,
		entries,
		stats.Hits,
		stats.Misses,
		stats.Evictions,
		stats.Invalidations,
	)
}

// loggingMiddleware logs HTTP requests with structured fields for analysis.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		// Inject request tags so handlers can set cache_result and endpoint.
		r = telemetry.InjectTags(r)
		tags := telemetry.GetTags(r)

		// Wrap response writer to capture status and bytes
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)

		attrs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,

			"status", wrapped.status,
			"status_class", telemetry.StatusClass(wrapped.status),
			"bytes_sent", wrapped.bytesWritten,

			"duration_ms", duration.Milliseconds(),

			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		}

		if tags.Endpoint != "" {
			attrs = append(attrs, "endpoint", tags.Endpoint)
		}
		if tags.CacheResult != "" {
			attrs = append(attrs, "cache_result", string(tags.CacheResult))
		}

		s.logger.Info("http request", attrs...)

		telemetry.RecordHTTP(r.Context(), r, wrapped.status, wrapped.bytesWritten, duration)
	})
}

// Start starts the server.
func (s *Server) Start() error {
	s.logger.Info("starting server",
		"address", s.config.Address,
		"data_path", s.config.DataPath,
		"cache_size", s.config.CacheSize,
	)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server and closes the metadata database.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	return s.db.Close()
}

// Address returns the server's listen address.
func (s *Server) Address() string {
	return s.config.Address
}

// responseWriter wraps http.ResponseWriter to capture the status code and bytes written.
// It preserves http.Flusher and http.Hijacker interfaces for streaming support.
type responseWriter struct {
	http.ResponseWriter
	status       int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// Flush implements http.Flusher for streaming responses.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack implements http.Hijacker for connection upgrades.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("hijacking not supported")
}

// Unwrap returns the underlying ResponseWriter.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
