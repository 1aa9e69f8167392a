package server

import (
	"crypto/subtle"
	"net/http"
)

// unauthenticated paths, exact match.
var openPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// authMiddleware requires a valid X-API-Key header on every request except
// the open paths. When no keys are configured the middleware passes
// everything through.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	if len(s.config.APIKeys) == 0 {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := openPaths[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get("X-API-Key")
		if key == "" {
			writeError(w, http.StatusUnauthorized, "missing API key")
			return
		}

		if !s.validAPIKey(key) {
			writeError(w, http.StatusForbidden, "invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// validAPIKey compares the presented key against every configured key in
// constant time.
func (s *Server) validAPIKey(key string) bool {
	valid := false
	for _, candidate := range s.config.APIKeys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(candidate)) == 1 {
			valid = true
		}
	}
	return valid
}
