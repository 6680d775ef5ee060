package middleware

import (
	"net/http"
)

// DefaultMaxRequestSize applies when no limit is configured.
const DefaultMaxRequestSize int64 = 1 << 20 // 1MB

// MaxRequestSize rejects oversized bodies. A declared Content-Length
// above the limit fails fast; otherwise MaxBytesReader enforces the cap
// during reads.
func MaxRequestSize(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxRequestSize
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				http.Error(w, "Request Entity Too Large", http.StatusRequestEntityTooLarge)
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			defer r.Body.Close()

			next.ServeHTTP(w, r)
		})
	}
}
