package middleware

import (
	"context"
	"net/http"
	"time"
)

// DefaultRequestTimeout applies when no timeout is configured.
const DefaultRequestTimeout = 30 * time.Second

// Timeout bounds handler execution. The request context carries the
// deadline and http.TimeoutHandler writes the 503 when it expires.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			r = r.WithContext(ctx)

			handler := http.TimeoutHandler(next, timeout, "Request Timeout")
			handler.ServeHTTP(w, r)
		})
	}
}
