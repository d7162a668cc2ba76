package server

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// TimeoutMiddleware enforces request timeouts.
// If a request exceeds the specified timeout, the context is cancelled.
// Note: This does not forcibly terminate the handler, it relies on the handler
// checking context.Done() for cooperative cancellation.
// Event streams are long-lived and are not subject to the timeout.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if timeout <= 0 || isEventStream(r) {
				next.ServeHTTP(w, r)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func isEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream") ||
		strings.HasSuffix(r.URL.Path, "/events")
}
