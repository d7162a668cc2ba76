package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AdminTokenMiddleware guards operator endpoints with a static bearer token.
// If token is empty, the middleware is a no-op.
func AdminTokenMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Extract token from Authorization header
			got := r.Header.Get("Authorization")
			if got == "" {
				http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
				return
			}

			// Remove "Bearer " prefix if present
			got = strings.TrimPrefix(got, "Bearer ")

			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				AddLogField(r.Context(), "auth", "rejected")
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
