package server

import (
	"context"
	"net/http"
	"regexp"

	"github.com/google/uuid"
)

type contextKey string

// RequestIDKey is the context key for request IDs.
const RequestIDKey contextKey = "request_id"

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// validRequestID bounds IDs accepted from a fronting proxy.
var validRequestID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// RequestIDMiddleware tags each request with an ID. A well-formed ID set by a
// fronting proxy is kept; otherwise a new one is generated. The ID is stored
// in the context and echoed in the response header.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if !validRequestID.MatchString(requestID) {
			requestID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		w.Header().Set(RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request ID from context.
// Returns an empty string if no request ID is set.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}
