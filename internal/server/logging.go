package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// logFieldsKey identifies request-scoped logging fields.
type logFieldsKey struct{}

// logFields collects attributes added by handlers while a request runs. SSE
// handlers may add fields from more than one goroutine.
type logFields struct {
	mu     sync.Mutex
	values map[string]string
}

func (f *logFields) set(key, value string) {
	f.mu.Lock()
	f.values[key] = value
	f.mu.Unlock()
}

func (f *logFields) attrs() []slog.Attr {
	f.mu.Lock()
	defer f.mu.Unlock()
	attrs := make([]slog.Attr, 0, len(f.values))
	for k, v := range f.values {
		attrs = append(attrs, slog.String(k, v))
	}
	return attrs
}

// quietPaths are polled by load balancers and logged at debug level.
var quietPaths = map[string]bool{
	"/healthz": true,
}

// LoggingMiddleware logs HTTP requests with structured logging.
// Completion is logged with the status, duration and bytes written plus any
// fields added via AddLogField. Server errors log at error level and client
// errors at warn level.
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			fields := &logFields{values: make(map[string]string)}
			ctx := context.WithValue(r.Context(), logFieldsKey{}, fields)

			wrapped := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			requestID := GetRequestID(r.Context())

			level := slog.LevelInfo
			if quietPaths[r.URL.Path] {
				level = slog.LevelDebug
			}

			logger.LogAttrs(ctx, level, "request started",
				slog.String("request_id", requestID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
			)

			next.ServeHTTP(wrapped, r.WithContext(ctx))

			switch {
			case wrapped.statusCode >= 500:
				level = slog.LevelError
			case wrapped.statusCode >= 400:
				level = slog.LevelWarn
			}

			attrs := append([]slog.Attr{
				slog.String("request_id", requestID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", wrapped.statusCode),
				slog.Int64("bytes", wrapped.written),
				slog.Duration("duration", time.Since(start)),
			}, fields.attrs()...)

			logger.LogAttrs(ctx, level, "request completed", attrs...)
		})
	}
}

// loggingResponseWriter wraps http.ResponseWriter to capture status code and
// response size.
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	written     int64
	wroteHeader bool
}

func (rw *loggingResponseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *loggingResponseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Flush forwards Flush to the underlying ResponseWriter if it supports
// http.Flusher, so event streams keep working behind the middleware.
func (rw *loggingResponseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// AddLogField attaches a key/value to the request-scoped log fields so
// LoggingMiddleware can emit it. No-op if the middleware isn't present.
func AddLogField(ctx context.Context, key, value string) {
	if value == "" {
		return
	}
	if fields, ok := ctx.Value(logFieldsKey{}).(*logFields); ok {
		fields.set(key, value)
	}
}

// AddError attaches an error message to the request-scoped log fields. No-op
// if the middleware isn't present or err is nil.
func AddError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	AddLogField(ctx, "error", err.Error())
}
