package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/karenlarocque/feature-forgetting/internal/config"
)

type Server struct {
	Router *chi.Mux
	Port   int
	logger *slog.Logger
	http   *http.Server
}

func New(cfg config.ServerConfig, logger *slog.Logger) *Server {
	r := chi.NewRouter()

	// Apply middleware in order
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(TimeoutMiddleware(cfg.RequestTimeout))
	r.Use(middleware.Recoverer)

	// Wrap with OpenTelemetry HTTP instrumentation
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "trial-stream")
	})

	s := &Server{
		Router: r,
		Port:   cfg.Port,
		logger: logger,
	}
	s.http = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}
	return s
}

// ServeStatic serves the browser client from dir for every path not
// matched by another route.
func (s *Server) ServeStatic(dir string) {
	if dir == "" {
		return
	}
	s.Router.Handle("/*", http.FileServer(http.Dir(dir)))
	s.logger.Info("serving static files", slog.String("dir", dir))
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting server", slog.Int("port", s.Port))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
