// Package runtime provides the App struct and lifecycle management for the
// trial stream server.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/karenlarocque/feature-forgetting/internal/api/experiment"
	"github.com/karenlarocque/feature-forgetting/internal/config"
	"github.com/karenlarocque/feature-forgetting/internal/core/ports"
	"github.com/karenlarocque/feature-forgetting/internal/server"
	"github.com/karenlarocque/feature-forgetting/internal/session"
	"github.com/karenlarocque/feature-forgetting/internal/sink"
	"github.com/karenlarocque/feature-forgetting/internal/storage"
	"github.com/karenlarocque/feature-forgetting/internal/variant"
)

// App wires configuration, storage, submission sinks, sessions and the HTTP
// server together. It can be embedded in a larger program or run standalone.
type App struct {
	// Dependencies (injected via options)
	config   ports.ConfigProvider
	store    ports.LogStore
	sinks    []ports.SubmissionSink
	registry *variant.Registry
	logger   *slog.Logger

	// Built by Start
	ownsStore bool
	manager   *session.Manager
	server    *server.Server

	// Lifecycle management
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.RWMutex
	started bool
}

// New creates a new App with the given options.
func New(opts ...Option) (*App, error) {
	app := &App{
		logger: slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if app.config == nil {
		return nil, fmt.Errorf("config provider required (use WithFileConfig)")
	}
	if app.registry == nil {
		app.registry = variant.Builtins()
	}

	return app, nil
}

// Start loads configuration, opens storage and starts serving HTTP.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return fmt.Errorf("app already started")
	}

	a.ctx, a.cancel = context.WithCancel(ctx)

	cfg, err := a.config.Load(a.ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if a.store == nil {
		store, err := storage.Open(cfg.Storage)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		a.store = store
		a.ownsStore = true
	}

	a.manager = session.NewManager(a.registry, cfg.Experiments, a.buildSink(cfg),
		session.WithLogger(a.logger),
		session.WithIdleTimeout(cfg.Server.SessionIdleTimeout))

	a.server = server.New(cfg.Server, a.logger)
	experiment.NewHandler(a.manager, a.store, a.logger).Routes(a.server.Router, cfg.Server.AdminToken)
	a.server.ServeStatic(cfg.Server.StaticDir)

	go func() {
		if err := a.server.Start(); err != nil {
			a.logger.Error("server error", slog.String("error", err.Error()))
		}
	}()

	if err := a.config.Watch(a.ctx, a.reload); err != nil {
		a.logger.Warn("config watch disabled", slog.String("error", err.Error()))
	}

	a.started = true
	a.logger.Info("app started",
		slog.Int("port", cfg.Server.Port),
		slog.String("storage", cfg.Storage.Type),
		slog.Any("variants", a.registry.Names()))

	return nil
}

// buildSink assembles the submission fan-out: the log store always, the
// collection webhook when configured, then any sinks passed with WithSink.
func (a *App) buildSink(cfg *config.Config) ports.SubmissionSink {
	sinks := sink.Multi{sink.NewStoreSink(a.store, cfg.Submission.Timeout, a.logger)}
	if cfg.Submission.Webhook.URL != "" {
		sinks = append(sinks, sink.NewWebhookSink(cfg.Submission.Webhook, cfg.Submission.Timeout,
			sink.WithLogger(a.logger)))
		a.logger.Info("forwarding submissions", slog.String("url", cfg.Submission.Webhook.URL))
	}
	return append(sinks, a.sinks...)
}

// reload applies a changed configuration. Only experiment settings are
// reloadable; running sessions keep the settings they were created with.
func (a *App) reload(cfg *config.Config) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.manager == nil {
		return
	}
	a.manager.SetExperiments(cfg.Experiments)
	a.logger.Info("experiment config reloaded", slog.Int("active_sessions", a.manager.Len()))
}

// Handler returns the HTTP handler, or nil before Start.
func (a *App) Handler() http.Handler {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.server == nil {
		return nil
	}
	return a.server.Router
}

// Sessions returns the session manager, or nil before Start.
func (a *App) Sessions() *session.Manager {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.manager
}

// Shutdown stops the server, drains pending submissions and releases
// resources. Unfinished sessions are discarded.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.logger.Info("shutting down")

	if a.cancel != nil {
		a.cancel()
	}

	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Error("failed to shutdown server", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.manager != nil {
		if err := a.manager.Shutdown(ctx); err != nil {
			a.logger.Error("failed to drain submissions", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.store != nil && a.ownsStore {
		if err := a.store.Close(); err != nil {
			a.logger.Error("failed to close storage", slog.String("error", err.Error()))
		}
	}

	if err := a.config.Close(); err != nil {
		a.logger.Error("failed to close config", slog.String("error", err.Error()))
	}

	a.started = false
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}
