package runtime

import (
	"fmt"
	"log/slog"

	"github.com/karenlarocque/feature-forgetting/internal/adapters/config/file"
	"github.com/karenlarocque/feature-forgetting/internal/core/ports"
	"github.com/karenlarocque/feature-forgetting/internal/variant"
)

// Option is a functional option for configuring an App.
type Option func(*App) error

// WithFileConfig uses file-based configuration with hot-reload.
// The path should point to a config.yaml file that will be watched for changes.
func WithFileConfig(path string) Option {
	return func(a *App) error {
		provider, err := file.NewProvider(path, a.logger)
		if err != nil {
			return fmt.Errorf("create file config provider: %w", err)
		}
		a.config = provider
		return nil
	}
}

// WithConfigProvider sets a custom config provider.
func WithConfigProvider(provider ports.ConfigProvider) Option {
	return func(a *App) error {
		a.config = provider
		return nil
	}
}

// WithLogStore uses store instead of the one named in the storage config.
// The caller keeps ownership and closes it.
func WithLogStore(store ports.LogStore) Option {
	return func(a *App) error {
		a.store = store
		return nil
	}
}

// WithSink adds a submission sink next to the store and webhook sinks.
func WithSink(s ports.SubmissionSink) Option {
	return func(a *App) error {
		a.sinks = append(a.sinks, s)
		return nil
	}
}

// WithRegistry replaces the built-in variant registry.
func WithRegistry(r *variant.Registry) Option {
	return func(a *App) error {
		a.registry = r
		return nil
	}
}

// WithLogger sets a custom logger. Pass it before WithFileConfig so the
// config provider logs through it too.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}
