package ports

import (
	"context"

	"github.com/karenlarocque/feature-forgetting/internal/config"
)

// ConfigProvider loads and manages configuration.
// Implementations: file-based with hot-reload.
type ConfigProvider interface {
	Load(ctx context.Context) (*config.Config, error)
	Watch(ctx context.Context, onChange func(*config.Config)) error
	Close() error
}
