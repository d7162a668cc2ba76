package storage

import (
	"fmt"

	"github.com/karenlarocque/feature-forgetting/internal/config"
	"github.com/karenlarocque/feature-forgetting/internal/core/ports"
	"github.com/karenlarocque/feature-forgetting/internal/storage/memory"
	"github.com/karenlarocque/feature-forgetting/internal/storage/sqlite"
)

// Re-export storage interfaces and types from core/ports.
type (
	LogStore    = ports.LogStore
	ListOptions = ports.ListOptions
	LogSummary  = ports.LogSummary
)

// Open creates the log store selected by cfg.
func Open(cfg config.StorageConfig) (LogStore, error) {
	switch cfg.Type {
	case "memory":
		return memory.New(), nil
	case "sqlite", "":
		store, err := sqlite.New(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
