package ports

import (
	"context"
	"errors"
	"time"

	"github.com/karenlarocque/feature-forgetting/internal/core/domain"
)

var (
	// ErrLogNotFound is returned when no log is stored for a session.
	ErrLogNotFound = errors.New("log not found")
	// ErrLogExists is returned when a session's log has already been saved.
	ErrLogExists = errors.New("log already exists")
)

// LogStore persists submitted session logs.
// Implementations: SQLite (default), in-memory.
type LogStore interface {
	// SaveLog stores a submitted log. Saving the same session twice is an error.
	SaveLog(ctx context.Context, log *domain.Log) error

	// GetLog retrieves a log by session ID.
	GetLog(ctx context.Context, sessionID string) (*domain.Log, error)

	// ListLogs lists stored session summaries, newest first.
	ListLogs(ctx context.Context, opts ListOptions) ([]*LogSummary, error)

	// Close closes the storage connection.
	Close() error
}

// ListOptions defines options for listing stored logs.
type ListOptions struct {
	Variant string
	Limit   int
	Offset  int
}

// LogSummary is a compact view of a stored log.
type LogSummary struct {
	SessionID     string    `json:"session_id"`
	Variant       string    `json:"variant"`
	ParticipantID string    `json:"participant_id,omitempty"`
	NTrials       int       `json:"nTrials"`
	NResults      int       `json:"nResults"`
	SubmittedAt   time.Time `json:"submitted_at"`
}
