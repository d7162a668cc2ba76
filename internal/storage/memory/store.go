package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"

	"github.com/karenlarocque/feature-forgetting/internal/core/domain"
	"github.com/karenlarocque/feature-forgetting/internal/core/ports"
)

// Store is an in-memory implementation of LogStore
type Store struct {
	mu   sync.RWMutex
	logs map[string]*domain.Log
}

var _ ports.LogStore = (*Store)(nil)

// New creates a new in-memory store
func New() *Store {
	return &Store{
		logs: make(map[string]*domain.Log),
	}
}

func (s *Store) SaveLog(ctx context.Context, log *domain.Log) error {
	id := log.Metadata.SessionID
	if id == "" {
		return goerr.New("session id required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.logs[id]; exists {
		return goerr.Wrap(ports.ErrLogExists, "failed to save log", goerr.V("session_id", id))
	}

	s.logs[id] = snapshot(log)
	return nil
}

func (s *Store) GetLog(ctx context.Context, sessionID string) (*domain.Log, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log, exists := s.logs[sessionID]
	if !exists {
		return nil, goerr.Wrap(ports.ErrLogNotFound, "failed to get log", goerr.V("session_id", sessionID))
	}
	return snapshot(log), nil
}

func (s *Store) ListLogs(ctx context.Context, opts ports.ListOptions) ([]*ports.LogSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*ports.LogSummary
	for _, log := range s.logs {
		meta := log.Metadata
		if opts.Variant != "" && meta.Variant != opts.Variant {
			continue
		}
		summary := &ports.LogSummary{
			SessionID:     meta.SessionID,
			Variant:       meta.Variant,
			ParticipantID: meta.ParticipantID,
			NTrials:       meta.NTrials,
			NResults:      log.Len(),
		}
		if meta.SubmittedAt != nil {
			summary.SubmittedAt = *meta.SubmittedAt
		}
		result = append(result, summary)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].SubmittedAt.Equal(result[j].SubmittedAt) {
			return result[i].SessionID < result[j].SessionID
		}
		return result[i].SubmittedAt.After(result[j].SubmittedAt)
	})

	// Simple pagination
	start := opts.Offset
	if start >= len(result) {
		return []*ports.LogSummary{}, nil
	}

	end := start + opts.Limit
	if opts.Limit == 0 || end > len(result) {
		end = len(result)
	}

	return result[start:end], nil
}

func (s *Store) Close() error {
	return nil
}

// snapshot copies the log so callers cannot mutate stored state.
func snapshot(log *domain.Log) *domain.Log {
	results := make([]domain.Result, len(log.Results))
	copy(results, log.Results)
	return domain.RestoreLog(log.Metadata, results)
}
