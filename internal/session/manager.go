// Package session runs experiment sessions for remote participants. Each
// session owns a single-threaded event loop that drives its trial sequence.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/karenlarocque/feature-forgetting/internal/config"
	"github.com/karenlarocque/feature-forgetting/internal/core/domain"
	"github.com/karenlarocque/feature-forgetting/internal/core/ports"
	"github.com/karenlarocque/feature-forgetting/internal/eventloop"
	"github.com/karenlarocque/feature-forgetting/internal/queue"
	"github.com/karenlarocque/feature-forgetting/internal/sequencer"
	"github.com/karenlarocque/feature-forgetting/internal/sink"
	"github.com/karenlarocque/feature-forgetting/internal/telemetry"
	"github.com/karenlarocque/feature-forgetting/internal/variant"
)

// ErrNotFound is returned for unknown session ids.
var ErrNotFound = errors.New("session not found")

// Manager creates and tracks the live sessions of a server. It is safe for
// concurrent use.
type Manager struct {
	registry    *variant.Registry
	sink        ports.SubmissionSink
	experiments atomic.Pointer[config.ExperimentsConfig]
	bufSize     int
	logger      *slog.Logger
	tracer      trace.Tracer

	mu       sync.RWMutex
	sessions map[string]*Session

	idleTimeout time.Duration
	stopReaper  chan struct{}
	reaperDone  chan struct{}
	stopOnce    sync.Once
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithBufferSize sets the per-subscriber event buffer of new sessions.
func WithBufferSize(n int) Option {
	return func(m *Manager) {
		m.bufSize = n
	}
}

// WithIdleTimeout closes sessions that see no participant activity for d.
// Zero keeps sessions until they submit or the manager shuts down.
func WithIdleTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.idleTimeout = d
	}
}

// CreateOption configures a single session.
type CreateOption func(*domain.Metadata)

// WithUTCOffset records the participant's offset from UTC in minutes. It is
// used for the hour stamps of return codes.
func WithUTCOffset(minutes int) CreateOption {
	return func(meta *domain.Metadata) {
		meta.UTCOffset = &minutes
	}
}

// NewManager creates a manager that builds sessions from registry with the
// given experiment configuration and submits finished logs to s.
func NewManager(registry *variant.Registry, experiments config.ExperimentsConfig, s ports.SubmissionSink, opts ...Option) *Manager {
	m := &Manager{
		registry: registry,
		sink:     s,
		logger:   slog.Default(),
		tracer:   telemetry.Tracer(),
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.SetExperiments(experiments)

	if m.idleTimeout > 0 {
		m.stopReaper = make(chan struct{})
		m.reaperDone = make(chan struct{})
		go m.reapLoop()
	}
	return m
}

// SetExperiments replaces the experiment configuration used for sessions
// created from now on. Running sessions keep their configuration.
func (m *Manager) SetExperiments(cfg config.ExperimentsConfig) {
	m.experiments.Store(&cfg)
}

// Experiments returns the configuration for new sessions.
func (m *Manager) Experiments() config.ExperimentsConfig {
	return *m.experiments.Load()
}

// Variants lists the runnable variants.
func (m *Manager) Variants() []variant.Factory {
	return m.registry.List()
}

// Create assigns a condition to participantID and opens a session. The
// session waits for Start.
func (m *Manager) Create(ctx context.Context, variantName, participantID string, opts ...CreateOption) (*Session, error) {
	_, span := m.tracer.Start(ctx, "session.create",
		trace.WithAttributes(attribute.String("session.variant", variantName)))
	defer span.End()

	a, err := m.registry.Assign(variantName, m.Experiments(), participantID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "assignment failed")
		return nil, err
	}

	id := uuid.NewString()
	span.SetAttributes(attribute.String("session.id", id))

	meta := a.Metadata
	meta.SessionID = id
	meta.StartedAt = time.Now()
	for _, opt := range opts {
		opt(&meta)
	}
	log := domain.NewLog(meta)

	logger := m.logger.With(slog.String("session_id", id))
	loop := eventloop.New(logger)
	relay := eventloop.NewRelay()
	hub := NewHub(m.bufSize, logger)
	hub.stimulus = a.Config.Timing.StimulusDuration

	seq, err := sequencer.New(a.Config, queue.New(a.Trials), log,
		sequencer.WithScheduler(loop),
		sequencer.WithRenderer(hub),
		sequencer.WithInputSource(relay),
		sequencer.WithSink(m.sink),
		sequencer.WithLogger(logger),
		sequencer.WithSubmitHook(func(*sequencer.Sequencer) {
			m.release(id)
		}),
	)
	if err != nil {
		loop.Close()
		span.RecordError(err)
		return nil, fmt.Errorf("create sequencer: %w", err)
	}

	s := &Session{
		id:        id,
		variant:   variantName,
		createdAt: meta.StartedAt,
		loop:      loop,
		relay:     relay,
		hub:       hub,
		seq:       seq,
		logger:    logger,
	}
	s.touch()

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	logger.Info("session created",
		slog.String("variant", variantName),
		slog.String("participant_id", participantID),
		slog.Int("trials", len(a.Trials)))
	return s, nil
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// List returns the ids of live sessions, sorted.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// release drops a submitted session. It runs on the session's loop, so the
// loop is shut down from another goroutine.
func (m *Manager) release(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return
	}

	s.hub.publish(Event{Type: EventSubmitted, Outcome: outcomeOrNil(s.seq.Outcome())})
	go func() {
		s.hub.Close()
		s.loop.Close()
	}()
}

// Reap closes the sessions idle for longer than the idle timeout at now and
// returns how many were closed. Their logs are not submitted.
func (m *Manager) Reap(now time.Time) int {
	if m.idleTimeout <= 0 {
		return 0
	}

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if now.Sub(s.LastActive()) > m.idleTimeout {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.logger.Info("session expired",
			slog.String("variant", s.variant),
			slog.Duration("idle", now.Sub(s.LastActive())))
		s.Close()
	}
	return len(expired)
}

func (m *Manager) reapLoop() {
	defer close(m.reaperDone)

	interval := m.idleTimeout / 4
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopReaper:
			return
		case now := <-ticker.C:
			m.Reap(now)
		}
	}
}

// Shutdown closes every live session without submitting and flushes the sink.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.stopOnce.Do(func() {
		if m.stopReaper != nil {
			close(m.stopReaper)
			<-m.reaperDone
		}
	})

	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		sessions = append(sessions, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	if len(sessions) > 0 {
		m.logger.Warn("discarded unfinished sessions", slog.Int("count", len(sessions)))
	}

	if f, ok := m.sink.(sink.Flusher); ok {
		if err := f.Flush(ctx); err != nil {
			return fmt.Errorf("flush submissions: %w", err)
		}
	}
	return nil
}
