package sink

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/karenlarocque/feature-forgetting/internal/core/domain"
	"github.com/karenlarocque/feature-forgetting/internal/core/ports"
	"github.com/karenlarocque/feature-forgetting/internal/telemetry"
)

// StoreSink writes submitted logs to a LogStore in the background.
type StoreSink struct {
	store   ports.LogStore
	timeout time.Duration
	logger  *slog.Logger
	tracer  trace.Tracer
	pending pending
}

var _ ports.SubmissionSink = (*StoreSink)(nil)

// NewStoreSink creates a sink writing to store. A zero timeout leaves writes
// unbounded.
func NewStoreSink(store ports.LogStore, timeout time.Duration, logger *slog.Logger) *StoreSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreSink{
		store:   store,
		timeout: timeout,
		logger:  logger,
		tracer:  telemetry.Tracer(),
	}
}

func (s *StoreSink) Submit(log *domain.Log) {
	s.pending.run(func() {
		ctx := context.Background()
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}

		id := log.Metadata.SessionID
		ctx, span := s.tracer.Start(ctx, "submission.store",
			trace.WithAttributes(
				attribute.String("session.id", id),
				attribute.String("session.variant", log.Metadata.Variant),
				attribute.Int("session.results", log.Len()),
			))
		defer span.End()

		if err := s.store.SaveLog(ctx, log); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "save failed")
			s.logger.Error("failed to store data log",
				slog.String("session_id", id),
				slog.String("error", err.Error()))
			return
		}
		s.logger.Info("data log stored", slog.String("session_id", id), slog.Int("results", log.Len()))
	})
}

func (s *StoreSink) Flush(ctx context.Context) error {
	return s.pending.wait(ctx)
}
