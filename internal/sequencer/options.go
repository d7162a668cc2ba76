package sequencer

import (
	"log/slog"

	"github.com/karenlarocque/feature-forgetting/internal/core/ports"
)

// Option is a functional option for configuring a Sequencer.
type Option func(*Sequencer) error

// WithScheduler sets the clock and timers (required).
func WithScheduler(s ports.Scheduler) Option {
	return func(q *Sequencer) error {
		q.sched = s
		return nil
	}
}

// WithRenderer sets the display collaborator (required).
func WithRenderer(r ports.Renderer) Option {
	return func(q *Sequencer) error {
		q.renderer = r
		return nil
	}
}

// WithInputSource sets where participant inputs come from (required).
func WithInputSource(src ports.InputSource) Option {
	return func(q *Sequencer) error {
		q.input = src
		return nil
	}
}

// WithSink sets the submission sink (required).
func WithSink(sink ports.SubmissionSink) Option {
	return func(q *Sequencer) error {
		q.sink = sink
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Sequencer) error {
		q.logger = logger
		return nil
	}
}

// WithSubmitHook registers fn to run right after the log was handed to the sink.
func WithSubmitHook(fn func(*Sequencer)) Option {
	return func(q *Sequencer) error {
		q.onSubmit = fn
		return nil
	}
}
