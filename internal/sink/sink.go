// Package sink delivers submitted data logs to their destinations. Delivery
// is fire-and-forget: Submit never blocks the session and failures are only
// logged.
package sink

import (
	"context"
	"sync"

	"github.com/karenlarocque/feature-forgetting/internal/core/domain"
	"github.com/karenlarocque/feature-forgetting/internal/core/ports"
)

// Flusher is implemented by sinks that deliver in the background.
type Flusher interface {
	// Flush waits until every submitted log has been delivered or ctx is done.
	Flush(ctx context.Context) error
}

// Multi fans a submission out to several sinks.
type Multi []ports.SubmissionSink

var _ ports.SubmissionSink = Multi(nil)

func (m Multi) Submit(log *domain.Log) {
	for _, s := range m {
		s.Submit(log)
	}
}

// Flush flushes every member sink that supports it.
func (m Multi) Flush(ctx context.Context) error {
	for _, s := range m {
		if f, ok := s.(Flusher); ok {
			if err := f.Flush(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// Func adapts a function to a SubmissionSink.
type Func func(log *domain.Log)

func (f Func) Submit(log *domain.Log) {
	f(log)
}

// pending tracks background deliveries.
type pending struct {
	wg sync.WaitGroup
}

func (p *pending) run(fn func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		fn()
	}()
}

func (p *pending) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
