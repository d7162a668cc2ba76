package eventloop

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/karenlarocque/feature-forgetting/internal/core/ports"
)

// ErrClosed is returned when work is submitted to a stopped loop.
var ErrClosed = errors.New("event loop closed")

// Loop runs callbacks one at a time on a dedicated goroutine.
type Loop struct {
	tasks  chan func()
	done   chan struct{}
	exited chan struct{}
	once   sync.Once
	logger *slog.Logger
}

// New starts a loop. Close must be called to release its goroutine.
func New(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loop{
		tasks:  make(chan func(), 64),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
		logger: logger,
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.exited)
	for {
		select {
		case <-l.done:
			return
		case fn := <-l.tasks:
			l.invoke(fn)
		}
	}
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("event loop task panicked", slog.Any("panic", r))
		}
	}()
	fn()
}

// Post queues fn to run on the loop. It reports false if the loop is closed.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}

	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Do runs fn on the loop and waits for it to return.
func (l *Loop) Do(fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrClosed
	}

	select {
	case <-finished:
		return nil
	case <-l.exited:
		// the loop may have picked up the task right before stopping
		select {
		case <-finished:
			return nil
		default:
			return ErrClosed
		}
	}
}

// Now returns the wall-clock time.
func (l *Loop) Now() time.Time {
	return time.Now()
}

// AfterFunc runs fn on the loop once d has elapsed.
func (l *Loop) AfterFunc(d time.Duration, fn func()) ports.Timer {
	t := &loopTimer{}
	t.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			if t.stopped {
				return
			}
			t.fired = true
			fn()
		})
	})
	return t
}

// Close stops the loop. Pending tasks and timers are dropped.
func (l *Loop) Close() {
	l.once.Do(func() {
		close(l.done)
	})
	<-l.exited
}

// loopTimer is only stopped from the loop goroutine, which is also the only
// goroutine reading stopped and fired.
type loopTimer struct {
	timer   *time.Timer
	stopped bool
	fired   bool
}

func (t *loopTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	t.timer.Stop()
	return true
}

var _ ports.Scheduler = (*Loop)(nil)
