// Package response implements the input-gated, optionally time-bounded phase
// of a trial during which one qualifying input is accepted.
package response

import (
	"errors"
	"time"

	"github.com/karenlarocque/feature-forgetting/internal/core/domain"
	"github.com/karenlarocque/feature-forgetting/internal/core/ports"
)

// ErrAlreadyArmed is returned when Arm is called on an armed window.
var ErrAlreadyArmed = errors.New("response window already armed")

// ErrNoValidInputs is returned when Arm is called without qualifying inputs.
var ErrNoValidInputs = errors.New("response window needs at least one valid input")

// State is the lifecycle state of a Window.
type State int

const (
	Idle State = iota
	Armed
	Resolved
	TimedOut
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Resolved:
		return "resolved"
	case TimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// ResolveFunc receives the outcome of an armed window: the qualifying input
// (or domain.NoResponse) and the reaction time. The reaction time is the
// client-measured one when the input carries a plausible value, otherwise
// the time elapsed on the scheduler since arming.
type ResolveFunc func(in domain.Input, elapsed time.Duration)

// Window listens for one qualifying input. Exactly one ResolveFunc call
// happens per Arm unless the window is cancelled first.
type Window struct {
	sched  ports.Scheduler
	source ports.InputSource

	state       State
	valid       map[domain.Input]struct{}
	armedAt     time.Time
	timeout     time.Duration
	onResolve   ResolveFunc
	unsubscribe func()
	timer       ports.Timer
}

// New creates an idle window reading inputs from source.
func New(sched ports.Scheduler, source ports.InputSource) *Window {
	return &Window{sched: sched, source: source}
}

// State returns the current state.
func (w *Window) State() State {
	return w.state
}

// Arm starts listening for any of valid. A timeout of zero waits
// indefinitely; otherwise the window resolves with domain.NoResponse and an
// elapsed time equal to timeout once it expires.
func (w *Window) Arm(valid []domain.Input, onResolve ResolveFunc, timeout time.Duration) error {
	if w.state == Armed {
		return ErrAlreadyArmed
	}
	if len(valid) == 0 {
		return ErrNoValidInputs
	}

	w.valid = make(map[domain.Input]struct{}, len(valid))
	for _, in := range valid {
		w.valid[in] = struct{}{}
	}
	w.onResolve = onResolve
	w.timeout = timeout
	w.state = Armed
	w.armedAt = w.sched.Now()
	w.unsubscribe = w.source.Subscribe(w.handle)
	if timeout > 0 {
		w.timer = w.sched.AfterFunc(timeout, w.expire)
	}
	return nil
}

// handle filters inputs; non-qualifying inputs leave the window armed.
func (w *Window) handle(ev domain.InputEvent) {
	if w.state != Armed {
		return
	}
	if _, ok := w.valid[ev.Input]; !ok {
		return
	}

	elapsed := w.sched.Now().Sub(w.armedAt)
	// a client clock can only shorten the measured time, never stretch it
	if ev.Timed && ev.RT >= 0 && ev.RT <= elapsed {
		elapsed = ev.RT
	}
	w.finish(Resolved, ev.Input, elapsed)
}

func (w *Window) expire() {
	if w.state != Armed {
		return
	}
	w.finish(TimedOut, domain.NoResponse, w.timeout)
}

func (w *Window) finish(state State, in domain.Input, elapsed time.Duration) {
	// The state flips before anything else so a re-entrant input cannot
	// resolve the window a second time.
	w.state = state
	w.release()

	cb := w.onResolve
	w.onResolve = nil
	if cb != nil {
		cb(in, elapsed)
	}
}

// Cancel deregisters the listener and drops any pending timeout. It is safe
// to call in any state and more than once.
func (w *Window) Cancel() {
	w.release()
	w.onResolve = nil
	w.state = Idle
}

func (w *Window) release() {
	if w.unsubscribe != nil {
		w.unsubscribe()
		w.unsubscribe = nil
	}
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
