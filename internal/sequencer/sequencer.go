// Package sequencer drives a session's trials to completion: it pulls each
// trial from the queue, presents it, arms a response window, records the
// result and finally hands the data log to the submission sink.
package sequencer

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/karenlarocque/feature-forgetting/internal/core/domain"
	"github.com/karenlarocque/feature-forgetting/internal/core/ports"
	"github.com/karenlarocque/feature-forgetting/internal/queue"
	"github.com/karenlarocque/feature-forgetting/internal/response"
)

var (
	ErrAlreadyStarted   = errors.New("sequence already started")
	ErrNotResting       = errors.New("sequence is not resting")
	ErrNotFinished      = errors.New("sequence has not finished")
	ErrAlreadySubmitted = errors.New("data log already submitted")
)

// State is the lifecycle state of a Sequencer.
type State int

const (
	AwaitingStart State = iota
	Running
	Resting
	Finished
)

func (s State) String() string {
	switch s {
	case AwaitingStart:
		return "awaiting_start"
	case Running:
		return "running"
	case Resting:
		return "resting"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// Sequencer is the trial stream of one session. All methods must be called
// from the goroutine of its scheduler's event loop.
type Sequencer struct {
	cfg   Config
	queue *queue.Queue
	log   *domain.Log

	sched    ports.Scheduler
	renderer ports.Renderer
	input    ports.InputSource
	sink     ports.SubmissionSink
	logger   *slog.Logger
	onSubmit func(*Sequencer)

	window     *response.Window
	state      State
	trial      int
	shownAt    time.Time
	restPoint  int
	rested     bool
	ended      bool
	submitted  bool
	awaitPatch bool

	clearTimer ports.Timer
	stepTimer  ports.Timer
}

// New creates a sequencer that consumes q and records into log.
func New(cfg Config, q *queue.Queue, log *domain.Log, opts ...Option) (*Sequencer, error) {
	if q == nil {
		return nil, fmt.Errorf("trial queue required")
	}
	if log == nil {
		return nil, fmt.Errorf("data log required")
	}

	s := &Sequencer{
		cfg:    cfg,
		queue:  q,
		log:    log,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if s.sched == nil {
		return nil, fmt.Errorf("scheduler required (use WithScheduler)")
	}
	if s.renderer == nil {
		return nil, fmt.Errorf("renderer required (use WithRenderer)")
	}
	if s.input == nil {
		return nil, fmt.Errorf("input source required (use WithInputSource)")
	}
	if s.sink == nil {
		return nil, fmt.Errorf("submission sink required (use WithSink)")
	}
	if len(cfg.ValidInputs) == 0 {
		return nil, fmt.Errorf("variant %q has no valid inputs", cfg.Variant)
	}

	s.window = response.New(s.sched, s.input)
	s.restPoint = cfg.restPoint(q.Len())
	s.logger = s.logger.With(slog.String("variant", cfg.Variant))
	return s, nil
}

// State returns the current lifecycle state.
func (s *Sequencer) State() State {
	return s.state
}

// Remaining returns the number of trials not yet presented.
func (s *Sequencer) Remaining() int {
	return s.queue.Remaining()
}

// Log returns the data log being recorded.
func (s *Sequencer) Log() *domain.Log {
	return s.log
}

// Submitted reports whether the log has been handed to the sink.
func (s *Sequencer) Submitted() bool {
	return s.submitted
}

// AwaitingFinalize reports whether the sequence is finished and waits for
// late metadata before submitting.
func (s *Sequencer) AwaitingFinalize() bool {
	return s.awaitPatch
}

// Start begins the sequence.
func (s *Sequencer) Start() error {
	if s.state != AwaitingStart {
		return ErrAlreadyStarted
	}
	s.state = Running
	s.logger.Info("sequence started", slog.Int("trials", s.queue.Len()))

	if s.cfg.Timing.LeadIn > 0 {
		s.renderer.Announce(ports.SlideLeadIn)
		s.stepTimer = s.sched.AfterFunc(s.cfg.Timing.LeadIn, s.Next)
		return nil
	}
	s.Next()
	return nil
}

// Next presents the next trial, or ends the sequence when the queue is empty.
func (s *Sequencer) Next() {
	s.stepTimer = nil
	if s.state != Running {
		return
	}
	if s.window.State() == response.Armed {
		s.logger.Warn("next called while a trial is in progress", slog.Int("trial", s.trial))
		return
	}
	// a stimulus outliving its trial must not clear the next screen
	s.stopClear()

	if s.restPoint > 0 && !s.rested && s.queue.Remaining() == s.restPoint {
		s.rested = true
		s.state = Resting
		s.renderer.Announce(ports.SlideRest)
		s.logger.Info("rest break", slog.Int("remaining", s.queue.Remaining()))
		if s.cfg.Timing.RestDuration > 0 {
			s.stepTimer = s.sched.AfterFunc(s.cfg.Timing.RestDuration, func() {
				if err := s.Resume(); err != nil {
					s.logger.Debug("rest already over", slog.String("error", err.Error()))
				}
			})
		}
		return
	}

	d, ok := s.queue.PopFront()
	if !ok {
		s.end()
		return
	}

	s.trial++
	trial := s.trial
	s.shownAt = s.sched.Now()
	s.renderer.Show(trial, d)

	if s.cfg.Timing.StimulusDuration > 0 {
		s.clearTimer = s.sched.AfterFunc(s.cfg.Timing.StimulusDuration, func() {
			s.clearTimer = nil
			s.renderer.Clear()
		})
	}

	err := s.window.Arm(s.cfg.ValidInputs, func(in domain.Input, elapsed time.Duration) {
		s.resolve(trial, d, in, elapsed)
	}, s.cfg.Timing.windowTimeout())
	if err != nil {
		// unreachable with a non-empty input set and a terminal window
		s.logger.Error("failed to arm response window", slog.String("error", err.Error()))
	}
}

// resolve records the trial outcome and schedules the next step.
func (s *Sequencer) resolve(trial int, d domain.Descriptor, in domain.Input, elapsed time.Duration) {
	result := domain.Result{
		Trial:    trial,
		Stimulus: d.String(),
		RT:       elapsed.Milliseconds(),
		Response: in,
	}
	if in == domain.NoResponse {
		result.RT = domain.NoReactionTime
	}
	if d.Kind == domain.KindChoice && in != domain.NoResponse {
		result.Selected = d.Images[in]
	}
	if s.cfg.Categorize != nil {
		if category := s.cfg.Categorize(d); category != "" {
			result.Category = category
			result.Accuracy = domain.Score(category, s.cfg.Binding.Category(in))
		}
	}
	s.log.Append(result)

	s.logger.Debug("trial resolved",
		slog.Int("trial", trial),
		slog.String("stimulus", result.Stimulus),
		slog.String("response", string(in)),
		slog.Int64("rt_ms", result.RT))

	wait := s.cfg.Timing.PostResponsePause
	if s.cfg.Timing.TrialDuration > 0 {
		// the trial runs on the server clock whatever the reported RT
		if remaining := s.cfg.Timing.TrialDuration - s.sched.Now().Sub(s.shownAt); remaining > 0 {
			wait += remaining
		}
	} else {
		s.stopClear()
		s.renderer.Clear()
	}

	s.stepTimer = s.sched.AfterFunc(wait, s.Next)
}

// Resume ends the rest break and continues with the next trial.
func (s *Sequencer) Resume() error {
	if s.state != Resting {
		return ErrNotResting
	}
	if s.stepTimer != nil {
		s.stepTimer.Stop()
		s.stepTimer = nil
	}
	s.state = Running
	s.Next()
	return nil
}

// end runs once, when the queue is exhausted.
func (s *Sequencer) end() {
	if s.ended {
		return
	}
	s.ended = true
	s.state = Finished
	s.window.Cancel()

	s.logger.Info("sequence finished", slog.Int("results", s.log.Len()))

	if s.cfg.CollectDemographics {
		s.awaitPatch = true
		s.renderer.Announce(ports.SlideDemographics)
		return
	}
	s.finish()
}

// Finalize merges late metadata (e.g. demographics) and proceeds to
// submission. It is only valid once the sequence has finished.
func (s *Sequencer) Finalize(patch domain.MetadataPatch) error {
	if s.state != Finished {
		return ErrNotFinished
	}
	if s.submitted {
		return ErrAlreadySubmitted
	}
	if err := s.log.Finalize(patch); err != nil {
		return fmt.Errorf("finalize log: %w", err)
	}
	if s.awaitPatch {
		s.awaitPatch = false
		s.finish()
	}
	return nil
}

// finish computes the outcome, shows it on the finished slide and schedules
// submission after the settle delay.
func (s *Sequencer) finish() {
	if s.cfg.WrapUp != nil {
		s.cfg.WrapUp(s.log, s.sched.Now())
	}
	if r, ok := s.renderer.(ports.OutcomeRenderer); ok {
		r.Finished(s.Outcome())
	} else {
		s.renderer.Announce(ports.SlideFinished)
	}
	s.stepTimer = s.sched.AfterFunc(s.cfg.Timing.SettleDelay, s.submit)
}

// Outcome returns the exit code and return window computed at the end of the
// sequence. It is empty before then.
func (s *Sequencer) Outcome() ports.Outcome {
	return ports.Outcome{
		ExitCode: s.log.Metadata.ExitCode,
		Return:   s.log.Metadata.Return,
	}
}

func (s *Sequencer) submit() {
	s.stepTimer = nil
	if s.submitted {
		return
	}
	s.submitted = true

	s.log.Freeze(s.sched.Now())
	s.sink.Submit(s.log)

	s.logger.Info("data log submitted", slog.Int("results", s.log.Len()))
	if s.onSubmit != nil {
		s.onSubmit(s)
	}
}

func (s *Sequencer) stopClear() {
	if s.clearTimer != nil {
		s.clearTimer.Stop()
		s.clearTimer = nil
	}
}

// Stop cancels pending timers and the response window without submitting.
func (s *Sequencer) Stop() {
	s.window.Cancel()
	for _, t := range []ports.Timer{s.clearTimer, s.stepTimer} {
		if t != nil {
			t.Stop()
		}
	}
	s.clearTimer = nil
	s.stepTimer = nil
}
