// Package simulate runs a variant offline against a virtual clock with a
// scripted participant. It is used to inspect assignments, timing and the
// submitted data log without a browser.
package simulate

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/karenlarocque/feature-forgetting/internal/config"
	"github.com/karenlarocque/feature-forgetting/internal/core/domain"
	"github.com/karenlarocque/feature-forgetting/internal/core/ports"
	"github.com/karenlarocque/feature-forgetting/internal/eventloop"
	"github.com/karenlarocque/feature-forgetting/internal/queue"
	"github.com/karenlarocque/feature-forgetting/internal/rng"
	"github.com/karenlarocque/feature-forgetting/internal/sequencer"
	"github.com/karenlarocque/feature-forgetting/internal/sink"
	"github.com/karenlarocque/feature-forgetting/internal/variant"
)

// ErrStalled is returned when the run goes idle before the log is submitted,
// e.g. a missed response on a trial without a response timeout.
var ErrStalled = errors.New("simulation stalled before submission")

// maxSteps bounds a run in case a variant reschedules forever.
const maxSteps = 100000

// Participant scripts the synthetic participant.
type Participant struct {
	ID string
	// ReactionTime is the delay between stimulus onset and the response.
	ReactionTime time.Duration
	// Accuracy is the probability of answering a scored trial correctly.
	Accuracy float64
	// MissRate is the probability of not responding at all.
	MissRate float64
	// RestPause is how long the participant rests before resuming.
	RestPause time.Duration
	// Seed drives the participant's choices. It is independent of the
	// condition assignment, which is derived from ID.
	Seed uint64
}

// Options configures a Run.
type Options struct {
	Variant     string
	Experiments config.ExperimentsConfig
	Participant Participant
	Registry    *variant.Registry
	// Start is the virtual start time. Zero means time.Now().
	Start  time.Time
	Logger *slog.Logger
}

// Run plays a whole session and returns the submitted log.
func Run(opts Options) (*domain.Log, error) {
	if opts.Registry == nil {
		opts.Registry = variant.Builtins()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Start.IsZero() {
		opts.Start = time.Now()
	}

	a, err := opts.Registry.Assign(opts.Variant, opts.Experiments, opts.Participant.ID)
	if err != nil {
		return nil, err
	}

	meta := a.Metadata
	meta.SessionID = "sim-" + opts.Participant.ID
	meta.StartedAt = opts.Start

	clock := eventloop.NewVirtual(opts.Start)
	relay := eventloop.NewRelay()
	p := &participant{
		script: opts.Participant,
		cfg:    a.Config,
		clock:  clock,
		relay:  relay,
		src:    rng.New(opts.Participant.Seed),
		logger: opts.Logger,
	}

	var submitted *domain.Log
	seq, err := sequencer.New(a.Config, queue.New(a.Trials), domain.NewLog(meta),
		sequencer.WithScheduler(clock),
		sequencer.WithRenderer(p),
		sequencer.WithInputSource(relay),
		sequencer.WithSink(sink.Func(func(log *domain.Log) { submitted = log })),
		sequencer.WithLogger(opts.Logger),
	)
	if err != nil {
		return nil, fmt.Errorf("create sequencer: %w", err)
	}
	p.seq = seq

	if err := seq.Start(); err != nil {
		return nil, err
	}
	clock.RunUntilIdle(maxSteps)

	if submitted == nil {
		return nil, fmt.Errorf("%w: state %s, %d trials remaining", ErrStalled, seq.State(), seq.Remaining())
	}
	return submitted, nil
}

// participant is the Renderer of a simulated session: it reacts to what is
// shown by scheduling inputs on the virtual clock.
type participant struct {
	script Participant
	cfg    sequencer.Config
	clock  *eventloop.Virtual
	relay  *eventloop.Relay
	seq    *sequencer.Sequencer
	src    *rng.Source
	logger *slog.Logger
}

var _ ports.Renderer = (*participant)(nil)

func (p *participant) Show(trial int, d domain.Descriptor) {
	if p.chance(p.script.MissRate) {
		p.logger.Debug("participant misses trial", slog.Int("trial", trial))
		return
	}
	in := p.respond(d)
	p.clock.AfterFunc(p.script.ReactionTime, func() { p.relay.Deliver(in) })
}

func (p *participant) Clear() {}

func (p *participant) Announce(slide ports.Slide) {
	switch slide {
	case ports.SlideRest:
		p.clock.AfterFunc(p.script.RestPause, func() {
			if err := p.seq.Resume(); err != nil {
				p.logger.Debug("rest already over", slog.String("error", err.Error()))
			}
		})
	case ports.SlideDemographics:
		p.clock.AfterFunc(p.script.RestPause, func() {
			patch := domain.MetadataPatch{
				Demographics: &domain.Demographics{Age: "30", Gender: "unspecified"},
				Extra:        map[string]string{"simulated": "true"},
			}
			if err := p.seq.Finalize(patch); err != nil {
				p.logger.Error("finalize failed", slog.String("error", err.Error()))
			}
		})
	}
}

// respond picks the input for d: the correctly bound key with probability
// Accuracy on scored trials, any valid input otherwise.
func (p *participant) respond(d domain.Descriptor) domain.Input {
	valid := p.cfg.ValidInputs
	var category string
	if p.cfg.Categorize != nil {
		category = p.cfg.Categorize(d)
	}
	if category == "" {
		return rng.Choice(p.src, valid)
	}

	correct := p.chance(p.script.Accuracy)
	var candidates []domain.Input
	for _, in := range valid {
		if (p.cfg.Binding.Category(in) == category) == correct {
			candidates = append(candidates, in)
		}
	}
	if len(candidates) == 0 {
		return rng.Choice(p.src, valid)
	}
	return rng.Choice(p.src, candidates)
}

func (p *participant) chance(prob float64) bool {
	if prob <= 0 {
		return false
	}
	if prob >= 1 {
		return true
	}
	return float64(p.src.Intn(1_000_000)) < prob*1_000_000
}
