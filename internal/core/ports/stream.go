package ports

import (
	"time"

	"github.com/karenlarocque/feature-forgetting/internal/core/domain"
)

// Timer is a pending scheduled callback.
type Timer interface {
	// Stop cancels the callback. It reports whether the call prevented the
	// callback from running.
	Stop() bool
}

// Scheduler provides the clock and timers of a single-threaded event loop.
// Callbacks scheduled with AfterFunc run on the loop, never concurrently with
// other loop work.
// Implementations: eventloop.Loop (wall clock), eventloop.Virtual (manual clock).
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// Slide names a full-screen display state that is not a trial.
type Slide string

const (
	SlideLeadIn       Slide = "leadin"
	SlideRest         Slide = "rest"
	SlideDemographics Slide = "demographics"
	SlideFinished     Slide = "finished"
)

// Renderer draws stimuli for the participant. Calls are fire-and-forget
// visual updates from the sequencer's point of view.
type Renderer interface {
	Show(trial int, d domain.Descriptor)
	Clear()
	Announce(slide Slide)
}

// Outcome is what the participant is shown when the sequence finishes.
type Outcome struct {
	ExitCode string               `json:"exitcode,omitempty"`
	Return   *domain.ReturnWindow `json:"return,omitempty"`
}

// OutcomeRenderer is a Renderer that can draw the finished slide together
// with the participant's outcome. Sequencers call Finished in place of
// Announce(SlideFinished) when the renderer implements it.
type OutcomeRenderer interface {
	Renderer
	Finished(o Outcome)
}

// InputHandler receives participant inputs.
type InputHandler func(ev domain.InputEvent)

// InputSource delivers discrete participant inputs to subscribers.
type InputSource interface {
	// Subscribe registers h and returns a function that removes it. The
	// returned function is safe to call more than once.
	Subscribe(h InputHandler) (unsubscribe func())
}

// SubmissionSink accepts a finished log for transport. No acknowledgment is
// observed by the caller.
type SubmissionSink interface {
	Submit(log *domain.Log)
}
