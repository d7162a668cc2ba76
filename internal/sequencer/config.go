package sequencer

import (
	"time"

	"github.com/karenlarocque/feature-forgetting/internal/core/domain"
)

// Timing holds the per-variant presentation constants. Zero values disable
// the corresponding delay.
type Timing struct {
	// LeadIn is the pause between Start and the first trial.
	LeadIn time.Duration
	// StimulusDuration clears the stimulus after it has been visible this long.
	StimulusDuration time.Duration
	// TrialDuration fixes the length of every trial: the response window
	// closes at this point and an early response does not shorten the trial.
	TrialDuration time.Duration
	// ResponseTimeout closes the response window of response-terminated
	// trials. Ignored when TrialDuration is set.
	ResponseTimeout time.Duration
	// PostResponsePause is the blank interval before the next trial.
	PostResponsePause time.Duration
	// SettleDelay separates the finish slide from submission.
	SettleDelay time.Duration
	// RestFraction inserts a one-time rest once this share of the original
	// trials has been presented. Zero disables the rest.
	RestFraction float64
	// RestDuration ends the rest automatically. Zero waits for Resume.
	RestDuration time.Duration
}

// windowTimeout returns the timeout used when arming the response window.
func (t Timing) windowTimeout() time.Duration {
	if t.TrialDuration > 0 {
		return t.TrialDuration
	}
	return t.ResponseTimeout
}

// Config describes one experiment variant to the sequencer.
type Config struct {
	// Variant names the experiment for logging.
	Variant string
	// ValidInputs are the inputs that resolve a trial's response window.
	ValidInputs []domain.Input
	// Binding maps response inputs to the category they report.
	Binding domain.KeyBinding
	// Categorize returns the true category of a trial, or "" when the trial
	// is not scored.
	Categorize func(d domain.Descriptor) string
	// CollectDemographics makes the session wait for Finalize after the last
	// trial before submitting.
	CollectDemographics bool
	// WrapUp runs when the sequence finishes, after metadata has been
	// finalized and before the finished slide is shown.
	WrapUp func(log *domain.Log, now time.Time)
	Timing Timing
}

// restPoint returns the number of remaining trials at which the rest is
// taken, or 0 when there is no rest.
func (c Config) restPoint(total int) int {
	if c.Timing.RestFraction <= 0 || c.Timing.RestFraction >= 1 || total < 2 {
		return 0
	}
	presented := int(float64(total) * c.Timing.RestFraction)
	if presented <= 0 || presented >= total {
		return 0
	}
	return total - presented
}
