package domain

import "time"

// Input is the identity of a discrete participant input: a key name or the
// target of a pointer click.
type Input string

// InputEvent is one delivered input. When Timed is set, RT is the reaction
// time the participant's device measured from stimulus onset.
type InputEvent struct {
	Input Input
	RT    time.Duration
	Timed bool
}

// NoResponse marks a trial that ended without a qualifying input.
const NoResponse Input = "noresponse"

// NoReactionTime is recorded as the reaction time of a trial without a response.
const NoReactionTime int64 = -1

// KeyBinding maps response inputs to the category they report.
type KeyBinding map[Input]string

// Category returns the category bound to in, or "" when unbound.
func (b KeyBinding) Category(in Input) string {
	if b == nil {
		return ""
	}
	return b[in]
}

// Result is the record of one completed or timed-out trial. It is created
// once per trial and never mutated after being appended to a Log.
type Result struct {
	Trial    int    `json:"trial"`
	Stimulus string `json:"stimulus"`
	RT       int64  `json:"rt"`
	Response Input  `json:"resp"`
	// Category is the true category of a scored trial.
	Category string `json:"category,omitempty"`
	// Accuracy is 1 for a correct and 0 for an incorrect scored trial; nil for
	// trials that are not scored.
	Accuracy *int `json:"accuracy,omitempty"`
	// Selected is the image chosen on a choice trial.
	Selected string `json:"selected,omitempty"`
}

// Responded reports whether the participant gave a qualifying input.
func (r Result) Responded() bool {
	return r.Response != NoResponse
}

// Correct reports whether the trial was scored and answered correctly.
func (r Result) Correct() bool {
	return r.Accuracy != nil && *r.Accuracy == 1
}

// Score returns the accuracy flag for a response category against the true one.
func Score(trueCategory, responseCategory string) *int {
	acc := 0
	if responseCategory != "" && responseCategory == trueCategory {
		acc = 1
	}
	return &acc
}
