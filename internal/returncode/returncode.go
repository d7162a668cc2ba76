// Package returncode computes the follow-up window and completion code
// handed to participants who qualify for the second part of a study.
package returncode

import (
	"time"

	"github.com/karenlarocque/feature-forgetting/internal/core/domain"
)

// DelayGroup selects how long a participant waits before the follow-up.
type DelayGroup string

const (
	Short DelayGroup = "short"
	Long  DelayGroup = "long"
)

// None is the code given to participants who do not qualify.
const None = "none"

const (
	prefix = "8302"
	infix  = "2153"
	stamp  = "010215" // MMDDHH
)

// Windows per delay group, relative to completion time.
var (
	shortOffset = 0 * time.Hour
	shortLength = 60 * time.Minute
	longOffset  = 60 * time.Hour
	longLength  = 24 * time.Hour
)

// Result is the computed follow-up window and its code.
type Result struct {
	Code   string
	Window *domain.ReturnWindow
}

// Compute returns the follow-up window and code for a participant who
// finished at now. Participants whose accuracy in any category is below
// threshold receive None and no window.
func Compute(now time.Time, group DelayGroup, accuracy map[string]float64, threshold float64) Result {
	for _, acc := range accuracy {
		if acc < threshold {
			return Result{Code: None}
		}
	}

	offset, length, suffix := shortOffset, shortLength, "s"
	if group == Long {
		offset, length, suffix = longOffset, longLength, "l"
	}

	start := now.Add(offset)
	end := start.Add(length)
	return Result{
		Code:   prefix + start.Format(stamp) + end.Format(stamp) + infix + suffix,
		Window: &domain.ReturnWindow{Start: start, End: end},
	}
}
