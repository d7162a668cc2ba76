package returncode_test

import (
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/karenlarocque/feature-forgetting/internal/returncode"
)

var finished = time.Date(2024, 11, 28, 22, 30, 0, 0, time.UTC)

func TestShortGroup(t *testing.T) {
	r := returncode.Compute(finished, returncode.Short, map[string]float64{"bigger": 0.8, "smaller": 0.9}, 0.7)

	gt.Equal(t, r.Code, "8302112822112823"+"2153s")
	gt.Equal(t, r.Window.Start, finished)
	gt.Equal(t, r.Window.End, finished.Add(time.Hour))
}

func TestLongGroupCrossesMonth(t *testing.T) {
	r := returncode.Compute(finished, returncode.Long, map[string]float64{"bigger": 1, "smaller": 0.7}, 0.7)

	// start = Dec 1 10:30, end = Dec 2 10:30
	gt.Equal(t, r.Code, "8302120110120210"+"2153l")
	gt.Equal(t, r.Window.Start, finished.Add(60*time.Hour))
	gt.Equal(t, r.Window.End, finished.Add(84*time.Hour))
}

func TestBelowThreshold(t *testing.T) {
	r := returncode.Compute(finished, returncode.Short, map[string]float64{"bigger": 0.95, "smaller": 0.5}, 0.7)

	gt.Equal(t, r.Code, returncode.None)
	gt.True(t, r.Window == nil)
}

func TestInputTimeUnchanged(t *testing.T) {
	now := finished
	returncode.Compute(now, returncode.Long, nil, 0.7)
	gt.Equal(t, now, finished)
}
