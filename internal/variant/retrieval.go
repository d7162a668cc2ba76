package variant

import (
	"fmt"

	"github.com/karenlarocque/feature-forgetting/internal/config"
	"github.com/karenlarocque/feature-forgetting/internal/core/domain"
	"github.com/karenlarocque/feature-forgetting/internal/rng"
	"github.com/karenlarocque/feature-forgetting/internal/sequencer"
)

// Click targets of the four-image display.
const (
	UpperLeft  domain.Input = "upperleft"
	UpperRight domain.Input = "upperright"
	LowerLeft  domain.Input = "lowerleft"
	LowerRight domain.Input = "lowerright"
)

// positions pairs each click target with the image file it shows.
var positions = []struct {
	input domain.Input
	file  string
}{
	{UpperLeft, "e1_s1"},
	{UpperRight, "e1_s2"},
	{LowerLeft, "e2_s1"},
	{LowerRight, "e2_s2"},
}

// Retrieval returns the four-alternative recognition variant.
func Retrieval() Factory {
	return Factory{
		Name:        "retrieval",
		Description: "Pick the previously seen image out of four",
		Build:       buildRetrieval,
	}
}

func buildRetrieval(cfg config.ExperimentsConfig, src *rng.Source, _ string) (*Assignment, error) {
	rc := cfg.Retrieval
	if len(rc.TrialOrders) == 0 {
		return nil, fmt.Errorf("retrieval: no trial orders configured")
	}

	order := rng.Choice(src, rc.TrialOrders)
	trials := make([]domain.Descriptor, len(order))
	for i, item := range order {
		images := make(map[domain.Input]string, len(positions))
		for _, p := range positions {
			images[p.input] = rc.StimulusDir + item + "/" + p.file + ".jpg"
		}
		trials[i] = domain.ChoiceTrial(item, images)
	}

	return &Assignment{
		Config: sequencer.Config{
			ValidInputs: []domain.Input{UpperLeft, UpperRight, LowerLeft, LowerRight},
			Timing:      timing(rc.Timing),
		},
		Trials: trials,
	}, nil
}
