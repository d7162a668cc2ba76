package variant

import (
	"fmt"

	"github.com/karenlarocque/feature-forgetting/internal/config"
	"github.com/karenlarocque/feature-forgetting/internal/core/domain"
	"github.com/karenlarocque/feature-forgetting/internal/rng"
	"github.com/karenlarocque/feature-forgetting/internal/sequencer"
)

const (
	Odd  = "odd"
	Even = "even"
)

// Response keys shared by the keyboard variants.
const (
	KeyP domain.Input = "p"
	KeyQ domain.Input = "q"
)

var parityBindings = []domain.KeyBinding{
	{KeyP: Odd, KeyQ: Even},
	{KeyP: Even, KeyQ: Odd},
}

// Parity returns the odd/even number judgement variant.
func Parity() Factory {
	return Factory{
		Name:        "parity",
		Description: "Judge whether each number is odd or even",
		Build:       buildParity,
	}
}

func buildParity(cfg config.ExperimentsConfig, src *rng.Source, _ string) (*Assignment, error) {
	pc := cfg.Parity
	if len(pc.TrialOrders) == 0 {
		return nil, fmt.Errorf("parity: no trial orders configured")
	}

	binding := rng.Choice(src, parityBindings)
	order := rng.Choice(src, pc.TrialOrders)

	trials := make([]domain.Descriptor, len(order))
	for i, n := range order {
		trials[i] = domain.NumberTrial(n)
	}

	return &Assignment{
		Config: sequencer.Config{
			ValidInputs: []domain.Input{KeyP, KeyQ},
			Binding:     binding,
			Categorize:  parityOf,
			Timing:      timing(pc.Timing),
		},
		Trials:   trials,
		Metadata: domain.Metadata{KeyBindings: binding},
	}, nil
}

func parityOf(d domain.Descriptor) string {
	if d.Kind != domain.KindNumber {
		return ""
	}
	if d.Number%2 == 0 {
		return Even
	}
	return Odd
}
