package variant

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/karenlarocque/feature-forgetting/internal/config"
	"github.com/karenlarocque/feature-forgetting/internal/core/domain"
	"github.com/karenlarocque/feature-forgetting/internal/returncode"
	"github.com/karenlarocque/feature-forgetting/internal/rng"
	"github.com/karenlarocque/feature-forgetting/internal/sequencer"
)

const (
	Bigger  = "bigger"
	Smaller = "smaller"
)

// slots are the image files presented for each counterbalanced set, in set
// order.
var slots = []string{"e1_s1", "e1_s2", "e2_s1", "e2_s2"}

var encodingBindings = []domain.KeyBinding{
	{KeyP: Smaller, KeyQ: Bigger},
	{KeyP: Bigger, KeyQ: Smaller},
}

// Encoding returns the bigger/smaller image judgement variant. Participants
// whose accuracy is high enough receive a code and a window for the
// follow-up retrieval part.
func Encoding() Factory {
	return Factory{
		Name:        "encoding",
		Description: "Judge whether each pictured object is bigger or smaller than a shoebox",
		Build:       buildEncoding,
	}
}

func buildEncoding(cfg config.ExperimentsConfig, src *rng.Source, _ string) (*Assignment, error) {
	ec := cfg.Encoding
	if len(ec.StimulusSets) != len(slots) {
		return nil, fmt.Errorf("encoding: need %d stimulus sets, got %d", len(slots), len(ec.StimulusSets))
	}

	binding := rng.Choice(src, encodingBindings)
	group := returncode.Short
	if src.Intn(2) == 0 {
		group = returncode.Long
	}
	counterbalance := src.Intn(len(slots))

	var trials []domain.Descriptor
	for slot, file := range slots {
		set := ec.StimulusSets[(slot+counterbalance)%len(slots)]
		for _, item := range set {
			trials = append(trials, domain.ImageTrial(ec.StimulusDir+item+"/"+file+".jpg"))
		}
	}
	rng.Shuffle(src, trials)

	categories := make(map[string]string, len(ec.Bigger)+len(ec.Smaller))
	for _, item := range ec.Bigger {
		categories[item] = Bigger
	}
	for _, item := range ec.Smaller {
		categories[item] = Smaller
	}

	threshold := ec.AccuracyThreshold

	return &Assignment{
		Config: sequencer.Config{
			ValidInputs: []domain.Input{KeyP, KeyQ},
			Binding:     binding,
			Categorize: func(d domain.Descriptor) string {
				return categories[d.Item]
			},
			CollectDemographics: true,
			WrapUp: func(log *domain.Log, now time.Time) {
				wrapUpEncoding(log, now, group, threshold)
			},
			Timing: timing(ec.Timing),
		},
		Trials: trials,
		Metadata: domain.Metadata{
			KeyBindings:    binding,
			Counterbalance: &counterbalance,
			DelayGroup:     string(group),
		},
	}, nil
}

// wrapUpEncoding records per-category accuracy and the follow-up code. The
// code's hour stamps are in the participant's zone.
func wrapUpEncoding(log *domain.Log, now time.Time, group returncode.DelayGroup, threshold float64) {
	acc := log.CategoryAccuracy()
	res := returncode.Compute(log.Metadata.ParticipantTime(now), group, acc, threshold)

	log.Metadata.Accuracy = acc
	log.Metadata.ExitCode = res.Code
	log.Metadata.Return = res.Window

	slog.Default().Debug("encoding wrap up",
		slog.String("session_id", log.Metadata.SessionID),
		slog.String("exit_code", res.Code))
}
