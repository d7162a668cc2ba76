// Package variant assigns experiment conditions and builds the trial list of
// each built-in experiment.
//
// # Adding a New Variant
//
// Implement a Build function that draws every random choice from the source
// it is given and register it on the session manager's registry:
//
//	reg.Register(variant.Factory{
//	    Name:        "lexical",
//	    Description: "Word/non-word decision",
//	    Build:       buildLexical,
//	})
package variant

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/karenlarocque/feature-forgetting/internal/config"
	"github.com/karenlarocque/feature-forgetting/internal/core/domain"
	"github.com/karenlarocque/feature-forgetting/internal/rng"
	"github.com/karenlarocque/feature-forgetting/internal/sequencer"
)

// ErrUnknownVariant is returned by Assign for a name that is not registered.
var ErrUnknownVariant = errors.New("unknown variant")

// Assignment is a participant's condition: the sequencer configuration, the
// ordered trial list and the metadata recorded with the log.
type Assignment struct {
	Config   sequencer.Config
	Trials   []domain.Descriptor
	Metadata domain.Metadata
}

// BuildFunc creates an assignment. All randomness must come from src.
type BuildFunc func(cfg config.ExperimentsConfig, src *rng.Source, participantID string) (*Assignment, error)

// Factory describes one experiment variant.
type Factory struct {
	// Name is the identifier used by clients when creating a session.
	Name string
	// Description is shown in the variant listing.
	Description string
	Build       BuildFunc
}

// Registry holds the variants a server can run.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a variant. It fails on an empty or duplicate name.
func (r *Registry) Register(f Factory) error {
	if f.Name == "" {
		return fmt.Errorf("variant name cannot be empty")
	}
	if f.Build == nil {
		return fmt.Errorf("variant %q must have a Build function", f.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[f.Name]; exists {
		return fmt.Errorf("variant %q already registered", f.Name)
	}
	r.factories[f.Name] = f
	return nil
}

// Get returns the factory for name, if registered.
func (r *Registry) Get(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.factories[name]
	return f, ok
}

// IsRegistered returns true if name is registered.
func (r *Registry) IsRegistered(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// List returns all registered factories sorted by name.
func (r *Registry) List() []Factory {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Factory, 0, len(r.factories))
	for _, f := range r.factories {
		result = append(result, f)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// Names returns the registered variant names, sorted.
func (r *Registry) Names() []string {
	factories := r.List()
	names := make([]string, len(factories))
	for i, f := range factories {
		names[i] = f.Name
	}
	return names
}

// Assign builds the assignment of participantID for the named variant. The
// random source is derived from participantID, so the same participant is
// always given the same condition and trial order. An empty participantID
// gets a fresh random assignment.
func (r *Registry) Assign(name string, cfg config.ExperimentsConfig, participantID string) (*Assignment, error) {
	f, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s (registered variants: %v)", ErrUnknownVariant, name, r.Names())
	}

	a, err := f.Build(cfg, rng.ForParticipant(participantID), participantID)
	if err != nil {
		return nil, fmt.Errorf("build variant %s: %w", name, err)
	}
	a.Config.Variant = name
	a.Metadata.Variant = name
	a.Metadata.ParticipantID = participantID
	a.Metadata.NTrials = len(a.Trials)
	a.Metadata.TrialOrder = make([]string, len(a.Trials))
	for i, d := range a.Trials {
		a.Metadata.TrialOrder[i] = d.String()
	}
	return a, nil
}

// Builtins returns a registry with the parity, encoding and retrieval variants.
func Builtins() *Registry {
	r := NewRegistry()
	for _, f := range []Factory{Parity(), Encoding(), Retrieval()} {
		if err := r.Register(f); err != nil {
			panic(err)
		}
	}
	return r
}

// timing converts configured timing to sequencer timing.
func timing(t config.TimingConfig) sequencer.Timing {
	return sequencer.Timing{
		LeadIn:            t.LeadIn,
		StimulusDuration:  t.StimulusDuration,
		TrialDuration:     t.TrialDuration,
		ResponseTimeout:   t.ResponseTimeout,
		PostResponsePause: t.PostResponsePause,
		SettleDelay:       t.SettleDelay,
		RestFraction:      t.RestFraction,
		RestDuration:      t.RestDuration,
	}
}
