package session

import (
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/karenlarocque/feature-forgetting/internal/core/domain"
	"github.com/karenlarocque/feature-forgetting/internal/core/ports"
	"github.com/karenlarocque/feature-forgetting/internal/eventloop"
	"github.com/karenlarocque/feature-forgetting/internal/sequencer"
)

// ErrSessionClosed is returned for calls on a session that has been shut down.
var ErrSessionClosed = errors.New("session closed")

// Status is a point-in-time view of a session.
type Status struct {
	ID                   string    `json:"id"`
	Variant              string    `json:"variant"`
	ParticipantID        string    `json:"participant_id,omitempty"`
	State                string    `json:"state"`
	NTrials              int       `json:"nTrials"`
	Remaining            int       `json:"remaining"`
	Results              int       `json:"results"`
	AwaitingDemographics bool      `json:"awaiting_demographics"`
	Submitted            bool      `json:"submitted"`
	CreatedAt            time.Time `json:"created_at"`
	LastActive           time.Time `json:"last_active"`
	// Outcome is set once the sequence has finished.
	Outcome *ports.Outcome `json:"outcome,omitempty"`
}

// Session is one participant's run of an experiment. The sequencer and its
// log are only touched on the session's event loop; every method marshals
// its work onto the loop.
type Session struct {
	id        string
	variant   string
	createdAt time.Time

	loop   *eventloop.Loop
	relay  *eventloop.Relay
	hub    *Hub
	seq    *sequencer.Sequencer
	logger *slog.Logger

	// lastActive is the unix nano time of the latest participant call.
	lastActive atomic.Int64
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Variant returns the experiment variant name.
func (s *Session) Variant() string {
	return s.variant
}

// LastActive returns the time of the latest participant call.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

func (s *Session) touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

// Start begins the trial sequence.
func (s *Session) Start() error {
	s.touch()
	var err error
	if doErr := s.loop.Do(func() {
		err = s.seq.Start()
		if err == nil {
			s.seq.Log().Metadata.StartedAt = s.loop.Now()
		}
	}); doErr != nil {
		return ErrSessionClosed
	}
	return err
}

// Input delivers a participant input. Inputs that the current trial does not
// accept are ignored.
func (s *Session) Input(in domain.Input) error {
	return s.deliver(domain.InputEvent{Input: in})
}

// InputTimed is Input with the reaction time measured by the participant's
// browser. The response window uses it when it does not exceed the time
// measured on the server.
func (s *Session) InputTimed(in domain.Input, rt time.Duration) error {
	return s.deliver(domain.InputEvent{Input: in, RT: rt, Timed: true})
}

func (s *Session) deliver(ev domain.InputEvent) error {
	s.touch()
	if err := s.loop.Do(func() {
		s.relay.DeliverEvent(ev)
	}); err != nil {
		return ErrSessionClosed
	}
	return nil
}

// Resume ends a rest break.
func (s *Session) Resume() error {
	s.touch()
	var err error
	if doErr := s.loop.Do(func() {
		err = s.seq.Resume()
	}); doErr != nil {
		return ErrSessionClosed
	}
	return err
}

// Finalize adds late metadata such as demographics.
func (s *Session) Finalize(patch domain.MetadataPatch) error {
	s.touch()
	var err error
	if doErr := s.loop.Do(func() {
		err = s.seq.Finalize(patch)
	}); doErr != nil {
		return ErrSessionClosed
	}
	return err
}

// Status returns the current session status.
func (s *Session) Status() (Status, error) {
	s.touch()
	var st Status
	if err := s.loop.Do(func() {
		meta := s.seq.Log().Metadata
		st = Status{
			ID:                   s.id,
			Variant:              s.variant,
			ParticipantID:        meta.ParticipantID,
			State:                s.seq.State().String(),
			NTrials:              meta.NTrials,
			Remaining:            s.seq.Remaining(),
			Results:              s.seq.Log().Len(),
			AwaitingDemographics: s.seq.AwaitingFinalize(),
			Submitted:            s.seq.Submitted(),
			CreatedAt:            s.createdAt,
			LastActive:           s.LastActive(),
			Outcome:              outcomeOrNil(s.seq.Outcome()),
		}
	}); err != nil {
		return Status{}, ErrSessionClosed
	}
	return st, nil
}

// Subscribe streams the session's render events.
func (s *Session) Subscribe() (<-chan Event, func()) {
	s.touch()
	return s.hub.Subscribe()
}

// Close stops the session without submitting. It must not be called from the
// session's own loop.
func (s *Session) Close() {
	if err := s.loop.Do(s.seq.Stop); err != nil {
		s.logger.Debug("session loop already closed")
	}
	s.hub.Close()
	s.loop.Close()
}
