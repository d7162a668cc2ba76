package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/karenlarocque/feature-forgetting/internal/config"
	"github.com/karenlarocque/feature-forgetting/internal/core/domain"
	"github.com/karenlarocque/feature-forgetting/internal/core/ports"
	"github.com/karenlarocque/feature-forgetting/internal/sequencer"
	"github.com/karenlarocque/feature-forgetting/internal/session"
	"github.com/karenlarocque/feature-forgetting/internal/sink"
	"github.com/karenlarocque/feature-forgetting/internal/variant"
)

func experiments() config.ExperimentsConfig {
	return config.ExperimentsConfig{
		Parity: config.ParityConfig{TrialOrders: [][]int{{3}}},
		Encoding: config.EncodingConfig{
			StimulusDir:       "stim/",
			StimulusSets:      [][]string{{"bed"}, {"ring"}, {"kite"}, {"apple"}},
			Bigger:            []string{"bed"},
			Smaller:           []string{"ring"},
			AccuracyThreshold: 0.7,
			Timing:            config.TimingConfig{RestFraction: 0.5},
		},
		Retrieval: config.RetrievalConfig{StimulusDir: "stim/", TrialOrders: [][]string{{"apple"}}},
	}
}

func newManager(t *testing.T) (*session.Manager, chan *domain.Log) {
	t.Helper()
	submitted := make(chan *domain.Log, 4)
	m := session.NewManager(variant.Builtins(), experiments(), sink.Func(func(log *domain.Log) {
		submitted <- log
	}))
	t.Cleanup(func() {
		gt.NoError(t, m.Shutdown(context.Background()))
	})
	return m, submitted
}

func next(t *testing.T, ch <-chan session.Event) session.Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("event stream closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return session.Event{}
}

func TestManagerRunsParitySession(t *testing.T) {
	m, submitted := newManager(t)

	s := gt.R1(m.Create(context.Background(), "parity", "worker-1")).NoError(t)
	gt.Equal(t, m.Len(), 1)

	events, cancel := s.Subscribe()
	defer cancel()

	gt.NoError(t, s.Start()).Required()
	gt.True(t, errors.Is(s.Start(), sequencer.ErrAlreadyStarted))

	show := next(t, events)
	gt.Equal(t, show.Type, session.EventShow)
	gt.Equal(t, show.Stimulus.Number, 3)

	st := gt.R1(s.Status()).NoError(t)
	gt.Equal(t, st.State, "running")
	gt.Equal(t, st.Remaining, 0)

	gt.NoError(t, s.Input("x")).Required()
	gt.NoError(t, s.Input("p")).Required()

	gt.Equal(t, next(t, events).Type, session.EventClear)
	finished := next(t, events)
	gt.Equal(t, finished.Type, session.EventSlide)
	gt.Equal(t, finished.Slide, ports.SlideFinished)
	gt.Equal(t, next(t, events).Type, session.EventSubmitted)

	var log *domain.Log
	select {
	case log = <-submitted:
	case <-time.After(2 * time.Second):
		t.Fatal("log was not submitted")
	}
	gt.Equal(t, log.Len(), 1)
	gt.Equal(t, log.Results[0].Response, domain.Input("p"))
	gt.Equal(t, log.Metadata.SessionID, s.ID())
	gt.Equal(t, log.Metadata.ParticipantID, "worker-1")
	gt.True(t, log.Frozen())

	// the stream ends and the session is dropped
	select {
	case _, ok := <-events:
		gt.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("stream was not closed")
	}
	_, err := m.Get(s.ID())
	gt.True(t, errors.Is(err, session.ErrNotFound))
}

func TestManagerEncodingWaitsForDemographics(t *testing.T) {
	m, submitted := newManager(t)

	s := gt.R1(m.Create(context.Background(), "encoding", "")).NoError(t)
	events, cancel := s.Subscribe()
	defer cancel()

	gt.True(t, errors.Is(s.Finalize(domain.MetadataPatch{}), sequencer.ErrNotFinished))
	gt.NoError(t, s.Start()).Required()

	// four single-item sets, response-terminated, rest after two trials
	for i := 0; i < 4; i++ {
		if i == 2 {
			ev := next(t, events)
			gt.Equal(t, ev.Slide, ports.SlideRest)
			gt.NoError(t, s.Resume()).Required()
		}
		gt.Equal(t, next(t, events).Type, session.EventShow)
		gt.NoError(t, s.Input("q")).Required()
		gt.Equal(t, next(t, events).Type, session.EventClear)
	}

	ev := next(t, events)
	gt.Equal(t, ev.Slide, ports.SlideDemographics)
	st := gt.R1(s.Status()).NoError(t)
	gt.True(t, st.AwaitingDemographics)
	gt.False(t, st.Submitted)

	gt.NoError(t, s.Finalize(domain.MetadataPatch{
		Demographics: &domain.Demographics{Age: "30", Gender: "m"},
	})).Required()

	// the exit code is on the finished slide, before submission
	finished := next(t, events)
	gt.Equal(t, finished.Slide, ports.SlideFinished)
	gt.NotNil(t, finished.Outcome)
	gt.NotEqual(t, finished.Outcome.ExitCode, "")

	var log *domain.Log
	select {
	case log = <-submitted:
		gt.Equal(t, log.Len(), 4)
		gt.Equal(t, log.Metadata.Demographics.Age, "30")
	case <-time.After(2 * time.Second):
		t.Fatal("log was not submitted")
	}
	gt.Equal(t, finished.Outcome.ExitCode, log.Metadata.ExitCode)

	done := next(t, events)
	gt.Equal(t, done.Type, session.EventSubmitted)
	gt.Equal(t, done.Outcome.ExitCode, log.Metadata.ExitCode)
}

func TestStatusCarriesOutcome(t *testing.T) {
	m, _ := newManager(t)
	cfg := experiments()
	cfg.Encoding.Timing.SettleDelay = time.Minute
	m.SetExperiments(cfg)

	s := gt.R1(m.Create(context.Background(), "encoding", "w-9", session.WithUTCOffset(120))).NoError(t)
	events, cancel := s.Subscribe()
	defer cancel()

	st := gt.R1(s.Status()).NoError(t)
	gt.True(t, st.Outcome == nil)

	gt.NoError(t, s.Start()).Required()
	for i := 0; i < 4; i++ {
		ev := next(t, events)
		if ev.Slide == ports.SlideRest {
			gt.NoError(t, s.Resume()).Required()
			ev = next(t, events)
		}
		gt.Equal(t, ev.Type, session.EventShow)
		gt.NoError(t, s.Input("p")).Required()
		gt.Equal(t, next(t, events).Type, session.EventClear)
	}
	gt.Equal(t, next(t, events).Slide, ports.SlideDemographics)
	gt.NoError(t, s.Finalize(domain.MetadataPatch{})).Required()
	gt.Equal(t, next(t, events).Slide, ports.SlideFinished)

	// still inside the settle delay
	st = gt.R1(s.Status()).NoError(t)
	gt.Equal(t, st.State, "finished")
	gt.NotNil(t, st.Outcome)
	gt.NotEqual(t, st.Outcome.ExitCode, "")
}

func TestInputTimedUsesClientReactionTime(t *testing.T) {
	m, submitted := newManager(t)

	s := gt.R1(m.Create(context.Background(), "parity", "")).NoError(t)
	events, cancel := s.Subscribe()
	defer cancel()

	gt.NoError(t, s.Start()).Required()
	gt.Equal(t, next(t, events).Type, session.EventShow)
	time.Sleep(50 * time.Millisecond)
	gt.NoError(t, s.InputTimed("p", 20*time.Millisecond)).Required()

	select {
	case log := <-submitted:
		gt.Equal(t, log.Results[0].RT, int64(20))
	case <-time.After(3 * time.Second):
		t.Fatal("log was not submitted")
	}
}

func TestIdleSessionsAreReaped(t *testing.T) {
	m := session.NewManager(variant.Builtins(), experiments(), sink.Func(func(*domain.Log) {}),
		session.WithIdleTimeout(time.Hour))
	t.Cleanup(func() {
		gt.NoError(t, m.Shutdown(context.Background()))
	})

	idle := gt.R1(m.Create(context.Background(), "parity", "")).NoError(t)
	active := gt.R1(m.Create(context.Background(), "parity", "")).NoError(t)
	time.Sleep(5 * time.Millisecond)
	gt.NoError(t, active.Start()).Required()

	gt.Equal(t, m.Reap(time.Now()), 0)
	gt.Equal(t, m.Len(), 2)

	gt.Equal(t, m.Reap(idle.LastActive().Add(time.Hour+time.Millisecond)), 1)
	gt.Equal(t, m.Len(), 1)
	_, err := m.Get(idle.ID())
	gt.True(t, errors.Is(err, session.ErrNotFound))
	gt.True(t, errors.Is(idle.Start(), session.ErrSessionClosed))

	_, err = m.Get(active.ID())
	gt.NoError(t, err)
}

func TestReaperClosesIdleSessions(t *testing.T) {
	m := session.NewManager(variant.Builtins(), experiments(), sink.Func(func(*domain.Log) {}),
		session.WithIdleTimeout(40*time.Millisecond))
	t.Cleanup(func() {
		gt.NoError(t, m.Shutdown(context.Background()))
	})

	s := gt.R1(m.Create(context.Background(), "parity", "")).NoError(t)
	events, cancel := s.Subscribe()
	defer cancel()

	deadline := time.Now().Add(2 * time.Second)
	for m.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	gt.Equal(t, m.Len(), 0)

	// the event stream of an expired session ends
	select {
	case _, ok := <-events:
		gt.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("stream was not closed")
	}
}

func TestManagerErrors(t *testing.T) {
	m, _ := newManager(t)

	_, err := m.Create(context.Background(), "lexical", "")
	gt.Error(t, err)

	_, err = m.Get("missing")
	gt.True(t, errors.Is(err, session.ErrNotFound))
}

func TestManagerShutdownClosesSessions(t *testing.T) {
	m, submitted := newManager(t)

	s := gt.R1(m.Create(context.Background(), "parity", "")).NoError(t)
	gt.NoError(t, s.Start()).Required()

	gt.NoError(t, m.Shutdown(context.Background())).Required()
	gt.Equal(t, m.Len(), 0)

	_, err := s.Status()
	gt.True(t, errors.Is(err, session.ErrSessionClosed))
	gt.True(t, errors.Is(s.Input("p"), session.ErrSessionClosed))
	gt.Equal(t, len(submitted), 0)
}

func TestManagerSetExperiments(t *testing.T) {
	m, _ := newManager(t)

	cfg := experiments()
	cfg.Parity.TrialOrders = [][]int{{1, 2, 3, 4}}
	m.SetExperiments(cfg)

	s := gt.R1(m.Create(context.Background(), "parity", "")).NoError(t)
	st := gt.R1(s.Status()).NoError(t)
	gt.Equal(t, st.NTrials, 4)
}
