package response_test

import (
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/karenlarocque/feature-forgetting/internal/core/domain"
	"github.com/karenlarocque/feature-forgetting/internal/eventloop"
	"github.com/karenlarocque/feature-forgetting/internal/response"
)

type resolution struct {
	in      domain.Input
	elapsed time.Duration
}

func setup() (*eventloop.Virtual, *eventloop.Relay, *response.Window) {
	v := eventloop.NewVirtual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	relay := eventloop.NewRelay()
	return v, relay, response.New(v, relay)
}

var keys = []domain.Input{"p", "q"}

func TestResolvesOnFirstQualifyingInput(t *testing.T) {
	v, relay, w := setup()
	var got []resolution
	gt.NoError(t, w.Arm(keys, func(in domain.Input, d time.Duration) {
		got = append(got, resolution{in, d})
	}, 0))
	gt.Equal(t, w.State(), response.Armed)

	v.Advance(120 * time.Millisecond)
	relay.Deliver("x")
	relay.Deliver("space")
	gt.Equal(t, len(got), 0)
	gt.Equal(t, w.State(), response.Armed)
	gt.Equal(t, relay.Subscribers(), 1)

	v.Advance(180 * time.Millisecond)
	relay.Deliver("p")
	relay.Deliver("p")
	relay.Deliver("q")

	gt.Equal(t, got, []resolution{{"p", 300 * time.Millisecond}})
	gt.Equal(t, w.State(), response.Resolved)
	gt.Equal(t, relay.Subscribers(), 0)
}

func TestTimeoutResolvesWithNoResponse(t *testing.T) {
	v, relay, w := setup()
	var got []resolution
	gt.NoError(t, w.Arm(keys, func(in domain.Input, d time.Duration) {
		got = append(got, resolution{in, d})
	}, 2000*time.Millisecond))

	relay.Deliver("z")
	v.Advance(1999 * time.Millisecond)
	gt.Equal(t, len(got), 0)

	v.Advance(5 * time.Second)
	gt.Equal(t, got, []resolution{{domain.NoResponse, 2000 * time.Millisecond}})
	gt.Equal(t, w.State(), response.TimedOut)

	relay.Deliver("p")
	gt.Equal(t, len(got), 1)
	gt.Equal(t, relay.Subscribers(), 0)
}

func TestInputBeforeTimeoutCancelsTimer(t *testing.T) {
	v, relay, w := setup()
	count := 0
	gt.NoError(t, w.Arm(keys, func(domain.Input, time.Duration) { count++ }, time.Second))

	v.Advance(400 * time.Millisecond)
	relay.Deliver("q")
	v.Advance(10 * time.Second)

	gt.Equal(t, count, 1)
	gt.Equal(t, v.Pending(), 0)
}

func TestInputAndTimeoutAtSameInstant(t *testing.T) {
	v, relay, w := setup()
	var got []domain.Input
	gt.NoError(t, w.Arm(keys, func(in domain.Input, _ time.Duration) { got = append(got, in) }, time.Second))

	// the input is queued on the loop at the deadline, after the timeout
	v.AfterFunc(time.Second, func() { relay.Deliver("p") })
	v.Advance(time.Second)

	gt.Equal(t, got, []domain.Input{domain.NoResponse})
}

func TestArmTwiceFails(t *testing.T) {
	_, _, w := setup()
	gt.NoError(t, w.Arm(keys, func(domain.Input, time.Duration) {}, 0))
	gt.Equal(t, w.Arm(keys, func(domain.Input, time.Duration) {}, 0), response.ErrAlreadyArmed)
	gt.Equal(t, w.Arm(nil, func(domain.Input, time.Duration) {}, 0), response.ErrAlreadyArmed)
}

func TestArmWithoutInputs(t *testing.T) {
	_, _, w := setup()
	gt.Equal(t, w.Arm(nil, func(domain.Input, time.Duration) {}, 0), response.ErrNoValidInputs)
	gt.Equal(t, w.State(), response.Idle)
}

func TestCancelIsIdempotent(t *testing.T) {
	v, relay, w := setup()
	count := 0
	w.Cancel()
	gt.NoError(t, w.Arm(keys, func(domain.Input, time.Duration) { count++ }, time.Second))

	w.Cancel()
	w.Cancel()
	gt.Equal(t, w.State(), response.Idle)

	relay.Deliver("p")
	v.Advance(2 * time.Second)
	gt.Equal(t, count, 0)
	gt.Equal(t, relay.Subscribers(), 0)
}

func TestRearmAfterResolution(t *testing.T) {
	v, relay, w := setup()
	var got []resolution
	record := func(in domain.Input, d time.Duration) { got = append(got, resolution{in, d}) }

	gt.NoError(t, w.Arm(keys, record, 0))
	v.Advance(100 * time.Millisecond)
	relay.Deliver("p")

	gt.NoError(t, w.Arm(keys, record, 0))
	v.Advance(250 * time.Millisecond)
	relay.Deliver("q")

	gt.Equal(t, got, []resolution{
		{"p", 100 * time.Millisecond},
		{"q", 250 * time.Millisecond},
	})
}

func TestReentrantInputDuringCallback(t *testing.T) {
	_, relay, w := setup()
	count := 0
	gt.NoError(t, w.Arm(keys, func(domain.Input, time.Duration) {
		count++
		// a key repeat arriving while the callback runs
		relay.Deliver("p")
	}, 0))

	relay.Deliver("p")
	gt.Equal(t, count, 1)
}

func TestClientReactionTime(t *testing.T) {
	tests := []struct {
		name string
		rt   time.Duration
		want time.Duration
	}{
		{name: "used when within server time", rt: 250 * time.Millisecond, want: 250 * time.Millisecond},
		{name: "zero is accepted", rt: 0, want: 0},
		{name: "longer than server time falls back", rt: 900 * time.Millisecond, want: 400 * time.Millisecond},
		{name: "negative falls back", rt: -5 * time.Millisecond, want: 400 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, relay, w := setup()
			var got []resolution
			gt.NoError(t, w.Arm(keys, func(in domain.Input, d time.Duration) {
				got = append(got, resolution{in, d})
			}, time.Second))

			v.Advance(400 * time.Millisecond)
			relay.DeliverTimed("x", 10*time.Millisecond)
			relay.DeliverTimed("q", tt.rt)
			relay.DeliverTimed("p", 10*time.Millisecond)
			v.Advance(time.Second)

			gt.Equal(t, got, []resolution{{"q", tt.want}})
		})
	}
}
