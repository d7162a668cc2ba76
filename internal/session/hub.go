package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/karenlarocque/feature-forgetting/internal/core/domain"
	"github.com/karenlarocque/feature-forgetting/internal/core/ports"
)

// EventType names a render command sent to the browser.
type EventType string

const (
	EventShow      EventType = "show"
	EventClear     EventType = "clear"
	EventSlide     EventType = "slide"
	EventSubmitted EventType = "submitted"
)

// Event is one render command. Show events carry the stimulus duration so
// the browser can clear it and time the response itself; the finished slide
// and the submitted event carry the participant's outcome when there is one.
type Event struct {
	Seq        uint64             `json:"seq"`
	Type       EventType          `json:"type"`
	Trial      int                `json:"trial,omitempty"`
	Stimulus   *domain.Descriptor `json:"stimulus,omitempty"`
	DurationMS int64              `json:"duration_ms,omitempty"`
	Slide      ports.Slide        `json:"slide,omitempty"`
	Outcome    *ports.Outcome     `json:"outcome,omitempty"`
	At         time.Time          `json:"at"`
}

// DefaultBufferSize is the per-subscriber event buffer.
const DefaultBufferSize = 32

// Hub is the Renderer of a session. It fans render events out to any number
// of stream subscribers. A subscriber that falls behind loses its oldest
// buffered events, and a new subscriber first receives the latest event so
// it can draw the current screen.
type Hub struct {
	mu      sync.Mutex
	seq     uint64
	next    int
	subs    map[int]chan Event
	last    *Event
	closed  bool
	bufSize int
	logger  *slog.Logger

	// stimulus is reported on show events; zero means until cleared
	stimulus time.Duration
}

var _ ports.OutcomeRenderer = (*Hub)(nil)

// NewHub creates a hub. bufSize <= 0 uses DefaultBufferSize.
func NewHub(bufSize int, logger *slog.Logger) *Hub {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:    make(map[int]chan Event),
		bufSize: bufSize,
		logger:  logger,
	}
}

func (h *Hub) Show(trial int, d domain.Descriptor) {
	h.publish(Event{Type: EventShow, Trial: trial, Stimulus: &d, DurationMS: h.stimulus.Milliseconds()})
}

func (h *Hub) Clear() {
	h.publish(Event{Type: EventClear})
}

func (h *Hub) Announce(slide ports.Slide) {
	h.publish(Event{Type: EventSlide, Slide: slide})
}

// Finished announces the finished slide together with o.
func (h *Hub) Finished(o ports.Outcome) {
	h.publish(Event{Type: EventSlide, Slide: ports.SlideFinished, Outcome: outcomeOrNil(o)})
}

func outcomeOrNil(o ports.Outcome) *ports.Outcome {
	if o.ExitCode == "" && o.Return == nil {
		return nil
	}
	return &o
}

// Subscribe returns a channel of events and a function that ends the
// subscription. The channel is closed when the hub closes or cancel is called.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, h.bufSize)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	if h.last != nil {
		ch <- *h.last
	}

	h.next++
	id := h.next
	h.subs[id] = ch

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
	}
}

// Last returns the most recent event, if any.
func (h *Hub) Last() (Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.last == nil {
		return Event{}, false
	}
	return *h.last, true
}

// Subscribers returns the number of open subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription. Later events are discarded.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

func (h *Hub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}

	h.seq++
	ev.Seq = h.seq
	ev.At = time.Now()
	h.last = &ev

	for id, ch := range h.subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		// full: drop the oldest buffered event
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
		h.logger.Warn("slow stream subscriber, dropped event", slog.Int("subscriber", id), slog.Uint64("seq", ev.Seq))
	}
}
