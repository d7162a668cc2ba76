package eventloop

import (
	"time"

	"github.com/karenlarocque/feature-forgetting/internal/core/domain"
	"github.com/karenlarocque/feature-forgetting/internal/core/ports"
)

// Relay is an InputSource whose inputs are delivered by the owner. It must
// only be used from one goroutine (the loop).
type Relay struct {
	next     uint64
	handlers map[uint64]ports.InputHandler
	order    []uint64
}

// NewRelay creates an empty relay.
func NewRelay() *Relay {
	return &Relay{handlers: make(map[uint64]ports.InputHandler)}
}

// Subscribe registers h until the returned function is called.
func (r *Relay) Subscribe(h ports.InputHandler) func() {
	r.next++
	id := r.next
	r.handlers[id] = h
	r.order = append(r.order, id)

	return func() {
		if _, ok := r.handlers[id]; !ok {
			return
		}
		delete(r.handlers, id)
		for i, v := range r.order {
			if v == id {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
}

// Deliver passes in to every current subscriber in subscription order.
// Handlers that unsubscribe during delivery stop receiving immediately.
func (r *Relay) Deliver(in domain.Input) {
	r.DeliverEvent(domain.InputEvent{Input: in})
}

// DeliverTimed is Deliver with a reaction time measured by the client.
func (r *Relay) DeliverTimed(in domain.Input, rt time.Duration) {
	r.DeliverEvent(domain.InputEvent{Input: in, RT: rt, Timed: true})
}

// DeliverEvent passes ev to every current subscriber.
func (r *Relay) DeliverEvent(ev domain.InputEvent) {
	ids := make([]uint64, len(r.order))
	copy(ids, r.order)
	for _, id := range ids {
		if h, ok := r.handlers[id]; ok {
			h(ev)
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (r *Relay) Subscribers() int {
	return len(r.handlers)
}

var _ ports.InputSource = (*Relay)(nil)
