// Package queue holds the ordered trial descriptors of a session.
package queue

import "github.com/karenlarocque/feature-forgetting/internal/core/domain"

// Queue is a FIFO of trial descriptors. An empty queue is the termination
// signal of a session, not an error.
type Queue struct {
	original []domain.Descriptor
	pending  []domain.Descriptor
}

// New creates a queue holding descriptors in order. The slice is copied.
func New(descriptors []domain.Descriptor) *Queue {
	original := make([]domain.Descriptor, len(descriptors))
	copy(original, descriptors)

	pending := make([]domain.Descriptor, len(descriptors))
	copy(pending, descriptors)

	return &Queue{original: original, pending: pending}
}

// PopFront removes and returns the next descriptor. ok is false when the
// queue is exhausted.
func (q *Queue) PopFront() (d domain.Descriptor, ok bool) {
	if len(q.pending) == 0 {
		return domain.Descriptor{}, false
	}
	d = q.pending[0]
	q.pending[0] = domain.Descriptor{}
	q.pending = q.pending[1:]
	return d, true
}

// Remaining returns the number of descriptors not yet popped.
func (q *Queue) Remaining() int {
	return len(q.pending)
}

// Len returns the number of descriptors the queue was created with.
func (q *Queue) Len() int {
	return len(q.original)
}

// Original returns a copy of the initial ordering.
func (q *Queue) Original() []domain.Descriptor {
	out := make([]domain.Descriptor, len(q.original))
	copy(out, q.original)
	return out
}
