package queue_test

import (
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/karenlarocque/feature-forgetting/internal/core/domain"
	"github.com/karenlarocque/feature-forgetting/internal/queue"
)

func numbers(ns ...int) []domain.Descriptor {
	out := make([]domain.Descriptor, len(ns))
	for i, n := range ns {
		out[i] = domain.NumberTrial(n)
	}
	return out
}

func TestPopFrontOrder(t *testing.T) {
	q := queue.New(numbers(3, 5, 2, 4))
	gt.Equal(t, q.Remaining(), 4)

	var got []int
	for {
		d, ok := q.PopFront()
		if !ok {
			break
		}
		got = append(got, d.Number)
	}

	gt.Equal(t, got, []int{3, 5, 2, 4})
	gt.Equal(t, q.Remaining(), 0)
	gt.Equal(t, q.Len(), 4)
}

func TestPopEmptyIsNotAnError(t *testing.T) {
	q := queue.New(nil)
	for i := 0; i < 3; i++ {
		d, ok := q.PopFront()
		gt.False(t, ok)
		gt.Equal(t, d, domain.Descriptor{})
	}
}

func TestOriginalIsPreserved(t *testing.T) {
	input := numbers(1, 2, 3)
	q := queue.New(input)

	// mutating the caller's slice does not leak into the queue
	input[0] = domain.NumberTrial(99)

	q.PopFront()
	q.PopFront()

	orig := q.Original()
	gt.Equal(t, len(orig), 3)
	gt.Equal(t, orig[0].Number, 1)
	gt.Equal(t, orig[2].Number, 3)

	// the returned copy cannot alter the queue either
	orig[1] = domain.NumberTrial(42)
	gt.Equal(t, q.Original()[1].Number, 2)

	d, ok := q.PopFront()
	gt.True(t, ok)
	gt.Equal(t, d.Number, 3)
}
