// Package rng provides the random source used for condition assignment and
// trial ordering. A source derived from a participant identifier always
// produces the same sequence, so a participant who reloads the experiment is
// assigned the same condition and trial order.
package rng

import (
	"hash/fnv"
	"math/rand/v2"
)

// Source samples uniform integers and sequence elements.
type Source struct {
	r *rand.Rand
}

// New returns a deterministic source for seed.
func New(seed uint64) *Source {
	return &Source{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NewRandom returns a source seeded from the runtime's entropy.
func NewRandom() *Source {
	return &Source{r: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// ForParticipant returns a source whose seed is derived from id. An empty id
// yields an entropy-seeded source.
func ForParticipant(id string) *Source {
	if id == "" {
		return NewRandom()
	}
	h := fnv.New64a()
	h.Write([]byte(id))
	return New(h.Sum64())
}

// Intn returns an integer in [0, n). It returns 0 when n <= 0.
func (s *Source) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return s.r.IntN(n)
}

// Between returns an integer in [a, b], inclusive on both ends.
func (s *Source) Between(a, b int) int {
	if a > b {
		a, b = b, a
	}
	return a + s.r.IntN(b-a+1)
}

// Bool returns true or false with equal probability.
func (s *Source) Bool() bool {
	return s.r.IntN(2) == 1
}

// Choice returns a uniformly selected element of items, or the zero value
// when items is empty.
func Choice[T any](s *Source, items []T) T {
	var zero T
	if len(items) == 0 {
		return zero
	}
	return items[s.Intn(len(items))]
}

// Shuffle permutes items in place (Fisher-Yates).
func Shuffle[T any](s *Source, items []T) {
	for i := len(items) - 1; i > 0; i-- {
		j := s.Intn(i + 1)
		items[i], items[j] = items[j], items[i]
	}
}
