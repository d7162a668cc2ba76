package eventloop

import (
	"container/heap"
	"time"

	"github.com/karenlarocque/feature-forgetting/internal/core/ports"
)

// Virtual is a Scheduler driven by a manual clock.
type Virtual struct {
	now     time.Time
	seq     uint64
	pending timerHeap
}

// NewVirtual creates a virtual scheduler whose clock starts at start.
func NewVirtual(start time.Time) *Virtual {
	return &Virtual{now: start}
}

// Now returns the virtual time.
func (v *Virtual) Now() time.Time {
	return v.now
}

// AfterFunc schedules fn at Now()+d. Negative delays are treated as zero.
func (v *Virtual) AfterFunc(d time.Duration, fn func()) ports.Timer {
	if d < 0 {
		d = 0
	}
	v.seq++
	t := &virtualTimer{owner: v, due: v.now.Add(d), seq: v.seq, fn: fn, index: -1}
	heap.Push(&v.pending, t)
	return t
}

// Post schedules fn at the current virtual time.
func (v *Virtual) Post(fn func()) {
	v.AfterFunc(0, fn)
}

// Advance moves the clock forward by d, running every callback that becomes
// due in (due time, scheduling order). Callbacks scheduled while advancing
// run too if they fall inside the window.
func (v *Virtual) Advance(d time.Duration) {
	target := v.now.Add(d)
	for len(v.pending) > 0 {
		next := v.pending[0]
		if next.due.After(target) {
			break
		}
		heap.Pop(&v.pending)
		if next.due.After(v.now) {
			v.now = next.due
		}
		next.fired = true
		next.fn()
	}
	v.now = target
}

// Flush runs callbacks due at the current time.
func (v *Virtual) Flush() {
	v.Advance(0)
}

// RunUntilIdle keeps advancing to the next due callback until none remain or
// limit callbacks have run. It returns the number of callbacks run.
func (v *Virtual) RunUntilIdle(limit int) int {
	ran := 0
	for len(v.pending) > 0 && ran < limit {
		next := v.pending[0]
		heap.Pop(&v.pending)
		if next.due.After(v.now) {
			v.now = next.due
		}
		next.fired = true
		next.fn()
		ran++
	}
	return ran
}

// Pending returns the number of scheduled callbacks.
func (v *Virtual) Pending() int {
	return len(v.pending)
}

type virtualTimer struct {
	owner *Virtual
	due   time.Time
	seq   uint64
	fn    func()
	index int
	fired bool
}

func (t *virtualTimer) Stop() bool {
	if t.fired || t.index < 0 {
		return false
	}
	heap.Remove(&t.owner.pending, t.index)
	return true
}

type timerHeap []*virtualTimer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].due.Equal(h[j].due) {
		return h[i].seq < h[j].seq
	}
	return h[i].due.Before(h[j].due)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*virtualTimer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

var _ ports.Scheduler = (*Virtual)(nil)
