package runtime

import (
	"container/heap"
	"time"
)

// timerEntry is one scheduled callback in the reactor's timer heap.
type timerEntry struct {
	deadline time.Time
	period   time.Duration // zero for one-shot
	callback func()
	index    int  // heap.Interface bookkeeping
	canceled bool
}

// timerHeap is a min-heap ordered by deadline, the reactor's timer
// wheel: one-shot timers are popped and dropped once run, periodic
// timers are popped, run, and re-pushed one period after the time
// they ran.
type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}

func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// nextDeadline returns the earliest deadline in the heap, or the zero
// Time if empty. Canceled entries are skipped lazily when popped by
// Reactor.Run, not removed here.
func (h timerHeap) nextDeadline() (time.Time, bool) {
	if len(h) == 0 {
		return time.Time{}, false
	}
	return h[0].deadline, true
}

var _ = heap.Interface(&timerHeap{})
