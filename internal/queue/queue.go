package queue

import (
	"container/heap"
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/mattjoyce/irqd/internal/interrupt"
)

// ErrNothingPending is returned by MarkDone when no popped event is awaiting completion.
var ErrNothingPending = errors.New("no pending interrupts to mark done")

// Queue is a thread-safe priority queue with join semantics.
//
// pending counts events from Enqueue until their MarkDone, so it covers both
// waiting events and the one currently being handled.
type Queue struct {
	mu      sync.Mutex
	items   eventHeap
	seq     uint64
	pending int

	// ready is closed and replaced on every Enqueue to wake TryPop callers.
	ready chan struct{}
	// idle is closed whenever pending == 0.
	idle chan struct{}
}

func New() *Queue {
	idle := make(chan struct{})
	close(idle)
	return &Queue{
		ready: make(chan struct{}),
		idle:  idle,
	}
}

// Enqueue inserts ev. It never blocks.
func (q *Queue) Enqueue(ev interrupt.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	heap.Push(&q.items, item{ev: ev, seq: q.seq})

	if q.pending == 0 {
		q.idle = make(chan struct{})
	}
	q.pending++

	close(q.ready)
	q.ready = make(chan struct{})
}

// TryPop waits up to timeout for the lowest-priority-value event. The
// boolean is false when nothing arrived in time or ctx was cancelled.
func (q *Queue) TryPop(ctx context.Context, timeout time.Duration) (interrupt.Event, bool) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		q.mu.Lock()
		if q.items.Len() > 0 {
			it := heap.Pop(&q.items).(item)
			q.mu.Unlock()
			return it.ev, true
		}
		ready := q.ready
		q.mu.Unlock()

		if expired == nil {
			return interrupt.Event{}, false
		}

		select {
		case <-ready:
		case <-expired:
			return interrupt.Event{}, false
		case <-ctx.Done():
			return interrupt.Event{}, false
		}
	}
}

// MarkDone records that one popped event finished handling, successfully or not.
func (q *Queue) MarkDone() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.pending == 0 {
		return ErrNothingPending
	}
	q.pending--
	if q.pending == 0 {
		close(q.idle)
	}
	return nil
}

// DrainWait blocks until every enqueued event has been marked done.
// It returns immediately when nothing is pending.
func (q *Queue) DrainWait(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of events waiting to be popped.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Pending returns the number of events enqueued but not yet marked done.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

// Snapshot returns the waiting events in the order they will be popped.
func (q *Queue) Snapshot() []interrupt.Event {
	q.mu.Lock()
	items := make(eventHeap, len(q.items))
	copy(items, q.items)
	q.mu.Unlock()

	sort.Sort(items)
	out := make([]interrupt.Event, len(items))
	for i, it := range items {
		out[i] = it.ev
	}
	return out
}
