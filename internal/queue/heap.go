package queue

import "github.com/mattjoyce/irqd/internal/interrupt"

// item wraps an event with its enqueue sequence so equal priorities pop FIFO.
type item struct {
	ev  interrupt.Event
	seq uint64
}

// eventHeap implements heap.Interface, smallest priority first.
type eventHeap []item

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].ev.Priority() != h[j].ev.Priority() {
		return h[i].ev.Before(h[j].ev)
	}
	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) { *h = append(*h, x.(item)) }

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = item{}
	*h = old[:n-1]
	return it
}
