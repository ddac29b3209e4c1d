// Package events fans dispatcher notices out to in-process subscribers such
// as the SSE endpoint.
package events

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Notice types published by the dispatcher and producers.
const (
	TypeEnqueued  = "interrupt.enqueued"
	TypeStarted   = "interrupt.started"
	TypeCompleted = "interrupt.completed"
	TypeFailed    = "interrupt.failed"
	TypeDraining  = "dispatcher.draining"
	TypeStopped   = "dispatcher.stopped"
)

// Notice is one published message. Data is a single-line JSON document.
type Notice struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

// Hub is an in-memory pub/sub that keeps the last notices in a ring so
// late subscribers can catch up.
type Hub struct {
	nextID atomic.Int64

	mu     sync.Mutex
	ring   []Notice
	head   int
	filled int

	subs      map[int]chan Notice
	nextSubID int
}

func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 128
	}
	return &Hub{
		ring: make([]Notice, capacity),
		subs: make(map[int]chan Notice),
	}
}

// Publish records a notice and offers it to every subscriber. Subscribers
// whose buffers are full miss the notice; publishing never blocks.
func (h *Hub) Publish(noticeType string, data any) Notice {
	payload := json.RawMessage("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	n := Notice{
		ID:   h.nextID.Add(1),
		Type: noticeType,
		At:   time.Now().UTC(),
		Data: payload,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.ring[(h.head+h.filled)%len(h.ring)] = n
	if h.filled < len(h.ring) {
		h.filled++
	} else {
		h.head = (h.head + 1) % len(h.ring)
	}

	for _, ch := range h.subs {
		select {
		case ch <- n:
		default:
		}
	}
	return n
}

// Subscribe returns a notice channel and a cancel func that closes it.
func (h *Hub) Subscribe() (<-chan Notice, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSubID
	h.nextSubID++
	ch := make(chan Notice, 128)
	h.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			close(ch)
			h.mu.Unlock()
		})
	}
	return ch, cancel
}

// Since returns buffered notices with ID > lastID, oldest first.
func (h *Hub) Since(lastID int64) []Notice {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Notice, 0, h.filled)
	for i := 0; i < h.filled; i++ {
		n := h.ring[(h.head+i)%len(h.ring)]
		if n.ID > lastID {
			out = append(out, n)
		}
	}
	return out
}
