package watch

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"

	"github.com/mattjoyce/irqd/internal/events"
)

const maxTracked = 50

// InterruptState tracks one interrupt seen on the notice stream.
type InterruptState struct {
	ID       string
	Kind     string
	Priority int
	Status   string
	Detail   string
	Duration time.Duration
	Seen     time.Time
}

type interruptJSON struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Priority int    `json:"priority"`
}

type resultJSON struct {
	Interrupt  interruptJSON `json:"interrupt"`
	Status     string        `json:"status"`
	Detail     string        `json:"detail"`
	Error      string        `json:"error"`
	DurationMS int64         `json:"duration_ms"`
}

// Tracker keeps the most recent interrupts, newest first.
type Tracker struct {
	byID  map[string]*InterruptState
	order []string
}

func NewTracker() *Tracker {
	return &Tracker{byID: make(map[string]*InterruptState)}
}

// Apply folds a notice into the tracked state. Unrelated notices are ignored.
func (t *Tracker) Apply(n events.Notice) {
	switch n.Type {
	case events.TypeEnqueued, events.TypeStarted:
		var ev interruptJSON
		if err := json.Unmarshal(n.Data, &ev); err != nil || ev.ID == "" {
			return
		}
		st := t.get(ev)
		if n.Type == events.TypeStarted {
			st.Status = "running"
		} else if st.Status == "" {
			st.Status = "queued"
		}

	case events.TypeCompleted, events.TypeFailed:
		var res resultJSON
		if err := json.Unmarshal(n.Data, &res); err != nil || res.Interrupt.ID == "" {
			return
		}
		st := t.get(res.Interrupt)
		st.Status = res.Status
		st.Detail = res.Detail
		if res.Error != "" {
			st.Detail = res.Error
		}
		st.Duration = time.Duration(res.DurationMS) * time.Millisecond
	}
}

func (t *Tracker) get(ev interruptJSON) *InterruptState {
	if st, ok := t.byID[ev.ID]; ok {
		return st
	}
	st := &InterruptState{ID: ev.ID, Kind: ev.Kind, Priority: ev.Priority, Seen: time.Now()}
	t.byID[ev.ID] = st
	t.order = append([]string{ev.ID}, t.order...)
	if len(t.order) > maxTracked {
		for _, id := range t.order[maxTracked:] {
			delete(t.byID, id)
		}
		t.order = t.order[:maxTracked]
	}
	return st
}

// Recent returns tracked interrupts, newest first.
func (t *Tracker) Recent() []*InterruptState {
	out := make([]*InterruptState, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.byID[id])
	}
	return out
}

func newInterruptTable() table.Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ID", Width: 8},
			{Title: "Kind", Width: 6},
			{Title: "Prio", Width: 4},
			{Title: "Status", Width: 10},
			{Title: "Took", Width: 8},
			{Title: "Detail", Width: 30},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.Bold(true)
	t.SetStyles(s)
	return t
}

// tableRows renders tracker state as table rows.
func tableRows(states []*InterruptState) []table.Row {
	rows := make([]table.Row, 0, len(states))
	for _, st := range states {
		id := st.ID
		if len(id) > 8 {
			id = id[:8]
		}
		took := ""
		if st.Duration > 0 {
			took = st.Duration.Round(time.Millisecond).String()
		}
		detail := st.Detail
		if len(detail) > 30 {
			detail = detail[:27] + "..."
		}
		rows = append(rows, table.Row{id, st.Kind, fmt.Sprintf("%d", st.Priority), st.Status, took, detail})
	}
	return rows
}
