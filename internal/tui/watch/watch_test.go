package watch

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/irqd/internal/events"
)

func notice(t *testing.T, typ string, data any) events.Notice {
	t.Helper()
	b, err := json.Marshal(data)
	require.NoError(t, err)
	return events.Notice{Type: typ, At: time.Now(), Data: b}
}

func TestTrackerFollowsLifecycle(t *testing.T) {
	tr := NewTracker()
	ev := map[string]any{"id": "abc123456789", "kind": "io", "priority": 2}

	tr.Apply(notice(t, events.TypeEnqueued, ev))
	require.Len(t, tr.Recent(), 1)
	assert.Equal(t, "queued", tr.Recent()[0].Status)

	tr.Apply(notice(t, events.TypeStarted, ev))
	assert.Equal(t, "running", tr.Recent()[0].Status)

	tr.Apply(notice(t, events.TypeCompleted, map[string]any{
		"interrupt":   ev,
		"status":      "timed_out",
		"detail":      "input discarded",
		"duration_ms": 5000,
	}))
	st := tr.Recent()[0]
	assert.Equal(t, "timed_out", st.Status)
	assert.Equal(t, "input discarded", st.Detail)
	assert.Equal(t, 5*time.Second, st.Duration)
	assert.Equal(t, "io", st.Kind)
	assert.Equal(t, 2, st.Priority)
}

func TestTrackerFailedShowsError(t *testing.T) {
	tr := NewTracker()
	tr.Apply(notice(t, events.TypeFailed, map[string]any{
		"interrupt": map[string]any{"id": "x1", "kind": "timer", "priority": 0},
		"status":    "failed",
		"error":     "handler panicked: boom",
	}))
	require.Len(t, tr.Recent(), 1)
	assert.Equal(t, "failed", tr.Recent()[0].Status)
	assert.Equal(t, "handler panicked: boom", tr.Recent()[0].Detail)
}

func TestTrackerIgnoresUnrelatedNotices(t *testing.T) {
	tr := NewTracker()
	tr.Apply(notice(t, events.TypeDraining, map[string]int{"pending": 3}))
	tr.Apply(events.Notice{Type: events.TypeStarted, Data: json.RawMessage("not json")})
	assert.Empty(t, tr.Recent())
}

func TestTrackerBounded(t *testing.T) {
	tr := NewTracker()
	for i := range maxTracked + 10 {
		tr.Apply(notice(t, events.TypeEnqueued, map[string]any{"id": strings.Repeat("a", i+1), "kind": "timer", "priority": i}))
	}
	recent := tr.Recent()
	require.Len(t, recent, maxTracked)
	assert.Equal(t, maxTracked+9, recent[0].Priority)
	assert.Len(t, tr.byID, maxTracked)
}

func TestTableRows(t *testing.T) {
	rows := tableRows([]*InterruptState{{
		ID:       "0123456789abcdef",
		Kind:     "fault",
		Priority: 7,
		Status:   "recovered",
		Detail:   strings.Repeat("d", 40),
		Duration: 1500 * time.Microsecond,
	}})
	require.Len(t, rows, 1)
	assert.Equal(t, "01234567", rows[0][0])
	assert.Equal(t, "7", rows[0][2])
	assert.Equal(t, "2ms", rows[0][4])
	assert.Len(t, rows[0][5], 30)
}

func TestReadSSE(t *testing.T) {
	stream := "id: 4\nevent: interrupt.started\ndata: {\"id\":\"a\"}\n\n" +
		": keep-alive\n\n" +
		"id: 5\nevent: dispatcher.stopped\ndata: {}\n\n"

	ch := make(chan events.Notice, 4)
	readSSE(bufio.NewScanner(strings.NewReader(stream)), ch)
	close(ch)

	var got []events.Notice
	for n := range ch {
		got = append(got, n)
	}
	require.Len(t, got, 2)
	assert.Equal(t, int64(4), got[0].ID)
	assert.Equal(t, events.TypeStarted, got[0].Type)
	assert.JSONEq(t, `{"id":"a"}`, string(got[0].Data))
	assert.Equal(t, events.TypeStopped, got[1].Type)
}

func TestFetchHealth(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/healthz", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"draining","uptime_seconds":61,"queue_depth":2,"pending":3,"draining":true}`))
	}))
	defer ts.Close()

	msg := fetchHealth(ts.URL)
	h, ok := msg.(healthMsg)
	require.True(t, ok, "got %T", msg)
	assert.Equal(t, 2, h.QueueDepth)
	assert.Equal(t, 3, h.Pending)
	assert.True(t, h.Draining)
}

func TestFetchHealthUnreachable(t *testing.T) {
	_, ok := fetchHealth("http://127.0.0.1:1").(errMsg)
	assert.True(t, ok)
}

func TestModelUpdateAndView(t *testing.T) {
	m := New("http://example.invalid", "key")

	var model tea.Model = *m
	model, _ = model.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	model, cmd := model.Update(noticeMsg(notice(t, events.TypeStarted, map[string]any{"id": "feedbeef", "kind": "timer", "priority": 1})))
	assert.NotNil(t, cmd)
	model, _ = model.Update(healthMsg{Status: "ok", QueueDepth: 4})

	view := model.View()
	assert.Contains(t, view, "IRQD WATCH")
	assert.Contains(t, view, "feedbeef")
	assert.Contains(t, view, "Waiting: 4")

	model, _ = model.Update(sseDisconnectedMsg{})
	assert.Contains(t, model.View(), "reconnecting")

	_, cmd = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestViewBeforeResize(t *testing.T) {
	assert.Equal(t, "Connecting to irqd...", New("u", "k").View())
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "42s", formatDuration(42*time.Second))
	assert.Equal(t, "2m 5s", formatDuration(125*time.Second))
	assert.Equal(t, "1h 1m", formatDuration(61*time.Minute))
}
