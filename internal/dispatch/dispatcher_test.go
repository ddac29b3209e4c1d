package dispatch

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/irqd/internal/console"
	"github.com/mattjoyce/irqd/internal/events"
	"github.com/mattjoyce/irqd/internal/handler"
	"github.com/mattjoyce/irqd/internal/handler/mocks"
	"github.com/mattjoyce/irqd/internal/interrupt"
	"github.com/mattjoyce/irqd/internal/journal"
	"github.com/mattjoyce/irqd/internal/log"
	"github.com/mattjoyce/irqd/internal/queue"
	"github.com/mattjoyce/irqd/internal/storage"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR", "json") // Suppress logs in tests
	os.Exit(m.Run())
}

// recorder is a handler that remembers the order it saw interrupts in.
type recorder struct {
	mu   sync.Mutex
	seen []interrupt.Event
	fn   func(interrupt.Event) (handler.Outcome, error)
}

func (r *recorder) Handle(_ context.Context, ev interrupt.Event) (handler.Outcome, error) {
	r.mu.Lock()
	r.seen = append(r.seen, ev)
	r.mu.Unlock()
	if r.fn != nil {
		return r.fn(ev)
	}
	return handler.Outcome{Status: handler.StatusCompleted}, nil
}

func (r *recorder) events() []interrupt.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]interrupt.Event(nil), r.seen...)
}

// fakeJournal collects entries in memory.
type fakeJournal struct {
	mu      sync.Mutex
	entries []journal.Entry
	err     error
}

func (f *fakeJournal) Record(_ context.Context, e journal.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return f.err
}

func (f *fakeJournal) statuses() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.entries))
	for _, e := range f.entries {
		out[e.ID] = e.Status
	}
	return out
}

func mustSet(t *testing.T, timer, io, fault handler.Handler) *handler.Set {
	t.Helper()
	s, err := handler.NewSet(timer, io, fault)
	require.NoError(t, err)
	return s
}

func sharedSet(t *testing.T, h handler.Handler) *handler.Set {
	return mustSet(t, h, h, h)
}

func newTestDispatcher(q *queue.Queue, set *handler.Set, opts Options) *Dispatcher {
	if opts.PollInterval == 0 {
		opts.PollInterval = 10 * time.Millisecond
	}
	return New(q, set, opts)
}

// runAsync starts Run and returns a channel carrying its result.
func runAsync(ctx context.Context, d *Dispatcher) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()
	return errCh
}

func waitRun(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func TestDispatcher_HandlesScenarioInPriorityOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	timer := mocks.NewMockHandler(ctrl)
	ioH := mocks.NewMockHandler(ctrl)
	fault := mocks.NewMockHandler(ctrl)

	gomock.InOrder(
		ioH.EXPECT().Handle(gomock.Any(), gomock.Any()).Return(handler.Outcome{Status: handler.StatusCompleted}, nil),
		fault.EXPECT().Handle(gomock.Any(), gomock.Any()).Return(handler.Outcome{Status: handler.StatusRecovered}, nil),
		timer.EXPECT().Handle(gomock.Any(), gomock.Any()).Return(handler.Outcome{Status: handler.StatusCompleted}, nil),
	)

	q := queue.New()
	q.Enqueue(interrupt.New(interrupt.KindTimer, 5))
	q.Enqueue(interrupt.New(interrupt.KindIO, 1))
	q.Enqueue(interrupt.New(interrupt.KindFault, 3))

	d := newTestDispatcher(q, mustSet(t, timer, ioH, fault), Options{})
	d.Stop()
	require.NoError(t, d.Run(context.Background()))
	assert.Equal(t, 0, q.Pending())
}

func TestDispatcher_DistinctPrioritiesPopInIncreasingOrder(t *testing.T) {
	rec := &recorder{}
	q := queue.New()

	priorities := []int{17, 3, 9, 0, 22, 5, 11, 1, 8, 14}
	var wg sync.WaitGroup
	for i, p := range priorities {
		wg.Add(1)
		go func(i, p int) {
			defer wg.Done()
			q.Enqueue(interrupt.New(interrupt.Kinds()[i%interrupt.NumKinds], p))
		}(i, p)
	}
	wg.Wait()

	d := newTestDispatcher(q, sharedSet(t, rec), Options{})
	d.Stop()
	require.NoError(t, d.Run(context.Background()))

	got := rec.events()
	require.Len(t, got, len(priorities))
	for i := 1; i < len(got); i++ {
		assert.Less(t, got[i-1].Priority(), got[i].Priority())
	}
}

func TestDispatcher_EqualPrioritiesHandledOnceInFIFOOrder(t *testing.T) {
	rec := &recorder{}
	q := queue.New()
	first := interrupt.New(interrupt.KindTimer, 4)
	second := interrupt.New(interrupt.KindFault, 4)
	q.Enqueue(first)
	q.Enqueue(second)

	d := newTestDispatcher(q, sharedSet(t, rec), Options{})
	d.Stop()
	require.NoError(t, d.Run(context.Background()))

	got := rec.events()
	require.Len(t, got, 2)
	assert.Equal(t, first.ID(), got[0].ID())
	assert.Equal(t, second.ID(), got[1].ID())
}

func TestDispatcher_FailureIsolation(t *testing.T) {
	rec := &recorder{fn: func(ev interrupt.Event) (handler.Outcome, error) {
		switch ev.Priority() {
		case 1:
			return handler.Outcome{}, errors.New("device on fire")
		case 2:
			panic("nil dereference in handler")
		}
		return handler.Outcome{Status: handler.StatusCompleted, Detail: "ok"}, nil
	}}
	jr := &fakeJournal{}
	q := queue.New()

	failing := interrupt.New(interrupt.KindIO, 1)
	panicking := interrupt.New(interrupt.KindTimer, 2)
	later := interrupt.New(interrupt.KindFault, 3)
	last := interrupt.New(interrupt.KindTimer, 4)
	for _, ev := range []interrupt.Event{last, later, panicking, failing} {
		q.Enqueue(ev)
	}

	d := newTestDispatcher(q, sharedSet(t, rec), Options{Journal: jr})
	d.Stop()
	require.NoError(t, d.Run(context.Background()))

	assert.Len(t, rec.events(), 4)
	assert.Equal(t, 0, q.Pending())

	statuses := jr.statuses()
	assert.Equal(t, "failed", statuses[failing.ID()])
	assert.Equal(t, "failed", statuses[panicking.ID()])
	assert.Equal(t, "completed", statuses[later.ID()])
	assert.Equal(t, "completed", statuses[last.ID()])
}

func TestDispatcher_PanicBecomesErrHandlerPanic(t *testing.T) {
	h := handler.HandlerFunc(func(context.Context, interrupt.Event) (handler.Outcome, error) {
		panic("boom")
	})
	d := newTestDispatcher(queue.New(), sharedSet(t, h), Options{})

	_, err := d.invoke(context.Background(), interrupt.New(interrupt.KindTimer, 0))
	assert.ErrorIs(t, err, ErrHandlerPanic)
	assert.Contains(t, err.Error(), "boom")
}

func TestDispatcher_UnknownKindFailsWithoutStopping(t *testing.T) {
	rec := &recorder{}
	jr := &fakeJournal{}
	q := queue.New()
	bogus := interrupt.New(interrupt.Kind(99), 0)
	good := interrupt.New(interrupt.KindTimer, 1)
	q.Enqueue(bogus)
	q.Enqueue(good)

	d := newTestDispatcher(q, sharedSet(t, rec), Options{Journal: jr})
	d.Stop()
	require.NoError(t, d.Run(context.Background()))

	require.Len(t, rec.events(), 1)
	assert.Equal(t, good.ID(), rec.events()[0].ID())
	assert.Equal(t, "failed", jr.statuses()[bogus.ID()])
}

func TestDispatcher_ShutdownWithNoEventsReturnsImmediately(t *testing.T) {
	q := queue.New()
	d := newTestDispatcher(q, sharedSet(t, &recorder{}), Options{})
	errCh := runAsync(context.Background(), d)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	start := time.Now()
	require.NoError(t, d.Shutdown(ctx))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.NoError(t, waitRun(t, errCh))
	assert.True(t, d.Draining())
}

func TestDispatcher_ShutdownDrainsInFlightWork(t *testing.T) {
	q := queue.New()
	timer := handler.NewTimer(30*time.Millisecond, console.Discard())
	rec := &recorder{fn: func(ev interrupt.Event) (handler.Outcome, error) {
		return timer.Handle(context.Background(), ev)
	}}
	d := newTestDispatcher(q, sharedSet(t, rec), Options{})
	errCh := runAsync(context.Background(), d)

	for i := 0; i < 3; i++ {
		q.Enqueue(interrupt.New(interrupt.KindTimer, i))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(ctx))

	assert.Len(t, rec.events(), 3)
	assert.Equal(t, 0, q.Pending())
	assert.NoError(t, waitRun(t, errCh))
}

func TestDispatcher_SubmitAfterStopIsRejected(t *testing.T) {
	q := queue.New()
	rec := &recorder{}
	d := newTestDispatcher(q, sharedSet(t, rec), Options{})
	errCh := runAsync(context.Background(), d)

	require.False(t, d.Draining())
	d.Stop()
	require.NoError(t, waitRun(t, errCh))

	err := d.Submit(interrupt.New(interrupt.KindTimer, 1))
	assert.ErrorIs(t, err, ErrDraining)
	assert.Equal(t, 0, q.Pending())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	assert.NoError(t, d.Shutdown(ctx))
	assert.Empty(t, rec.events())
}

func TestDispatcher_SubmitRacingShutdownHandlesEveryAcceptedInterrupt(t *testing.T) {
	const (
		producers   = 8
		perProducer = 200
	)

	q := queue.New()
	rec := &recorder{}
	d := newTestDispatcher(q, sharedSet(t, rec), Options{PollInterval: time.Millisecond})
	errCh := runAsync(context.Background(), d)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted = map[string]bool{}
		first    = make(chan struct{})
		once     sync.Once
	)
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				ev := interrupt.New(interrupt.KindTimer, (p+i)%5)
				if err := d.Submit(ev); err != nil {
					assert.ErrorIs(t, err, ErrDraining)
					return
				}
				mu.Lock()
				accepted[ev.ID()] = true
				mu.Unlock()
				once.Do(func() { close(first) })
			}
		}(p)
	}

	<-first
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(ctx))
	wg.Wait()
	require.NoError(t, waitRun(t, errCh))

	handled := rec.events()
	assert.Len(t, handled, len(accepted))
	for _, ev := range handled {
		assert.True(t, accepted[ev.ID()], "handled an interrupt that was never accepted")
	}
	assert.Equal(t, 0, q.Pending())
	assert.ErrorIs(t, d.Submit(interrupt.New(interrupt.KindIO, 0)), ErrDraining)
}

func TestDispatcher_ShutdownRespectsContext(t *testing.T) {
	q := queue.New()
	q.Enqueue(interrupt.New(interrupt.KindTimer, 0))
	d := newTestDispatcher(q, sharedSet(t, &recorder{}), Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := d.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDispatcher_AbortReturnsContextError(t *testing.T) {
	q := queue.New()
	d := newTestDispatcher(q, sharedSet(t, &recorder{}), Options{})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := runAsync(ctx, d)
	time.Sleep(30 * time.Millisecond)
	cancel()

	assert.ErrorIs(t, waitRun(t, errCh), context.Canceled)
	select {
	case <-d.Done():
	default:
		t.Fatal("Done not closed after Run returned")
	}
}

func TestDispatcher_RunTwice(t *testing.T) {
	d := newTestDispatcher(queue.New(), sharedSet(t, &recorder{}), Options{})
	d.Stop()
	require.NoError(t, d.Run(context.Background()))
	assert.ErrorIs(t, d.Run(context.Background()), ErrAlreadyRunning)
}

func TestDispatcher_IOTimeoutDoesNotStallLoop(t *testing.T) {
	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })

	const ioTimeout = 50 * time.Millisecond
	jr := &fakeJournal{}
	set := mustSet(t,
		handler.NewTimer(time.Millisecond, console.Discard()),
		handler.NewIO(pr, ioTimeout, console.Discard()),
		handler.NewFault(console.Discard()),
	)

	q := queue.New()
	ioEv := interrupt.New(interrupt.KindIO, 1)
	faultEv := interrupt.New(interrupt.KindFault, 2)
	q.Enqueue(ioEv)
	q.Enqueue(faultEv)

	d := newTestDispatcher(q, set, Options{Journal: jr})
	d.Stop()

	start := time.Now()
	require.NoError(t, d.Run(context.Background()))
	assert.Less(t, time.Since(start), 2*time.Second)

	statuses := jr.statuses()
	assert.Equal(t, "timed_out", statuses[ioEv.ID()])
	assert.Equal(t, "recovered", statuses[faultEv.ID()])
}

func TestDispatcher_PublishesNotices(t *testing.T) {
	hub := events.NewHub(32)
	q := queue.New()
	failing := handler.HandlerFunc(func(context.Context, interrupt.Event) (handler.Outcome, error) {
		return handler.Outcome{}, errors.New("nope")
	})
	set := mustSet(t, &recorder{}, &recorder{}, failing)
	q.Enqueue(interrupt.New(interrupt.KindTimer, 0))
	q.Enqueue(interrupt.New(interrupt.KindFault, 1))

	d := newTestDispatcher(q, set, Options{Hub: hub})
	d.Stop()
	require.NoError(t, d.Run(context.Background()))

	var types []string
	for _, n := range hub.Since(0) {
		types = append(types, n.Type)
	}
	assert.Equal(t, []string{
		events.TypeDraining,
		events.TypeStarted, events.TypeCompleted,
		events.TypeStarted, events.TypeFailed,
		events.TypeStopped,
	}, types)
}

func TestDispatcher_JournalFailureDoesNotStopDispatch(t *testing.T) {
	rec := &recorder{}
	jr := &fakeJournal{err: errors.New("disk full")}
	q := queue.New()
	q.Enqueue(interrupt.New(interrupt.KindTimer, 0))
	q.Enqueue(interrupt.New(interrupt.KindTimer, 1))

	d := newTestDispatcher(q, sharedSet(t, rec), Options{Journal: jr})
	d.Stop()
	require.NoError(t, d.Run(context.Background()))
	assert.Len(t, rec.events(), 2)
}

func TestDispatcher_WritesSQLiteJournal(t *testing.T) {
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store := journal.New(db)

	set := mustSet(t,
		handler.NewTimer(time.Millisecond, console.Discard()),
		&recorder{},
		handler.NewFault(console.Discard()),
	)
	q := queue.New()
	q.Enqueue(interrupt.New(interrupt.KindTimer, 2))
	q.Enqueue(interrupt.New(interrupt.KindFault, 1))

	d := newTestDispatcher(q, set, Options{Journal: store})
	d.Stop()
	require.NoError(t, d.Run(context.Background()))

	sum, err := store.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"completed": 1, "recovered": 1}, sum)

	recent, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "timer", recent[0].Kind)
	assert.False(t, recent[0].StartedAt.Before(recent[0].CreatedAt))
}
