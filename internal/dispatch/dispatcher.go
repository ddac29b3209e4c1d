package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattjoyce/irqd/internal/console"
	"github.com/mattjoyce/irqd/internal/events"
	"github.com/mattjoyce/irqd/internal/handler"
	"github.com/mattjoyce/irqd/internal/interrupt"
	"github.com/mattjoyce/irqd/internal/journal"
	"github.com/mattjoyce/irqd/internal/log"
	"github.com/mattjoyce/irqd/internal/observability"
	"github.com/mattjoyce/irqd/internal/queue"
)

const (
	// DefaultPollInterval bounds each wait for the next interrupt.
	DefaultPollInterval = 100 * time.Millisecond

	// journalTimeout bounds a single journal write.
	journalTimeout = 5 * time.Second
)

var (
	// ErrHandlerPanic wraps a panic recovered from a handler.
	ErrHandlerPanic = errors.New("handler panicked")

	ErrAlreadyRunning = errors.New("dispatcher already running")

	// ErrDraining is returned by Submit once Stop has been called.
	ErrDraining = errors.New("dispatcher is draining")
)

// Journal persists handled outcomes.
type Journal interface {
	Record(ctx context.Context, e journal.Entry) error
}

// Options configures optional collaborators. Zero values are valid.
type Options struct {
	PollInterval time.Duration
	Journal      Journal
	Hub          *events.Hub
	Metrics      observability.MetricsRecorder
	Spans        observability.SpanManager
	Console      *console.Printer
}

// Result describes one handled interrupt. It is published on the hub.
type Result struct {
	Interrupt  interrupt.Event `json:"interrupt"`
	Status     handler.Status  `json:"status"`
	Detail     string          `json:"detail,omitempty"`
	Error      string          `json:"error,omitempty"`
	DurationMS int64           `json:"duration_ms"`
}

// Dispatcher is the single consumer of the interrupt queue.
type Dispatcher struct {
	queue    *queue.Queue
	handlers *handler.Set

	pollInterval time.Duration
	journal      Journal
	hub          *events.Hub
	metrics      observability.MetricsRecorder
	spans        observability.SpanManager
	console      *console.Printer
	logger       *slog.Logger

	// intake orders Submit against Stop: an accepted interrupt is always
	// enqueued before the draining flag becomes visible to Run.
	intake   sync.RWMutex
	draining atomic.Bool
	started  atomic.Bool
	done     chan struct{}
}

// New creates a Dispatcher for q using handlers.
func New(q *queue.Queue, handlers *handler.Set, opts Options) *Dispatcher {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NoopMetrics{}
	}
	if opts.Spans == nil {
		opts.Spans = observability.NoopSpanManager{}
	}
	return &Dispatcher{
		queue:        q,
		handlers:     handlers,
		pollInterval: opts.PollInterval,
		journal:      opts.Journal,
		hub:          opts.Hub,
		metrics:      opts.Metrics,
		spans:        opts.Spans,
		console:      opts.Console,
		logger:       log.WithComponent("dispatch"),
		done:         make(chan struct{}),
	}
}

// Run is the consume loop. It returns nil once Stop has been called and the
// queue is empty, or ctx.Err() if ctx is cancelled first. Run may only be
// called once.
func (d *Dispatcher) Run(ctx context.Context) error {
	if !d.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(d.done)

	d.logger.Info("dispatch loop started", "poll_interval", d.pollInterval)
	defer d.logger.Info("dispatch loop stopped")

	for !d.Draining() || d.queue.Len() > 0 {
		if err := ctx.Err(); err != nil {
			d.logger.Warn("dispatch loop aborted", "pending", d.queue.Pending(), "error", err)
			return err
		}

		ev, ok := d.queue.TryPop(ctx, d.pollInterval)
		if !ok {
			continue
		}

		d.dispatch(ctx, ev)

		if err := d.queue.MarkDone(); err != nil {
			d.logger.Error("failed to mark interrupt done", "interrupt_id", ev.ID(), "error", err)
		}
	}

	d.publish(events.TypeStopped, nil)
	return nil
}

// Submit enqueues ev unless the dispatcher is draining. Producers that may
// outlive Stop must use Submit rather than enqueueing directly.
func (d *Dispatcher) Submit(ev interrupt.Event) error {
	d.intake.RLock()
	defer d.intake.RUnlock()

	if d.draining.Load() {
		return ErrDraining
	}
	d.queue.Enqueue(ev)
	return nil
}

// Stop moves the dispatcher into the draining phase. Safe to call repeatedly.
func (d *Dispatcher) Stop() {
	d.intake.Lock()
	first := d.draining.CompareAndSwap(false, true)
	d.intake.Unlock()

	if first {
		d.logger.Info("dispatcher draining", "pending", d.queue.Pending())
		d.publish(events.TypeDraining, map[string]int{"pending": d.queue.Pending()})
	}
}

// Draining reports whether Stop has been called.
func (d *Dispatcher) Draining() bool { return d.draining.Load() }

// Done is closed when Run returns.
func (d *Dispatcher) Done() <-chan struct{} { return d.done }

// Shutdown stops the dispatcher, waits for every enqueued interrupt to be
// handled, then waits for Run to return. ctx bounds the whole wait.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.Stop()

	if err := d.queue.DrainWait(ctx); err != nil {
		return fmt.Errorf("drain queue: %w", err)
	}
	if !d.started.Load() {
		return nil
	}

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for dispatch loop: %w", ctx.Err())
	}
}

// dispatch handles one interrupt and reports the outcome everywhere it goes.
func (d *Dispatcher) dispatch(ctx context.Context, ev interrupt.Event) {
	kind := ev.Kind().String()
	logger := log.WithInterrupt(ev.ID(), kind, ev.Priority())

	startedAt := time.Now()
	wait := startedAt.Sub(ev.CreatedAt())

	d.console.Banner(kind, ev.Priority())
	logger.Info("handling interrupt", "wait_ms", wait.Milliseconds())
	d.publish(events.TypeStarted, ev)

	spanCtx, span := d.spans.StartHandleSpan(ctx, ev)
	out, err := d.invoke(spanCtx, ev)
	d.spans.EndSpanWithError(span, err)

	completedAt := time.Now()
	duration := completedAt.Sub(startedAt)

	res := Result{
		Interrupt:  ev,
		Status:     out.Status,
		Detail:     out.Detail,
		DurationMS: duration.Milliseconds(),
	}
	if err != nil {
		res.Status = handler.StatusFailed
		res.Error = err.Error()
		logger.Error("interrupt handling failed", "error", err, "duration_ms", res.DurationMS)
		d.console.Error("Unexpected error while handling interrupt: %v", err)
		d.publish(events.TypeFailed, res)
	} else {
		logger.Info("interrupt handled", "status", res.Status, "duration_ms", res.DurationMS)
		d.publish(events.TypeCompleted, res)
	}
	d.console.Info("Interrupt processed: %s", kind)

	d.metrics.RecordInterrupt(ctx, kind, string(res.Status), wait, duration, err)
	d.record(ctx, res, startedAt, completedAt, logger)
}

// invoke runs the handler for ev. A panic is converted to ErrHandlerPanic.
func (d *Dispatcher) invoke(ctx context.Context, ev interrupt.Event) (out handler.Outcome, err error) {
	h, err := d.handlers.For(ev.Kind())
	if err != nil {
		return handler.Outcome{}, err
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Debug("recovered handler panic", "interrupt_id", ev.ID(), "stack", string(debug.Stack()))
			out = handler.Outcome{}
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return h.Handle(ctx, ev)
}

func (d *Dispatcher) record(ctx context.Context, res Result, startedAt, completedAt time.Time, logger *slog.Logger) {
	if d.journal == nil {
		return
	}

	// Outcomes are still recorded while aborting.
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	defer cancel()

	err := d.journal.Record(jctx, journal.Entry{
		ID:          res.Interrupt.ID(),
		Kind:        res.Interrupt.Kind().String(),
		Priority:    res.Interrupt.Priority(),
		Status:      string(res.Status),
		Detail:      res.Detail,
		Error:       res.Error,
		CreatedAt:   res.Interrupt.CreatedAt(),
		StartedAt:   startedAt,
		CompletedAt: completedAt,
	})
	if err != nil {
		logger.Error("failed to journal interrupt", "error", err)
	}
}

func (d *Dispatcher) publish(noticeType string, data any) {
	if d.hub != nil {
		d.hub.Publish(noticeType, data)
	}
}
