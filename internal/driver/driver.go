// Package driver simulates an interrupt source: it enqueues a fixed number
// of random interrupts at random intervals.
package driver

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/mattjoyce/irqd/internal/config"
	"github.com/mattjoyce/irqd/internal/events"
	"github.com/mattjoyce/irqd/internal/interrupt"
)

//go:generate mockgen -destination=mocks/mock_enqueuer.go -package=mocks github.com/mattjoyce/irqd/internal/driver Enqueuer

// Enqueuer accepts interrupts. *queue.Queue satisfies it.
type Enqueuer interface {
	Enqueue(ev interrupt.Event)
}

// Driver produces simulated interrupts.
type Driver struct {
	cfg    config.DriverConfig
	queue  Enqueuer
	events *events.Hub
	logger *slog.Logger
	rng    *rand.Rand
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates a Driver. hub may be nil.
func New(cfg config.DriverConfig, q Enqueuer, hub *events.Hub, logger *slog.Logger) *Driver {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if len(cfg.Kinds) == 0 {
		cfg.Kinds = interrupt.Kinds()
	}
	return &Driver{
		cfg:    cfg,
		queue:  q,
		events: hub,
		logger: logger.With("component", "driver"),
		rng:    rand.New(rand.NewSource(seed)),
		sleep:  sleepCtx,
	}
}

// Run enqueues cfg.Count interrupts, pausing a random interval after each.
// It returns the number produced, and ctx.Err() if cancelled early.
func (d *Driver) Run(ctx context.Context) (int, error) {
	d.logger.Info("driver started", "count", d.cfg.Count)

	for i := 0; i < d.cfg.Count; i++ {
		if err := ctx.Err(); err != nil {
			d.logger.Warn("driver cancelled", "produced", i)
			return i, err
		}

		ev := d.next()
		d.queue.Enqueue(ev)
		d.logger.Debug("interrupt enqueued", "interrupt_id", ev.ID(), "kind", ev.Kind().String(), "priority", ev.Priority())
		if d.events != nil {
			d.events.Publish(events.TypeEnqueued, ev)
		}

		if err := d.sleep(ctx, d.interval()); err != nil {
			d.logger.Warn("driver cancelled", "produced", i+1)
			return i + 1, err
		}
	}

	d.logger.Info("driver finished", "produced", d.cfg.Count)
	return d.cfg.Count, nil
}

func (d *Driver) next() interrupt.Event {
	kind := d.cfg.Kinds[d.rng.Intn(len(d.cfg.Kinds))]
	priority := d.rng.Intn(d.cfg.MaxPriority + 1)
	return interrupt.New(kind, priority)
}

// interval returns a duration uniformly drawn from [MinInterval, MaxInterval].
func (d *Driver) interval() time.Duration {
	span := d.cfg.MaxInterval - d.cfg.MinInterval
	if span <= 0 {
		return d.cfg.MinInterval
	}
	return d.cfg.MinInterval + time.Duration(d.rng.Int63n(int64(span)+1))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
