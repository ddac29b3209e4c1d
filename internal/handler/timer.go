package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/mattjoyce/irqd/internal/console"
	"github.com/mattjoyce/irqd/internal/interrupt"
)

// DefaultTimerDelay is the simulated work time of a timer interrupt.
const DefaultTimerDelay = 2 * time.Second

// Timer simulates work with a fixed blocking wait. The wait ignores ctx:
// an in-progress handler is never preempted.
type Timer struct {
	delay   time.Duration
	console *console.Printer
}

func NewTimer(delay time.Duration, out *console.Printer) *Timer {
	if delay <= 0 {
		delay = DefaultTimerDelay
	}
	return &Timer{delay: delay, console: out}
}

func (h *Timer) Handle(_ context.Context, _ interrupt.Event) (Outcome, error) {
	h.console.Info("Handling timer interrupt...")
	time.Sleep(h.delay)
	h.console.Success("Timer interrupt finished!")
	return Outcome{Status: StatusCompleted, Detail: fmt.Sprintf("waited %s", h.delay)}, nil
}
