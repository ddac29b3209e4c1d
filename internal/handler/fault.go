package handler

import (
	"context"
	"fmt"
	"runtime"

	"github.com/mattjoyce/irqd/internal/console"
	"github.com/mattjoyce/irqd/internal/interrupt"
)

// ArithmeticFault is a recovered runtime arithmetic panic.
type ArithmeticFault struct {
	Op  string
	Err runtime.Error
}

func (e *ArithmeticFault) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *ArithmeticFault) Unwrap() error { return e.Err }

// Fault simulates an error interrupt by dividing by zero and recovering
// from the resulting runtime panic locally.
type Fault struct {
	dividend int
	divisor  int
	console  *console.Printer
}

func NewFault(out *console.Printer) *Fault {
	return &Fault{dividend: 9, divisor: 0, console: out}
}

func (h *Fault) Handle(_ context.Context, _ interrupt.Event) (Outcome, error) {
	h.console.Info("Simulating fault interrupt...")
	defer h.console.Info("Fault handler finished.")

	q, err := divide(h.dividend, h.divisor)
	if err != nil {
		h.console.Warn("Arithmetic fault handled!")
		h.console.Info(" - details: %v", err)
		return Outcome{Status: StatusRecovered, Detail: err.Error()}, nil
	}
	detail := fmt.Sprintf("%d / %d = %d", h.dividend, h.divisor, q)
	h.console.Info("Division: %s", detail)
	return Outcome{Status: StatusCompleted, Detail: detail}, nil
}

// divide converts an integer divide-by-zero panic into an error. Panics
// that are not runtime errors are re-raised.
func divide(a, b int) (q int, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		re, ok := r.(runtime.Error)
		if !ok {
			panic(r)
		}
		err = &ArithmeticFault{Op: fmt.Sprintf("divide %d by %d", a, b), Err: re}
	}()
	return a / b, nil
}
