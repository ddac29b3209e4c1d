// Package dispatch drains the interrupt queue and routes each interrupt to
// its handler.
//
// A single Dispatcher goroutine pops interrupts strictly in priority order
// (lower value first, FIFO among equals) and runs one handler at a time.
//
// Lifecycle:
//   - Running: Run polls the queue with a bounded wait (PollInterval) so the
//     loop notices Stop without blocking indefinitely.
//   - Draining: after Stop, Run keeps handling until the queue is empty and
//     then returns nil. Shutdown combines Stop, queue.DrainWait and waiting
//     for Run to return.
//   - Abort: cancelling the ctx given to Run returns ctx.Err() once the
//     current handler finishes. Handlers are never preempted.
//
// Failure isolation:
//   - Every popped interrupt is marked done exactly once, whatever happens.
//   - A handler error or panic marks that interrupt failed, is logged, and
//     the loop continues with the next interrupt.
//   - Expected conditions (IO timeout, recovered arithmetic fault) arrive as
//     handler outcomes, not errors.
//
// Each interrupt also produces a console banner, hub notices, an OTel span
// and metrics, and a journal row when a journal is configured.
package dispatch
