package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/muesli/cancelreader"

	"github.com/mattjoyce/irqd/internal/console"
	"github.com/mattjoyce/irqd/internal/interrupt"
	"github.com/mattjoyce/irqd/internal/log"
)

const (
	// DefaultIOTimeout bounds how long an IO interrupt waits for input.
	DefaultIOTimeout = 5 * time.Second

	// cancelGrace is how long we wait for a cancelled read to return.
	cancelGrace = 500 * time.Millisecond
)

type readResult struct {
	line string
	err  error
}

// IO captures one line of input, bounded by a timeout. The read runs in its
// own goroutine through a cancel reader so that it does not outlive the
// handler when the timeout fires. Inputs that cannot be polled (plain
// io.Readers, regular files) fall back to an abandoned read, which is logged.
type IO struct {
	input   io.Reader
	timeout time.Duration
	console *console.Printer
	logger  *slog.Logger
}

func NewIO(input io.Reader, timeout time.Duration, out *console.Printer) *IO {
	if timeout <= 0 {
		timeout = DefaultIOTimeout
	}
	return &IO{
		input:   input,
		timeout: timeout,
		console: out,
		logger:  log.WithComponent("handler.io"),
	}
}

func (h *IO) Handle(ctx context.Context, ev interrupt.Event) (Outcome, error) {
	h.console.Prompt("Handling I/O interrupt, you have %s to enter data:", h.timeout)

	src, cr := h.openReader()
	result := make(chan readResult, 1)
	go func() {
		line, err := readLine(src)
		result <- readResult{line: line, err: err}
	}()

	timer := time.NewTimer(h.timeout)
	defer timer.Stop()

	select {
	case r := <-result:
		closeReader(cr)
		if errors.Is(r.err, io.EOF) && r.line == "" {
			h.console.Warn("Input closed. I/O interrupt ignored.")
			return Outcome{Status: StatusNoInput, Detail: "input closed"}, nil
		}
		if r.err != nil && !errors.Is(r.err, io.EOF) {
			h.console.Error("Failed to capture input: %v", r.err)
			return Outcome{}, fmt.Errorf("capture input: %w", r.err)
		}
		h.console.Success("Data received: %s", r.line)
		return Outcome{Status: StatusCompleted, Detail: r.line}, nil

	case <-timer.C:
		h.release(cr, result, ev)
		h.console.Warn("Timeout reached. I/O interrupt ignored.")
		return Outcome{Status: StatusTimedOut, Detail: "input discarded"}, nil

	case <-ctx.Done():
		h.release(cr, result, ev)
		return Outcome{}, fmt.Errorf("capture input: %w", ctx.Err())
	}
}

func (h *IO) openReader() (io.Reader, cancelreader.CancelReader) {
	cr, err := cancelreader.NewReader(h.input)
	if err != nil {
		h.logger.Warn("input is not cancellable, reads may be abandoned", "error", err)
		return h.input, nil
	}
	return cr, cr
}

// release stops the outstanding read. If the reader cannot be cancelled the
// goroutine is left to finish on its own and closes the reader afterwards.
func (h *IO) release(cr cancelreader.CancelReader, result <-chan readResult, ev interrupt.Event) {
	if cr == nil || !cr.Cancel() {
		h.logger.Warn("input read could not be cancelled, reader abandoned", "interrupt_id", ev.ID())
		go func() {
			<-result
			closeReader(cr)
		}()
		return
	}

	grace := time.NewTimer(cancelGrace)
	defer grace.Stop()

	select {
	case <-result:
		closeReader(cr)
	case <-grace.C:
		h.logger.Warn("cancelled input read did not return in time", "interrupt_id", ev.ID(), "grace", cancelGrace)
		go func() {
			<-result
			closeReader(cr)
		}()
	}
}

func closeReader(cr cancelreader.CancelReader) {
	if cr != nil {
		_ = cr.Close()
	}
}

// readLine reads up to and excluding the next newline, one byte at a time so
// nothing past the line is consumed from the shared input.
func readLine(r io.Reader) (string, error) {
	var sb strings.Builder
	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if buf[0] == '\n' {
				return strings.TrimSuffix(sb.String(), "\r"), nil
			}
			sb.WriteByte(buf[0])
		}
		if err != nil {
			return sb.String(), err
		}
	}
}
