// Package handler holds the kind-specific interrupt handlers.
package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/mattjoyce/irqd/internal/interrupt"
)

//go:generate mockgen -destination=mocks/mock_handler.go -package=mocks github.com/mattjoyce/irqd/internal/handler Handler

// Status is the outcome class of a handled interrupt.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusTimedOut  Status = "timed_out"
	StatusRecovered Status = "recovered"
	// StatusNoInput means the input was closed before a line arrived.
	StatusNoInput Status = "no_input"
	// StatusFailed is assigned by the dispatcher when a handler returns an error.
	StatusFailed Status = "failed"
)

// Outcome is what a handler reports back to the dispatcher.
type Outcome struct {
	Status Status
	Detail string
}

// Handler processes one interrupt. A returned error means handling failed
// unexpectedly; expected conditions are reported through the Outcome.
type Handler interface {
	Handle(ctx context.Context, ev interrupt.Event) (Outcome, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev interrupt.Event) (Outcome, error)

func (f HandlerFunc) Handle(ctx context.Context, ev interrupt.Event) (Outcome, error) {
	return f(ctx, ev)
}

// ErrNoHandler is returned by Set.For for kinds outside the defined range.
var ErrNoHandler = errors.New("no handler for interrupt kind")

// Set maps every interrupt kind to its handler.
type Set struct {
	byKind [interrupt.NumKinds]Handler
}

// NewSet builds a complete table. Every kind must have a handler.
func NewSet(timer, io, fault Handler) (*Set, error) {
	s := &Set{}
	s.byKind[interrupt.KindTimer] = timer
	s.byKind[interrupt.KindIO] = io
	s.byKind[interrupt.KindFault] = fault

	for _, k := range interrupt.Kinds() {
		if s.byKind[k] == nil {
			return nil, fmt.Errorf("handler for %s is nil", k)
		}
	}
	return s, nil
}

// For returns the handler registered for k.
func (s *Set) For(k interrupt.Kind) (Handler, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, k)
	}
	return s.byKind[k], nil
}
