package api

import (
	"github.com/mattjoyce/irqd/internal/interrupt"
	"github.com/mattjoyce/irqd/internal/journal"
)

// RaiseRequest is the JSON body for POST /interrupts.
type RaiseRequest struct {
	Kind     string `json:"kind"`
	Priority *int   `json:"priority"`
}

// RaiseResponse is returned once the interrupt is queued.
type RaiseResponse struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Priority int    `json:"priority"`
	Status   string `json:"status"`
}

// QueueResponse is returned by GET /queue.
type QueueResponse struct {
	Waiting int               `json:"waiting"`
	Pending int               `json:"pending"`
	Items   []interrupt.Event `json:"items"`
}

// JournalResponse is returned by GET /journal.
type JournalResponse struct {
	Entries []journal.Entry `json:"entries"`
	Summary map[string]int  `json:"summary"`
}

// MetricsResponse is returned by GET /metrics.
type MetricsResponse struct {
	Metrics map[string]float64 `json:"metrics"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	QueueDepth    int    `json:"queue_depth"`
	Pending       int    `json:"pending"`
	Draining      bool   `json:"draining"`
}
