// Package observability records dispatcher metrics and spans through
// OpenTelemetry, with no-op fallbacks when telemetry is disabled.
package observability

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/mattjoyce/irqd"

// MetricsRecorder records per-interrupt dispatch metrics.
type MetricsRecorder interface {
	// RecordInterrupt records one handled interrupt. wait is the time spent
	// queued, duration the time spent in the handler.
	RecordInterrupt(ctx context.Context, kind, status string, wait, duration time.Duration, err error)
}

type otelMetrics struct {
	handled metric.Int64Counter
	failed  metric.Int64Counter
	latency metric.Float64Histogram
	wait    metric.Float64Histogram
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter(instrumentationName)

	handled, err := meter.Int64Counter("irqd.interrupts.handled",
		metric.WithDescription("Number of interrupts handled, by kind and status"),
	)
	if err != nil {
		return nil, err
	}

	failed, err := meter.Int64Counter("irqd.interrupts.failed",
		metric.WithDescription("Number of interrupts whose handler failed"),
	)
	if err != nil {
		return nil, err
	}

	latency, err := meter.Float64Histogram("irqd.interrupt.latency_ms",
		metric.WithDescription("Handler latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	wait, err := meter.Float64Histogram("irqd.interrupt.wait_ms",
		metric.WithDescription("Time between enqueue and dispatch in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{handled: handled, failed: failed, latency: latency, wait: wait}, nil
}

// NewMetricsRecorder returns an OTel-backed recorder using the global meter
// provider, or NoopMetrics if the instruments cannot be created.
func NewMetricsRecorder() MetricsRecorder {
	m, err := newOtelMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

func (m *otelMetrics) RecordInterrupt(ctx context.Context, kind, status string, wait, duration time.Duration, err error) {
	kindAttr := attribute.String("kind", kind)

	m.handled.Add(ctx, 1, metric.WithAttributes(kindAttr, attribute.String("status", status)))
	m.latency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(kindAttr))
	m.wait.Record(ctx, float64(wait.Milliseconds()), metric.WithAttributes(kindAttr))

	if err != nil {
		m.failed.Add(ctx, 1, metric.WithAttributes(kindAttr))
	}
}
