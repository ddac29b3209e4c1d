package observability

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Telemetry bundles the recorders handed to the dispatcher along with the
// SDK providers backing them.
type Telemetry struct {
	Metrics MetricsRecorder
	Spans   SpanManager

	reader *sdkmetric.ManualReader
	mp     *sdkmetric.MeterProvider
	tp     *sdktrace.TracerProvider
}

// Setup installs global OTel providers when enabled. Metrics are kept in a
// manual reader (see Snapshot); finished spans are logged at debug level.
func Setup(enabled bool, logger *slog.Logger) *Telemetry {
	if !enabled {
		return &Telemetry{Metrics: NoopMetrics{}, Spans: NoopSpanManager{}}
	}

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(mp)

	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(&logSpanProcessor{logger: logger}))
	otel.SetTracerProvider(tp)

	return &Telemetry{
		Metrics: NewMetricsRecorder(),
		Spans:   NewSpanManager(),
		reader:  reader,
		mp:      mp,
		tp:      tp,
	}
}

// Enabled reports whether SDK providers are installed.
func (t *Telemetry) Enabled() bool { return t != nil && t.reader != nil }

// Snapshot flattens the current metric values: counters by name, histograms
// as "<name>.count" and "<name>.sum". Nil when telemetry is disabled.
func (t *Telemetry) Snapshot(ctx context.Context) (map[string]float64, error) {
	if !t.Enabled() {
		return nil, nil
	}

	var rm metricdata.ResourceMetrics
	if err := t.reader.Collect(ctx, &rm); err != nil {
		return nil, err
	}

	out := make(map[string]float64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name] += float64(dp.Value)
				}
			case metricdata.Sum[float64]:
				for _, dp := range data.DataPoints {
					out[m.Name] += dp.Value
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					out[m.Name+".count"] += float64(dp.Count)
					out[m.Name+".sum"] += dp.Sum
				}
			}
		}
	}
	return out, nil
}

// Shutdown flushes and stops the SDK providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if !t.Enabled() {
		return nil
	}
	return errors.Join(t.mp.Shutdown(ctx), t.tp.Shutdown(ctx))
}

// logSpanProcessor writes finished spans to the structured log.
type logSpanProcessor struct {
	logger *slog.Logger
}

var _ sdktrace.SpanProcessor = (*logSpanProcessor)(nil)

func (p *logSpanProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (p *logSpanProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	if p.logger == nil {
		return
	}
	p.logger.Debug("span finished",
		"span", s.Name(),
		"trace_id", s.SpanContext().TraceID().String(),
		"status", s.Status().Code.String(),
		"duration_ms", s.EndTime().Sub(s.StartTime()).Milliseconds(),
	)
}

func (p *logSpanProcessor) Shutdown(context.Context) error   { return nil }
func (p *logSpanProcessor) ForceFlush(context.Context) error { return nil }
