package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mattjoyce/irqd/internal/interrupt"
)

// SpanManager handles the span around one handler invocation.
type SpanManager interface {
	StartHandleSpan(ctx context.Context, ev interrupt.Event) (context.Context, trace.Span)
	EndSpanWithError(span trace.Span, err error)
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

type otelSpanManager struct{}

// NewSpanManager returns a SpanManager using the global tracer provider.
func NewSpanManager() SpanManager {
	return otelSpanManager{}
}

func (otelSpanManager) StartHandleSpan(ctx context.Context, ev interrupt.Event) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, "irqd.handle."+ev.Kind().String(),
		trace.WithAttributes(
			attribute.String("interrupt.id", ev.ID()),
			attribute.String("interrupt.kind", ev.Kind().String()),
			attribute.Int("interrupt.priority", ev.Priority()),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func (otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}
