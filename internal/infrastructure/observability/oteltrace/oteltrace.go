// Package oteltrace adapts the OpenTelemetry API to the tracer port and owns
// the process-wide propagation setup.
package oteltrace

import (
	"context"

	"github.com/Zhima-Mochi/storefront/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const defaultName = "storefront"

type tracer struct{ t trace.Tracer }

// New returns a tracer bound to the globally registered provider. Until an SDK
// provider is installed with otel.SetTracerProvider, spans are non-recording.
func New(name string) observability.Tracer {
	return NewWithProvider(otel.GetTracerProvider(), name)
}

// NewWithProvider binds the tracer to tp instead of the global provider.
func NewWithProvider(tp trace.TracerProvider, name string) observability.Tracer {
	if name == "" {
		name = defaultName
	}
	return &tracer{t: tp.Tracer(name)}
}

func (t *tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.t.Start(ctx, name, trace.WithAttributes(attrs...))
}

// Propagator is the W3C trace-context plus baggage propagator used on every
// inbound request and outbound message.
func Propagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
}

// InstallPropagator registers Propagator globally. The otel default is a no-op.
func InstallPropagator() {
	otel.SetTextMapPropagator(Propagator())
}
