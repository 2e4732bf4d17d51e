package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// StoredTrace is the W3C trace context kept next to a database row (outbox events, reminder
// jobs) so the worker that picks the row up later continues the request's trace.
type StoredTrace struct {
	Parent string
	State  string
}

// CaptureTrace serializes the span context in ctx with the global propagator.
func CaptureTrace(ctx context.Context) StoredTrace {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return StoredTrace{Parent: carrier.Get("traceparent"), State: carrier.Get("tracestate")}
}

// Empty reports whether no trace was captured.
func (t StoredTrace) Empty() bool { return t.Parent == "" && t.State == "" }

// Attach returns ctx carrying the stored span context as its remote parent.
func (t StoredTrace) Attach(ctx context.Context) context.Context {
	if t.Empty() {
		return ctx
	}
	carrier := propagation.MapCarrier{}
	carrier.Set("traceparent", t.Parent)
	if t.State != "" {
		carrier.Set("tracestate", t.State)
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
