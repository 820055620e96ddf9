package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// StoredTrace is the W3C trace context kept beside a persisted row so work
// done later (outbox relay) joins the trace that wrote it.
type StoredTrace struct {
	Traceparent string
	Tracestate  string
}

// CaptureTrace serializes the span context active in ctx.
func CaptureTrace(ctx context.Context) StoredTrace {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return StoredTrace{Traceparent: carrier.Get("traceparent"), Tracestate: carrier.Get("tracestate")}
}

// Restore returns ctx carrying the stored span context; empty values leave
// ctx untouched.
func (s StoredTrace) Restore(ctx context.Context) context.Context {
	if s.Traceparent == "" {
		return ctx
	}
	carrier := propagation.MapCarrier{"traceparent": s.Traceparent}
	if s.Tracestate != "" {
		carrier["tracestate"] = s.Tracestate
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
