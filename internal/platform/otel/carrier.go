package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// TraceContext holds the W3C trace-context headers persisted on outbox rows so
// worker-side processing joins the span that produced the row.
type TraceContext struct {
	Traceparent string
	Tracestate  string
}

// InjectTraceContext captures the current span context as persistable strings.
func InjectTraceContext(ctx context.Context) TraceContext {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return TraceContext{
		Traceparent: carrier.Get("traceparent"),
		Tracestate:  carrier.Get("tracestate"),
	}
}

// ExtractTraceContext restores a persisted trace context onto a new context.
func ExtractTraceContext(ctx context.Context, tc TraceContext) context.Context {
	if tc.Traceparent == "" {
		return ctx
	}
	carrier := propagation.MapCarrier{}
	carrier.Set("traceparent", tc.Traceparent)
	if tc.Tracestate != "" {
		carrier.Set("tracestate", tc.Tracestate)
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
