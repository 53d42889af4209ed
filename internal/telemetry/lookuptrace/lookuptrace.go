// Package lookuptrace selectively spans the chord lookup path (finding_call
// hops) so a trace shows the full successor chain a key lookup walked
// without every Chord RPC generating its own top-level span.
//
// Grounded on internal/telemetry/lookuptrace/lookuptrace.go, stripped of
// its grpc metadata carrier: this module has no grpc server, so the
// lookup flag travels only within a single process's context.Context
// rather than across the wire.
package lookuptrace

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

type lookupKey struct{}

const tracerName = "tagstore/lookuptrace"

var tracer = otel.Tracer(tracerName)

// WithLookup marks ctx as belonging to a key-lookup chain.
func WithLookup(ctx context.Context) context.Context {
	return context.WithValue(ctx, lookupKey{}, true)
}

// IsLookup reports whether ctx was marked by WithLookup.
func IsLookup(ctx context.Context) bool {
	v, _ := ctx.Value(lookupKey{}).(bool)
	return v
}

// StartHop opens a span for one hop of a lookup chain if ctx is marked as
// a lookup, otherwise it returns ctx unchanged with a no-op span.
func StartHop(ctx context.Context, name string) (context.Context, trace.Span) {
	if !IsLookup(ctx) {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal))
}
