// Package ctxutil builds the per-request context every inbound connection
// gets in internal/node: a deadline plus a trace ID threaded through to the
// handler, the dispatcher, and whatever background replication push the
// handler fans out. It exists so that thread is built one way, in one
// place, instead of each call site composing context.WithTimeout and
// trace.AttachTraceID by hand.
package ctxutil

import (
	"context"
	"errors"
	"time"

	"tagstore-dht/internal/domain"
	"tagstore-dht/internal/trace"
	"tagstore-dht/internal/wire"
)

// ContextOption configures the behavior of NewContext.
// Multiple options can be combined.
type ContextOption func(*ctxConfig)

type ctxConfig struct {
	withTrace bool
	nodeID    domain.ID
	timeout   time.Duration
}

// WithTrace enables attaching a fresh traceID to the created context.
// The traceID is derived from the provided nodeID and attached to the
// context NewContext returns (read it back with TraceIDFromContext).
func WithTrace(nodeID domain.ID) ContextOption {
	return func(cfg *ctxConfig) {
		cfg.withTrace = true
		cfg.nodeID = nodeID
	}
}

// WithTimeout sets a timeout duration for the created context.
// The caller must defer the cancel function returned by NewContext.
func WithTimeout(d time.Duration) ContextOption {
	return func(cfg *ctxConfig) {
		cfg.timeout = d
	}
}

// NewContext creates a new context configured according to the provided options.
//
// Options:
//   - WithTrace(nodeID): attaches a traceID to the context
//   - WithTimeout(d): applies a timeout to the context
//
// Returns:
//   - context.Context: the configured context
//   - context.CancelFunc: a cancel function (nil if no timeout was set)
func NewContext(opts ...ContextOption) (context.Context, context.CancelFunc) {
	cfg := &ctxConfig{}
	for _, o := range opts {
		o(cfg)
	}

	var ctx context.Context
	var cancel context.CancelFunc
	if cfg.timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), cfg.timeout)
	} else {
		ctx = context.Background()
	}
	if cfg.withTrace {
		ctx, _ = trace.AttachTraceID(ctx, cfg.nodeID)
	}

	return ctx, cancel
}

// TraceIDFromContext extracts the traceID from ctx.
// Returns an empty string if not present.
func TraceIDFromContext(ctx context.Context) string {
	return trace.GetTraceID(ctx)
}

// EnsureTraceID checks if the context already has a non-empty traceID.
// If not, it attaches a new one derived from the provided nodeID.
// Returns the updated context (may be the same as input). A context that
// carries no trace ID, such as the context.Background() a detached
// background push starts from, gets a fresh one.
func EnsureTraceID(ctx context.Context, nodeID domain.ID) context.Context {
	if id := trace.GetTraceID(ctx); id == "" {
		ctx, _ = trace.AttachTraceID(ctx, nodeID)
	}
	return ctx
}

// CheckContext verifies whether the provided context has been canceled
// or its deadline has expired, returning a *wire.Error a dispatcher
// handler can return directly in place of a successful reply.
func CheckContext(ctx context.Context) *wire.Error {
	switch err := ctx.Err(); {
	case errors.Is(err, context.Canceled):
		return wire.NewError(wire.KindTransport, "request was canceled by client")
	case errors.Is(err, context.DeadlineExceeded):
		return wire.NewError(wire.KindTimeout, "request deadline exceeded")
	default:
		return nil
	}
}
