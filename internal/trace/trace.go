// Package trace mints and carries a per-request trace ID through a
// context.Context, so a log line written deep inside a dispatcher handler
// or a background replication push can be correlated back to the
// connection that triggered it.
package trace

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"tagstore-dht/internal/domain"

	"github.com/oklog/ulid/v2"
)

type traceKey struct{}

// GenerateTraceID builds a globally unique trace ID in the form:
//
//	<nodeID>-<ULID>
//
// the ULID's timestamp component keeps IDs roughly sortable by arrival
// order even across nodes with unsynchronized clocks.
func GenerateTraceID(nodeID string) string {
	now := time.Now().UTC()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(now.UnixNano())), 0)
	id := ulid.MustNew(ulid.Timestamp(now), entropy)
	return fmt.Sprintf("%s-%s", nodeID, id.String())
}

// AttachTraceID generates a trace ID for nodeID and stores it in ctx,
// returning the derived context and the trace ID string itself (the
// caller logs the latter without needing a second lookup).
func AttachTraceID(ctx context.Context, nodeID domain.ID) (context.Context, string) {
	traceID := GenerateTraceID(nodeID.String())
	return context.WithValue(ctx, traceKey{}, traceID), traceID
}

// GetTraceID returns the trace ID stored in ctx, or "" if none is set.
func GetTraceID(ctx context.Context) string {
	if v := ctx.Value(traceKey{}); v != nil {
		if id, ok := v.(string); ok && id != "" {
			return id
		}
	}
	return ""
}
