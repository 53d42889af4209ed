package trace

import (
	"context"
	"strings"
	"testing"

	"tagstore-dht/internal/domain"
)

func testID(t *testing.T, s string) domain.ID {
	t.Helper()
	space, err := domain.NewSpace(160, 3)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	return space.NewIdFromString(s)
}

func TestGenerateTraceIDPrefixedByNode(t *testing.T) {
	id := GenerateTraceID("node-a")
	if !strings.HasPrefix(id, "node-a-") {
		t.Fatalf("expected trace id prefixed by node id, got %q", id)
	}
}

func TestGenerateTraceIDUnique(t *testing.T) {
	a := GenerateTraceID("node-a")
	b := GenerateTraceID("node-a")
	if a == b {
		t.Fatal("expected two generated trace ids to differ")
	}
}

func TestAttachAndGetTraceID(t *testing.T) {
	nodeID := testID(t, "127.0.0.1:10001")
	ctx, traceID := AttachTraceID(context.Background(), nodeID)
	if traceID == "" {
		t.Fatal("expected a non-empty trace id")
	}
	if got := GetTraceID(ctx); got != traceID {
		t.Fatalf("GetTraceID = %q, want %q", got, traceID)
	}
}

func TestGetTraceIDEmptyWhenUnset(t *testing.T) {
	if got := GetTraceID(context.Background()); got != "" {
		t.Fatalf("expected empty trace id on a bare context, got %q", got)
	}
}
