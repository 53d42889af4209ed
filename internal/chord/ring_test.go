package chord

import (
	"context"
	"testing"
	"time"

	"tagstore-dht/internal/domain"
	"tagstore-dht/internal/peerproxy"
)

func newTestRing(t *testing.T, idByte byte) *Ring {
	t.Helper()
	s := newTestState(t, idByte)
	pool := peerproxy.NewPool(time.Second, nil)
	return NewRing(s, pool, nil, nil)
}

func TestGetSuccessorReturnsSelfForOwnKey(t *testing.T) {
	r := newTestRing(t, 0x10)
	r.State().InitSolo()

	got, werr := r.GetSuccessor(context.Background(), r.State().Self().ID)
	if werr != nil {
		t.Fatalf("GetSuccessor: %v", werr)
	}
	if !got.Equal(r.State().Self()) {
		t.Fatalf("expected self, got %v", got)
	}
}

func TestGetSuccessorReturnsImmediateSuccessorWhenKeyInRange(t *testing.T) {
	r := newTestRing(t, 0x10)
	succ := domain.NodeRef{IP: "10.0.0.1", ChordPort: 1, ID: domain.ID{0x20}}
	r.State().SetSuccessor(succ)
	r.State().SetPredecessor(r.State().Self())

	key := domain.ID{0x18} // in (0x10, 0x20]
	got, werr := r.GetSuccessor(context.Background(), key)
	if werr != nil {
		t.Fatalf("GetSuccessor: %v", werr)
	}
	if !got.Equal(succ) {
		t.Fatalf("expected successor %v, got %v", succ, got)
	}
}

func TestClosestPrecedingNodeFallsBackToSelfWhenNoFingersSet(t *testing.T) {
	r := newTestRing(t, 0x10)
	got := r.ClosestPrecedingNode(context.Background(), domain.ID{0xf0})
	if !got.Equal(r.State().Self()) {
		t.Fatalf("expected fallback to self, got %v", got)
	}
}

func TestNotifyAdoptsBetterPredecessor(t *testing.T) {
	r := newTestRing(t, 0x10)
	r.State().InitSolo()

	candidate := domain.NodeRef{IP: "10.0.0.5", ChordPort: 1, ID: domain.ID{0x05}}
	r.Notify(context.Background(), candidate)

	pred, ok := r.State().Predecessor()
	if !ok || !pred.Equal(candidate) {
		t.Fatalf("expected predecessor to become candidate, got %v ok=%v", pred, ok)
	}
}

func TestNotifyIgnoresSelf(t *testing.T) {
	r := newTestRing(t, 0x10)
	r.State().InitSolo()
	before, _ := r.State().Predecessor()

	r.Notify(context.Background(), r.State().Self())

	after, _ := r.State().Predecessor()
	if !after.Equal(before) {
		t.Fatalf("notify from self must not change predecessor")
	}
}

func TestJoinWithoutSeedInitializesSolo(t *testing.T) {
	r := newTestRing(t, 0x10)
	if werr := r.Join(context.Background(), nil); werr != nil {
		t.Fatalf("Join: %v", werr)
	}
	succ, ok := r.State().Successor()
	if !ok || !succ.Equal(r.State().Self()) {
		t.Fatalf("expected solo successor after seedless join, got %v", succ)
	}
}
