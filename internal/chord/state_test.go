package chord

import (
	"testing"

	"tagstore-dht/internal/domain"
)

func newTestState(t *testing.T, idByte byte) *State {
	t.Helper()
	sp, err := domain.NewSpace(8, 3)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	self := domain.NodeRef{IP: "127.0.0.1", ChordPort: 10001, ID: domain.ID{idByte}}
	return New(self, sp, 3, nil)
}

func TestInitSoloSetsSelfAsSuccessorAndPredecessor(t *testing.T) {
	s := newTestState(t, 0x10)
	s.InitSolo()

	succ, ok := s.Successor()
	if !ok || !succ.Equal(s.Self()) {
		t.Fatalf("expected solo successor to be self, got %v ok=%v", succ, ok)
	}
	pred, ok := s.Predecessor()
	if !ok || !pred.Equal(s.Self()) {
		t.Fatalf("expected solo predecessor to be self, got %v ok=%v", pred, ok)
	}
}

func TestSetAndGetFinger(t *testing.T) {
	s := newTestState(t, 0x10)
	ref := domain.NodeRef{IP: "10.0.0.1", ChordPort: 10001, ID: domain.ID{0x20}}
	s.SetFinger(3, ref)

	got, ok := s.Finger(3)
	if !ok || !got.Equal(ref) {
		t.Fatalf("Finger(3) = %v, ok=%v, want %v", got, ok, ref)
	}
	if _, ok := s.Finger(-1); ok {
		t.Fatal("expected out-of-range finger index to report unset")
	}
	if _, ok := s.Finger(s.FingerTableSize()); ok {
		t.Fatal("expected out-of-range finger index to report unset")
	}
}

func TestPromoteSuccessorShiftsList(t *testing.T) {
	s := newTestState(t, 0x10)
	a := domain.NodeRef{IP: "10.0.0.1", ChordPort: 1, ID: domain.ID{0x20}}
	b := domain.NodeRef{IP: "10.0.0.2", ChordPort: 1, ID: domain.ID{0x30}}
	c := domain.NodeRef{IP: "10.0.0.3", ChordPort: 1, ID: domain.ID{0x40}}
	s.SetSuccessorList([]domain.NodeRef{a, b, c})

	s.PromoteSuccessor(1)

	got, ok := s.SuccessorAt(0)
	if !ok || !got.Equal(b) {
		t.Fatalf("expected promoted successor b at index 0, got %v", got)
	}
	got, ok = s.SuccessorAt(1)
	if !ok || !got.Equal(c) {
		t.Fatalf("expected c shifted to index 1, got %v", got)
	}
	if _, ok := s.SuccessorAt(2); ok {
		t.Fatalf("expected index 2 to be unset after promotion")
	}
}

func TestClearPredecessor(t *testing.T) {
	s := newTestState(t, 0x10)
	s.SetPredecessor(domain.NodeRef{IP: "10.0.0.1", ChordPort: 1, ID: domain.ID{0x05}})
	s.ClearPredecessor()
	if _, ok := s.Predecessor(); ok {
		t.Fatal("expected predecessor to be unset after ClearPredecessor")
	}
}
