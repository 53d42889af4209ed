package node

import (
	"testing"

	"tagstore-dht/internal/domain"
)

func testSpace(t *testing.T) domain.Space {
	t.Helper()
	space, err := domain.NewSpace(160, 3)
	if err != nil {
		t.Fatalf("build space: %v", err)
	}
	return space
}

func TestWireRefRoundTrip(t *testing.T) {
	space := testSpace(t)
	n := &Node{space: space}

	ref := domain.NodeRef{
		IP: "10.0.0.5", ChordPort: 10001, DataPort: 10000, Protocol: "tcp",
		ID: space.NewIdFromString("10.0.0.5:10001"),
	}

	wr := toWireRef(ref)
	got, werr := n.fromWireRef(wr)
	if werr != nil {
		t.Fatalf("fromWireRef: %v", werr)
	}
	if got.IP != ref.IP || got.ChordPort != ref.ChordPort || got.DataPort != ref.DataPort || got.Protocol != ref.Protocol {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, ref)
	}
	if !got.ID.Equal(ref.ID) {
		t.Fatalf("id mismatch: got %s, want %s", got.ID.ToHexString(true), ref.ID.ToHexString(true))
	}
}

func TestFromWireRefRejectsMalformedID(t *testing.T) {
	space := testSpace(t)
	n := &Node{space: space}

	_, werr := n.fromWireRef(wireRef{IP: "x", ID: "not-hex"})
	if werr == nil {
		t.Fatal("expected a malformed-id error")
	}
}
