package domain

import "testing"

func mustHex(t *testing.T, sp Space, s string) ID {
	t.Helper()
	id, err := sp.FromHexString(s)
	if err != nil {
		t.Fatalf("FromHexString(%q) failed: %v", s, err)
	}
	return id
}

func TestBetweenWrap(t *testing.T) {
	sp, err := NewSpace(8, 3)
	if err != nil {
		t.Fatalf("NewSpace failed: %v", err)
	}

	tests := []struct {
		name    string
		x, a, b string
		want    bool
	}{
		{"linear inside", "0x05", "0x01", "0x0a", true},
		{"linear equal to b", "0x0a", "0x01", "0x0a", true},
		{"linear equal to a excluded", "0x01", "0x01", "0x0a", false},
		{"wrap, x after a", "0x0c", "0x0a", "0x05", true},
		{"wrap, x before b", "0x02", "0x0a", "0x05", true},
		{"wrap, x outside", "0x07", "0x0a", "0x05", false},
		{"a==b covers whole ring", "0x00", "0x0a", "0x0a", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := mustHex(t, sp, tt.x)
			a := mustHex(t, sp, tt.a)
			b := mustHex(t, sp, tt.b)
			if got := x.Between(a, b); got != tt.want {
				t.Errorf("Between(%s,%s,%s) = %v, want %v", tt.x, tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestKeyEqualsSelfIsOwnSuccessor(t *testing.T) {
	sp, _ := NewSpace(8, 3)
	self := mustHex(t, sp, "0x2a")
	if !self.Between(self, self) {
		t.Fatalf("a node's own id must lie in (self,self] (whole ring)")
	}
}

func TestFingerStartWraps(t *testing.T) {
	sp, _ := NewSpace(8, 3)
	self := mustHex(t, sp, "0xff")

	got, err := sp.FingerStart(self, 0) // self + 2^0 = 256 mod 256 = 0
	if err != nil {
		t.Fatalf("FingerStart failed: %v", err)
	}
	want := sp.Zero()
	if !got.Equal(want) {
		t.Errorf("FingerStart(0xff,0) = %s, want %s", got, want)
	}
}

func TestFingerStartLastIndexWraps160(t *testing.T) {
	sp, _ := NewSpace(160, 3)
	self, _ := sp.FromHexString("0x8000000000000000000000000000000000000001")

	got, err := sp.FingerStart(self, 159) // 2^159 + 1 + 2^159 = 2^160 + 1 mod 2^160 = 1
	if err != nil {
		t.Fatalf("FingerStart failed: %v", err)
	}
	want := sp.FromUint64(1)
	if !got.Equal(want) {
		t.Errorf("FingerStart(0x80..01,159) = %s, want %s", got, want)
	}
}

func TestFingerStartMonotoneSequence(t *testing.T) {
	sp, _ := NewSpace(8, 3)
	self := mustHex(t, sp, "0x10")

	for i, want := range []string{"0x11", "0x12", "0x14", "0x18", "0x20", "0x30", "0x50", "0x90"} {
		got, err := sp.FingerStart(self, i)
		if err != nil {
			t.Fatalf("FingerStart(%d) failed: %v", i, err)
		}
		wantID := mustHex(t, sp, want)
		if !got.Equal(wantID) {
			t.Errorf("FingerStart(0x10,%d) = %s, want %s", i, got, want)
		}
	}
}

func TestBully(t *testing.T) {
	sp, _ := NewSpace(8, 3)
	low := mustHex(t, sp, "0x01")
	high := mustHex(t, sp, "0xff")

	if !Bully(high, low) {
		t.Errorf("expected high id to win bully election over low id")
	}
	if Bully(low, high) {
		t.Errorf("expected low id to lose bully election against high id")
	}
	if Bully(low, low) {
		t.Errorf("a node never bullies itself")
	}
}

func TestIsValidIDRejectsOutOfRangeBits(t *testing.T) {
	sp, _ := NewSpace(4, 3) // ByteLen=1, top 4 bits unused
	bad := ID{0xF0}
	if err := sp.IsValidID(bad); err == nil {
		t.Errorf("expected invalid id for set high bits outside 4-bit space")
	}
	good := ID{0x0F}
	if err := sp.IsValidID(good); err != nil {
		t.Errorf("unexpected error for valid id: %v", err)
	}
}

func TestNewIdFromStringDeterministic(t *testing.T) {
	sp, _ := NewSpace(160, 3)
	a := sp.NewIdFromString("127.0.0.1:10001")
	b := sp.NewIdFromString("127.0.0.1:10001")
	if !a.Equal(b) {
		t.Errorf("NewIdFromString must be deterministic for the same input")
	}
	c := sp.NewIdFromString("127.0.0.1:10002")
	if a.Equal(c) {
		t.Errorf("different inputs should hash to different ids (overwhelmingly likely)")
	}
}
