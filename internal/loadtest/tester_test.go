package loadtest

import "testing"

func TestRandomIntStaysWithinBounds(t *testing.T) {
	for i := 0; i < 200; i++ {
		got := randomInt(2, 5)
		if got < 2 || got > 5 {
			t.Fatalf("randomInt(2, 5) = %d, out of bounds", got)
		}
	}
}

func TestRandomIntHandlesEqualBounds(t *testing.T) {
	if got := randomInt(3, 3); got != 3 {
		t.Fatalf("randomInt(3, 3) = %d, want 3", got)
	}
}

func TestRandomIntHandlesInvertedBounds(t *testing.T) {
	if got := randomInt(5, 2); got != 5 {
		t.Fatalf("randomInt(5, 2) = %d, want 5 (min returned as-is)", got)
	}
}

func TestRandomTagsNeverExceedsTwo(t *testing.T) {
	for i := 0; i < 200; i++ {
		tags := randomTags()
		if len(tags) > 2 {
			t.Fatalf("randomTags() returned %d tags, want at most 2", len(tags))
		}
	}
}
