package blobstore

import (
	"os"
	"testing"
)

func TestWriteThenReadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Write("report", "pdf", []byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("report", "pdf")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("expected hello, got %q", got)
	}
}

func TestWriteLeavesNoTempFileBehind(t *testing.T) {
	dir := t.TempDir()
	s, _ := New(dir, nil)
	if err := s.Write("a", "bin", []byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := os.Stat(dir + "/a.bin.tmp"); !os.IsNotExist(err) {
		t.Fatal("expected no leftover .tmp file after write")
	}
}

func TestDeleteTombstonesWithoutErasingBytes(t *testing.T) {
	dir := t.TempDir()
	s, _ := New(dir, nil)
	s.Write("a", "bin", []byte("x"))
	if err := s.Delete("a", "bin"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Read("a", "bin"); err == nil {
		t.Fatal("expected Read to report the blob as gone after Delete")
	}
	if _, err := os.Stat(dir + "/a.bin"); err != nil {
		t.Fatal("expected the underlying bytes to remain on disk (no GC, per spec)")
	}
}

func TestListSinceAndApplyDeltaRoundTrip(t *testing.T) {
	dirA, dirB := t.TempDir(), t.TempDir()
	a, _ := New(dirA, nil)
	b, _ := New(dirB, nil)

	if err := a.Write("a", "bin", []byte("payload")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	rows, err := a.ListSince(0)
	if err != nil {
		t.Fatalf("ListSince: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if err := b.ApplyDelta(rows); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	got, err := b.Read("a", "bin")
	if err != nil {
		t.Fatalf("Read after ApplyDelta: %v", err)
	}
	if string(got) != "payload" {
		t.Fatalf("expected payload, got %q", got)
	}
}
