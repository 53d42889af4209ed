package writer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCSVWriterWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")

	w, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("NewCSVWriter: %v", err)
	}
	if err := w.WriteRow("127.0.0.1:10000", "SUCCESS", 12*time.Millisecond); err != nil {
		t.Fatalf("WriteRow: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	w2, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("reopen NewCSVWriter: %v", err)
	}
	if err := w2.WriteRow("127.0.0.1:10000", "TIMEOUT", 5*time.Second); err != nil {
		t.Fatalf("WriteRow: %v", err)
	}
	if err := w2.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines: %v", len(lines), lines)
	}
	if lines[0] != "timestamp,peer,result,delay_ms" {
		t.Fatalf("unexpected header: %q", lines[0])
	}
}

func TestCSVWriterRejectsWriteAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	w, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("NewCSVWriter: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.WriteRow("x", "SUCCESS", time.Millisecond); err == nil {
		t.Fatal("expected an error writing after Close")
	}
}
