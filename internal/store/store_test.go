package store

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "astragate.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestIncrMalformedAccumulates(t *testing.T) {
	s := openTestStore(t)

	if err := s.IncrMalformed(0x0100); err != nil {
		t.Fatalf("IncrMalformed: %v", err)
	}
	if err := s.IncrMalformed(0x0100); err != nil {
		t.Fatalf("IncrMalformed: %v", err)
	}
	if err := s.IncrMalformed(0x0200); err != nil {
		t.Fatalf("IncrMalformed: %v", err)
	}

	n, err := s.MalformedCount(0x0100)
	if err != nil {
		t.Fatalf("MalformedCount: %v", err)
	}
	if n != 2 {
		t.Fatalf("MalformedCount(0x0100) = %d, want 2", n)
	}

	n, err = s.MalformedCount(0x0200)
	if err != nil {
		t.Fatalf("MalformedCount: %v", err)
	}
	if n != 1 {
		t.Fatalf("MalformedCount(0x0200) = %d, want 1", n)
	}
}

func TestMalformedCountUnknownPIDIsZero(t *testing.T) {
	s := openTestStore(t)
	n, err := s.MalformedCount(0xFFFF)
	if err != nil {
		t.Fatalf("MalformedCount: %v", err)
	}
	if n != 0 {
		t.Fatalf("MalformedCount(unknown) = %d, want 0", n)
	}
}

func TestRecordLatencyAndSlotResetHistory(t *testing.T) {
	s := openTestStore(t)

	if err := s.RecordLatency(0x0010, "ecm", 42*time.Millisecond); err != nil {
		t.Fatalf("RecordLatency: %v", err)
	}
	if err := s.RecordSlotReset(0, "module not ready"); err != nil {
		t.Fatalf("RecordSlotReset: %v", err)
	}
	if err := s.RecordSlotReset(0, "cam timeout"); err != nil {
		t.Fatalf("RecordSlotReset: %v", err)
	}

	hist, err := s.SlotResetHistory(0, 10)
	if err != nil {
		t.Fatalf("SlotResetHistory: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("SlotResetHistory returned %d entries, want 2", len(hist))
	}
	if hist[0].Reason != "cam timeout" {
		t.Fatalf("most recent reset reason = %q, want %q (newest first)", hist[0].Reason, "cam timeout")
	}
}
