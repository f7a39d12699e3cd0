package capture

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/andybalholm/brotli"
)

func makePacket(pid uint16, fill byte) []byte {
	pkt := make([]byte, packetSize)
	pkt[0] = 0x47
	pkt[1] = byte(pid >> 8 & 0x1F)
	pkt[2] = byte(pid)
	pkt[3] = 0x10
	for i := 4; i < packetSize; i++ {
		pkt[i] = fill
	}
	return pkt
}

func TestRingWrapsAtCapacity(t *testing.T) {
	r := newRing(2)
	r.push(makePacket(0x100, 1))
	r.push(makePacket(0x100, 2))
	r.push(makePacket(0x100, 3))

	snap := r.snapshot()
	if len(snap) != 2*packetSize {
		t.Fatalf("snapshot len = %d, want %d", len(snap), 2*packetSize)
	}
	if snap[4] != 2 || snap[packetSize+4] != 3 {
		t.Fatalf("snapshot did not retain the newest two packets oldest-first: %v %v", snap[4], snap[packetSize+4])
	}
}

func TestManagerObserveAndTriggerExport(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, 4)

	m.Observe(0x200, makePacket(0x200, 9))
	m.Observe(0x200, makePacket(0x200, 10))

	path, err := m.TriggerExport(0x200, "malformed")
	if err != nil {
		t.Fatalf("TriggerExport: %v", err)
	}
	if filepath.Dir(path) != filepath.Join(dir, "captures") {
		t.Fatalf("export path %s not under captures dir of %s", path, dir)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()

	r := brotli.NewReader(f)
	decoded, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("brotli read: %v", err)
	}
	if len(decoded) != 2*packetSize {
		t.Fatalf("decoded len = %d, want %d", len(decoded), 2*packetSize)
	}
}

func TestTriggerExportWithNoPacketsErrors(t *testing.T) {
	m := NewManager(t.TempDir(), 4)
	if _, err := m.TriggerExport(0x9999, "malformed"); err == nil {
		t.Fatalf("expected error exporting an unobserved pid")
	}
}

func TestWriterForwardsAndObservesAcrossSplitWrites(t *testing.T) {
	var out bytes.Buffer
	m := NewManager(t.TempDir(), 8)
	w := NewWriter(&out, m)

	pkt := makePacket(0x300, 5)
	// Split the packet across two Write calls to exercise resync buffering.
	if _, err := w.Write(pkt[:100]); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := w.Write(pkt[100:]); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if !bytes.Equal(out.Bytes(), pkt) {
		t.Fatalf("writer did not forward bytes unchanged")
	}

	m.mu.Lock()
	r := m.rings[0x300]
	m.mu.Unlock()
	if r == nil || r.filled != 1 {
		t.Fatalf("expected exactly one packet observed for pid 0x300")
	}
}

func TestWriterResyncsPastGarbage(t *testing.T) {
	var out bytes.Buffer
	m := NewManager(t.TempDir(), 8)
	w := NewWriter(&out, m)

	pkt := makePacket(0x10, 7)
	garbage := []byte{0x00, 0x01, 0x02}
	if _, err := w.Write(append(garbage, pkt...)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	m.mu.Lock()
	r := m.rings[0x10]
	m.mu.Unlock()
	if r == nil || r.filled != 1 {
		t.Fatalf("expected writer to resync onto the sync byte and observe one packet")
	}
}
