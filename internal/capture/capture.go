// Package capture keeps a rolling ring of the last N raw TS packets per
// PID and can export one on demand, brotli-compressed, when something
// upstream flags the PID as bad. Grounded on the teacher's
// tsInspectorWriter/tsInspector pair in internal/tuner/ts_inspector.go:
// the same "wrap an io.Writer, resync on the 0x47 sync byte, observe
// each packet" shape, but exporting compressed packets instead of
// logging parsed stream stats.
package capture

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/tsforge/astragate/internal/cache"
)

const packetSize = 188

// ring is a fixed-capacity circular buffer of raw TS packets for one PID.
type ring struct {
	packets  [][packetSize]byte
	next     int
	filled   int
	capacity int
}

func newRing(capacity int) *ring {
	return &ring{packets: make([][packetSize]byte, capacity), capacity: capacity}
}

func (r *ring) push(pkt []byte) {
	if len(pkt) != packetSize {
		return
	}
	copy(r.packets[r.next][:], pkt)
	r.next = (r.next + 1) % r.capacity
	if r.filled < r.capacity {
		r.filled++
	}
}

// snapshot returns the buffered packets oldest-first.
func (r *ring) snapshot() []byte {
	out := make([]byte, 0, r.filled*packetSize)
	start := r.next - r.filled
	if start < 0 {
		start += r.capacity
	}
	for i := 0; i < r.filled; i++ {
		idx := (start + i) % r.capacity
		out = append(out, r.packets[idx][:]...)
	}
	return out
}

// Manager owns one ring per PID and exports them as brotli-compressed
// files under CacheDir on request.
type Manager struct {
	mu       sync.Mutex
	rings    map[uint16]*ring
	capacity int
	cacheDir string
}

// NewManager creates a Manager that keeps capacityPerPID packets per
// PID and writes exports under cacheDir.
func NewManager(cacheDir string, capacityPerPID int) *Manager {
	if capacityPerPID <= 0 {
		capacityPerPID = 4096
	}
	return &Manager{
		rings:    make(map[uint16]*ring),
		capacity: capacityPerPID,
		cacheDir: cacheDir,
	}
}

// Observe records one 188-byte TS packet for pid.
func (m *Manager) Observe(pid uint16, pkt []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.rings[pid]
	if r == nil {
		r = newRing(m.capacity)
		m.rings[pid] = r
	}
	r.push(pkt)
}

// TriggerExport brotli-compresses the current ring for pid and writes
// it under CacheDir, naming the file with pid/reason/timestamp. reason
// is typically "malformed" (CRC failure in internal/ts) or
// "cw-negative" (a descrambler key-state rejection). Returns the
// written path.
func (m *Manager) TriggerExport(pid uint16, reason string) (string, error) {
	m.mu.Lock()
	r := m.rings[pid]
	var snap []byte
	if r != nil {
		snap = r.snapshot()
	}
	m.mu.Unlock()

	if len(snap) == 0 {
		return "", fmt.Errorf("capture: no buffered packets for pid=%d", pid)
	}

	seq := time.Now().UnixNano()
	path := cache.CapturePath(m.cacheDir, pid, reason, seq)
	partial := cache.PartialCapturePath(m.cacheDir, pid, reason, seq)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("capture: mkdir %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(partial)
	if err != nil {
		return "", fmt.Errorf("capture: create %s: %w", partial, err)
	}
	defer f.Close()

	w := brotli.NewWriter(f)
	if _, err := w.Write(snap); err != nil {
		w.Close()
		return "", fmt.Errorf("capture: write %s: %w", partial, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("capture: close brotli writer %s: %w", partial, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("capture: close %s: %w", partial, err)
	}
	if err := os.Rename(partial, path); err != nil {
		return "", fmt.Errorf("capture: rename %s to %s: %w", partial, path, err)
	}

	log.Printf("capture: exported pid=0x%x reason=%s packets=%d path=%s", pid, reason, len(snap)/packetSize, path)
	return path, nil
}

// Writer wraps an io.Writer carrying a multiplexed TS stream (all
// PIDs interleaved), feeding each packet into Manager.Observe while
// forwarding every byte unchanged to dst. Mirrors tsInspectorWriter's
// Write-and-Observe shape.
type Writer struct {
	dst io.Writer
	mgr *Manager
	buf []byte
}

// NewWriter wraps dst so every packet written through it is also
// recorded into mgr's per-PID rings.
func NewWriter(dst io.Writer, mgr *Manager) *Writer {
	return &Writer{dst: dst, mgr: mgr}
}

func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.dst.Write(p)
	if n > 0 && w.mgr != nil {
		w.observe(p[:n])
	}
	return n, err
}

func (w *Writer) observe(p []byte) {
	w.buf = append(w.buf, p...)
	for {
		if len(w.buf) < packetSize {
			return
		}
		if w.buf[0] != 0x47 {
			idx := bytes.IndexByte(w.buf[1:], 0x47)
			if idx < 0 {
				if len(w.buf) > packetSize-1 {
					w.buf = append(w.buf[:0], w.buf[len(w.buf)-(packetSize-1):]...)
				}
				return
			}
			w.buf = w.buf[idx+1:]
			continue
		}
		pkt := w.buf[:packetSize]
		pid := (uint16(pkt[1]&0x1F) << 8) | uint16(pkt[2])
		w.mgr.Observe(pid, pkt)
		w.buf = w.buf[packetSize:]
	}
}
