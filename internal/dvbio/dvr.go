package dvbio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/tsforge/astragate/internal/ts"
)

// defaultChunkBytes is the DVR read-chunk size in bytes when no explicit
// ring size is configured (1 MiB), per §4.3's
// "in chunks of (ring_size·4096) or 1 MiB by default".
const defaultChunkBytes = 1 << 20

// reopenDelay is how long a transient DVR read failure waits before a
// one-shot reopen, per §4.3.
const reopenDelay = 5 * time.Second

// DVR drains one adapter's DVR character device in fixed-size chunks,
// splits the stream into 188-byte packets (resyncing on sync-byte loss),
// and hands each packet to OnPacket. Grounded on the "DVR pump" paragraph
// of §4.3. The original's lock-free ring is not reproduced here: each
// Pump call reads into its own buffer and delivers the packets to
// OnPacket synchronously before returning.
type DVR struct {
	Adapter, Device int
	RingPackets     int // 0 = use defaultChunkBytes

	// OnPacket is called once per validated 188-byte packet.
	OnPacket func(ts.Packet)

	// OnDeviceLost is called when read failures persist past a
	// configured timeout, surfacing "device lost" to pipeline children.
	OnDeviceLost func(error)

	fh           *os.File
	devName      string
	syncDropped  uint64
	readFailures int
}

// NewDVR constructs a DVR pump bound to one adapter/device pair.
func NewDVR(adapter, device int) *DVR {
	return &DVR{
		Adapter: adapter, Device: device,
		devName: fmt.Sprintf("/dev/dvb/adapter%d/dvr%d", adapter, device),
	}
}

// Open opens the DVR device node read-only.
func (d *DVR) Open() error {
	fh, err := os.Open(d.devName)
	if err != nil {
		return fmt.Errorf("dvbio: open dvr: %w", err)
	}
	d.fh = fh
	d.readFailures = 0
	return nil
}

// Close releases the DVR handle.
func (d *DVR) Close() error {
	if d.fh == nil {
		return nil
	}
	err := d.fh.Close()
	d.fh = nil
	return err
}

func (d *DVR) chunkSize() int {
	if d.RingPackets > 0 {
		return d.RingPackets * 4096
	}
	return defaultChunkBytes
}

// Pump performs one blocking read of up to chunkSize bytes and splits it
// into sync-validated 188-byte TS packets delivered via OnPacket. It is
// meant to be run on a dedicated goroutine in a loop by the caller (the
// reactor's worker pool, per §5); Pump itself performs no looping so
// tests can drive it deterministically one read at a time.
func (d *DVR) Pump(deviceLostTimeout time.Duration) error {
	buf := make([]byte, d.chunkSize())
	n, err := d.fh.Read(buf)
	if err != nil {
		return d.handleReadError(err, deviceLostTimeout)
	}
	d.readFailures = 0
	d.feed(buf[:n])
	return nil
}

func (d *DVR) handleReadError(err error, deviceLostTimeout time.Duration) error {
	if errors.Is(err, io.EOF) {
		return err
	}
	d.readFailures++
	time.Sleep(reopenDelay)
	if reerr := d.reopen(); reerr != nil {
		if time.Duration(d.readFailures)*reopenDelay > deviceLostTimeout && d.OnDeviceLost != nil {
			d.OnDeviceLost(err)
		}
		return reerr
	}
	return nil
}

func (d *DVR) reopen() error {
	d.Close()
	return d.Open()
}

// feed splits a raw read into 188-byte packets. A byte stream not
// currently aligned on a sync byte (0x47) is resynced by scanning forward
// one byte at a time, incrementing syncDropped per skipped byte, per
// §4.3's "validates sync byte 0x47 (dropping non-sync bytes with a
// counter increment)".
func (d *DVR) feed(chunk []byte) {
	for len(chunk) > 0 {
		if chunk[0] != ts.SyncByte {
			chunk = chunk[1:]
			d.syncDropped++
			continue
		}
		if len(chunk) < ts.PacketLen {
			return
		}
		if d.OnPacket != nil {
			d.OnPacket(ts.Packet(chunk[:ts.PacketLen]))
		}
		chunk = chunk[ts.PacketLen:]
	}
}

// SyncDropped reports how many non-sync bytes have been skipped while
// resynchronizing the DVR byte stream.
func (d *DVR) SyncDropped() uint64 { return d.syncDropped }
