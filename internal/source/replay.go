package source

import (
	"context"
	"fmt"
	"io"

	"github.com/tsforge/astragate/internal/runtime"
	"github.com/tsforge/astragate/internal/ts"
)

// defaultReplayBitsPerSecond seeds the pacer before the first PCR pair
// has been observed to measure the stream's real rate.
const defaultReplayBitsPerSecond = 8_000_000

const pcrHz = 27_000_000

// ReplaySource reads 188-byte TS packets from r and paces their
// delivery to OnPacket at the stream's own PCR-derived bitrate, using
// internal/runtime.Pacer instead of a hand-rolled sleep-per-packet
// loop, per SPEC_FULL.md's PES mux pacing note. Grounded on
// dvbio.DVR's read-and-feed shape, with a rate.Limiter gate added
// ahead of each packet delivery and no resync logic, since a replay
// file is always packet-aligned.
type ReplaySource struct {
	OnPacket func(ts.Packet)

	r     io.Reader
	pacer *runtime.Pacer

	pcrPID    uint16
	pcrPIDSet bool
	lastPCR   uint64
	lastSet   bool
	sincePCR  int
}

// NewReplaySource wraps r (typically an *os.File opened over a
// recorded transport stream) with PCR-paced delivery.
func NewReplaySource(r io.Reader) *ReplaySource {
	return &ReplaySource{
		r:     r,
		pacer: runtime.NewPacer(defaultReplayBitsPerSecond, ts.PacketLen),
	}
}

// Run reads and paces the entire stream until r is exhausted or ctx is
// canceled, delivering every packet to OnPacket in order.
func (s *ReplaySource) Run(ctx context.Context) error {
	buf := make([]byte, ts.PacketLen)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := io.ReadFull(s.r, buf); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil
			}
			return fmt.Errorf("source: replay read: %w", err)
		}
		if buf[0] != ts.SyncByte {
			return fmt.Errorf("source: replay stream lost sync (not packet-aligned)")
		}
		pkt := ts.Packet(append([]byte(nil), buf...))
		s.observePCR(pkt)

		if err := s.pacer.WaitPacket(ctx, ts.PacketLen); err != nil {
			return err
		}
		if s.OnPacket != nil {
			s.OnPacket(pkt)
		}
	}
}

// observePCR updates the pacer's target bitrate from the delta between
// consecutive PCR values on the stream's PCR-bearing PID (the first
// PID seen carrying a PCR is adopted as that PID for the run).
func (s *ReplaySource) observePCR(pkt ts.Packet) {
	pcr, ok := pkt.PCR()
	if !ok {
		s.sincePCR++
		return
	}
	pid := pkt.PID()
	if !s.pcrPIDSet {
		s.pcrPID = pid
		s.pcrPIDSet = true
	}
	if pid != s.pcrPID {
		s.sincePCR++
		return
	}

	if !s.lastSet {
		s.lastPCR = pcr
		s.lastSet = true
		s.sincePCR = 0
		return
	}

	packets := s.sincePCR + 1
	delta := pcrDelta(s.lastPCR, pcr)
	if delta > 0 && packets > 0 {
		seconds := float64(delta) / pcrHz
		bitsPerSecond := int(float64(packets*ts.PacketLen*8) / seconds)
		if bitsPerSecond > 0 {
			s.pacer.SetRate(bitsPerSecond)
		}
	}
	s.lastPCR = pcr
	s.sincePCR = 0
}

// pcrDelta handles the 27MHz PCR counter's ~95-hour wraparound.
func pcrDelta(last, cur uint64) uint64 {
	const pcrMax = (1 << 33) * 300
	if cur >= last {
		return cur - last
	}
	return pcrMax - last + cur
}
