package ts

import (
	"testing"
	"time"
)

// buildPESPacket returns a single TS packet (no adaptation field) whose
// 184-byte payload is a complete PES packet: a fixed 6-byte PES header
// followed by 178 bytes of payload, so PES_packet_length (178) plus
// PESHeaderSize equals the full TS payload and Mux completes the PES
// packet in one call.
func buildPESPacket(pid uint16, streamID byte, fill byte) Packet {
	pkt := make(Packet, PacketLen)
	pkt[0] = SyncByte
	pkt.SetPID(pid)
	pkt.SetPUSI(true)
	pkt[3] = 0x10 // payload only

	body := pkt[HeaderLen:]
	body[0], body[1], body[2] = 0x00, 0x00, 0x01
	body[3] = streamID
	declared := len(body) - PESHeaderSize
	body[4] = byte(declared >> 8)
	body[5] = byte(declared)
	for i := PESHeaderSize; i < len(body); i++ {
		body[i] = fill
	}
	return pkt
}

func collectPESPackets(p *PES) []Packet {
	var out []Packet
	p.Demux(func(pkt Packet) {
		cp := make(Packet, PacketLen)
		copy(cp, pkt)
		out = append(out, cp)
	})
	return out
}

func TestPESMuxCompletesOnExactLength(t *testing.T) {
	p := NewPES(PacketVideo, 0x100)
	pkt := buildPESPacket(0x100, 0xE0, 0xAB)

	var got *PES
	p.Mux(pkt, func(pes *PES) { got = pes })

	if got == nil {
		t.Fatal("expected Mux to deliver a complete PES packet in one call")
	}
	if len(got.Buffer()) != BodyLen {
		t.Fatalf("buffer len = %d, want %d", len(got.Buffer()), BodyLen)
	}
	if got.Buffer()[0] != 0x00 || got.Buffer()[1] != 0x00 || got.Buffer()[2] != 0x01 {
		t.Fatalf("buffer does not start with a PES start code: % x", got.Buffer()[:3])
	}
}

func TestPESMuxWaitsForNextPUSIWhenLengthUnbounded(t *testing.T) {
	p := NewPES(PacketVideo, 0x100)

	pkt := buildPESPacket(0x100, 0xE0, 0xAB)
	// PES_packet_length 0 means "until next PUSI" per §3.3.
	pkt[HeaderLen+4] = 0
	pkt[HeaderLen+5] = 0

	fired := false
	p.Mux(pkt, func(*PES) { fired = true })
	if fired {
		t.Fatal("a zero-length PES packet must not complete until the next PUSI arrives")
	}

	next := buildPESPacket(0x100, 0xE0, 0xCD)
	next.SetContinuityCounter((pkt.ContinuityCounter() + 1) & 0x0F)
	p.Mux(next, func(*PES) { fired = true })
	if !fired {
		t.Fatal("expected the pending PES packet to complete once the next PUSI arrives")
	}
}

func TestPESMuxMuxDemuxRoundTrip(t *testing.T) {
	p := NewPES(PacketVideo, 0x100)
	pkt := buildPESPacket(0x100, 0xE0, 0x42)

	var reassembled []byte
	p.Mux(pkt, func(pes *PES) {
		reassembled = append([]byte(nil), pes.Buffer()...)
	})
	if reassembled == nil {
		t.Fatal("expected a reassembled PES packet")
	}

	packets := collectPESPackets(p)
	if len(packets) != 1 {
		t.Fatalf("got %d TS packets, want 1 (body fits in a single packet)", len(packets))
	}
	out := packets[0]
	if out.PID() != 0x100 {
		t.Errorf("PID = %#x, want 0x100", out.PID())
	}
	if !out.PUSI() {
		t.Error("first fragment of a PES packet must carry PUSI")
	}
	if got := out.Payload(); string(got) != string(reassembled) {
		t.Errorf("demuxed payload does not match the reassembled PES packet")
	}
}

// TestCheckPCRTimeTicksAtConfiguredInterval drives checkPCRTime directly
// with a zero-epoch blockBegin so the tick boundary arithmetic can be
// verified without depending on wall-clock time, per check_pcr_time
// (pes.c).
func TestCheckPCRTimeTicksAtConfiguredInterval(t *testing.T) {
	p := &PES{PCRInterval: 40 * time.Millisecond}
	p.bufferSize = 100
	p.blockBegin = time.Unix(0, 0)
	p.blockTotal = 100 * time.Millisecond

	p.bufferSkip = 0
	if p.checkPCRTime() {
		t.Fatal("expected no PCR tick before the configured interval elapses")
	}

	p.bufferSkip = 50
	if !p.checkPCRTime() {
		t.Fatal("expected a PCR tick once the block offset reaches PCRInterval")
	}
	if p.pcrTime != 40*time.Millisecond {
		t.Errorf("pcrTime = %s, want 40ms", p.pcrTime)
	}
	if p.pcrTimeOffset != 10*time.Millisecond {
		t.Errorf("pcrTimeOffset = %s, want 10ms", p.pcrTimeOffset)
	}

	if p.checkPCRTime() {
		t.Fatal("expected no immediate second tick at the same block offset")
	}
}

// TestDemuxInsertsPCRInMicrosecondUnits pins pcrTime/pcrTimeOffset so the
// very first Demux loop iteration fires a PCR tick with a known pcrTime,
// then checks the emitted 27MHz PCR value against pcrTime converted to
// microseconds first — the unit §4.1 and check_pcr_time/pes.c require:
// pcr_time is microsecond-denominated, not nanosecond-denominated.
func TestDemuxInsertsPCRInMicrosecondUnits(t *testing.T) {
	p := NewPES(PacketVideo, 0x100)
	p.PCRInterval = 10 * time.Millisecond
	p.pcrTimeOffset = 50 * time.Millisecond // forces the first tick immediately
	p.blockBegin = time.Unix(0, 0)

	p.bufferSize = BodyLen
	for i := range p.buffer[:BodyLen] {
		p.buffer[i] = 0xAB
	}

	packets := collectPESPackets(p)
	if len(packets) != 2 {
		t.Fatalf("got %d packets, want 2 (one PCR-only, one payload)", len(packets))
	}

	pcrPkt := packets[0]
	if !pcrPkt.PCRFlag() {
		t.Fatal("expected the first emitted packet to carry a PCR")
	}
	if pcrPkt.PUSI() {
		t.Error("a PCR-only adaptation packet must not carry PUSI")
	}

	pcr, ok := pcrPkt.PCR()
	if !ok {
		t.Fatal("PCR() reported no PCR present")
	}

	// pcrTime was advanced to PCRInterval (10ms = 10000us) by the tick;
	// at exactly 27 ticks/us the 27MHz PCR should equal 10000*27 with no
	// remainder — a nanosecond-scaled computation would be ~1000x larger.
	const wantPCR = 10000 * 27
	if pcr != wantPCR {
		t.Errorf("PCR = %d, want %d (10ms at 27 ticks/us)", pcr, wantPCR)
	}

	payloadPkt := packets[1]
	if !payloadPkt.PUSI() {
		t.Error("the payload packet following the PCR tick must carry PUSI")
	}
}
