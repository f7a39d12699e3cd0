package source

import (
	"testing"

	"github.com/tsforge/astragate/internal/ts"
)

func TestUDPSourceFeedSplitsAndResyncs(t *testing.T) {
	u := NewUDPSource("239.1.1.1:1234", "")
	var got []uint16
	u.OnPacket = func(p ts.Packet) { got = append(got, p.PID()) }

	pkt := make([]byte, ts.PacketLen)
	pkt[0] = ts.SyncByte
	ts.Packet(pkt).SetPID(0x50)

	chunk := append([]byte{0xAA, 0xBB}, pkt...)
	u.feed(chunk)

	if len(got) != 1 || got[0] != 0x50 {
		t.Fatalf("got %v, want one packet with pid 0x50", got)
	}
	if u.SyncDropped() != 2 {
		t.Fatalf("SyncDropped() = %d, want 2", u.SyncDropped())
	}
}

func TestUDPSourceFeedStopsOnShortTrailingPacket(t *testing.T) {
	u := NewUDPSource("239.1.1.1:1234", "")
	calls := 0
	u.OnPacket = func(ts.Packet) { calls++ }

	pkt := make([]byte, ts.PacketLen)
	pkt[0] = ts.SyncByte
	short := append(pkt, ts.SyncByte, 0x01, 0x02)
	u.feed(short)

	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (trailing short fragment should not be delivered)", calls)
	}
}

func TestStripRTPDetectsHeader(t *testing.T) {
	sevenPackets := make([]byte, ts.PacketLen*7)
	for i := 0; i < 7; i++ {
		sevenPackets[i*ts.PacketLen] = ts.SyncByte
	}
	rtpHeader := make([]byte, rtpHeaderLen)
	rtpHeader[0] = 0x80 // version 2
	datagram := append(rtpHeader, sevenPackets...)

	stripped := stripRTP(datagram)
	if len(stripped) != len(sevenPackets) {
		t.Fatalf("stripRTP did not remove the RTP header: len=%d want=%d", len(stripped), len(sevenPackets))
	}
	if stripped[0] != ts.SyncByte {
		t.Fatalf("stripped payload does not start on a TS sync byte")
	}
}

func TestStripRTPLeavesRawTSUnchanged(t *testing.T) {
	raw := make([]byte, ts.PacketLen*3)
	for i := 0; i < 3; i++ {
		raw[i*ts.PacketLen] = ts.SyncByte
	}
	stripped := stripRTP(raw)
	if len(stripped) != len(raw) {
		t.Fatalf("stripRTP altered a raw (non-RTP) TS datagram")
	}
}
