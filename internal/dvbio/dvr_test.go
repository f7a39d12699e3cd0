package dvbio

import (
	"testing"

	"github.com/tsforge/astragate/internal/ts"
)

func TestDVRFeedResyncsOnDroppedBytes(t *testing.T) {
	var got []ts.Packet
	d := &DVR{OnPacket: func(pkt ts.Packet) {
		cp := make(ts.Packet, ts.PacketLen)
		copy(cp, pkt)
		got = append(got, cp)
	}}

	pkt := make([]byte, ts.PacketLen)
	pkt[0] = ts.SyncByte
	pkt[1] = 0x01

	garbage := []byte{0x00, 0x11, 0x22}
	chunk := append(append([]byte{}, garbage...), pkt...)
	chunk = append(chunk, pkt...)

	d.feed(chunk)

	if len(got) != 2 {
		t.Fatalf("packets delivered = %d, want 2", len(got))
	}
	if d.SyncDropped() != uint64(len(garbage)) {
		t.Fatalf("syncDropped = %d, want %d", d.SyncDropped(), len(garbage))
	}
}

func TestDVRFeedHoldsBackPartialPacket(t *testing.T) {
	var got int
	d := &DVR{OnPacket: func(ts.Packet) { got++ }}

	partial := make([]byte, ts.PacketLen-10)
	partial[0] = ts.SyncByte
	d.feed(partial)

	if got != 0 {
		t.Fatalf("delivered %d packets from a short chunk, want 0", got)
	}
}
