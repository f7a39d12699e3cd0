package ts

import "testing"

func buildPAT(t *testing.T, pat *PAT) *Section {
	t.Helper()
	s := NewSection(PacketPAT, PIDPAT)
	AssemblePAT(s, pat)
	return s
}

func TestPATRoundTrip(t *testing.T) {
	want := &PAT{
		TransportStreamID: 0x1234,
		CurrentNext:       true,
		Items: []PATItem{
			{PID: 0x0010, PNR: 0},
			{PID: 0x0100, PNR: 1},
		},
	}
	s := buildPAT(t, want)

	var got *PAT
	packets := collectPackets(t, s)
	reasm := NewSection(PacketPAT, PIDPAT)
	for _, pkt := range packets {
		reasm.Mux(pkt, func(sec *Section) {
			ParsePAT(sec)
			if sec.Status != StatusOK {
				t.Fatalf("parse status = %v", sec.Status)
			}
			got = sec.Data.(*PAT)
		})
	}
	if got == nil {
		t.Fatal("no section reassembled")
	}
	if got.TransportStreamID != want.TransportStreamID {
		t.Errorf("tsid = %#x, want %#x", got.TransportStreamID, want.TransportStreamID)
	}
	if len(got.Items) != len(want.Items) {
		t.Fatalf("items = %d, want %d", len(got.Items), len(want.Items))
	}
	for i := range want.Items {
		if got.Items[i] != want.Items[i] {
			t.Errorf("item[%d] = %+v, want %+v", i, got.Items[i], want.Items[i])
		}
	}
}

func collectPackets(t *testing.T, s *Section) []Packet {
	t.Helper()
	var out []Packet
	s.Demux(func(pkt Packet) {
		cp := make(Packet, PacketLen)
		copy(cp, pkt)
		out = append(out, cp)
	})
	return out
}

func TestSectionCRCSelfVerifies(t *testing.T) {
	s := buildPAT(t, &PAT{TransportStreamID: 1, CurrentNext: true})
	if !s.VerifyCRC() {
		t.Fatal("assembled section must self-verify")
	}
	// Corrupting one payload byte must break verification.
	s.buffer[10] ^= 0xFF
	if s.VerifyCRC() {
		t.Fatal("corrupted section unexpectedly verified")
	}
}

func TestPacketPIDRoundTrip(t *testing.T) {
	pkt := make(Packet, PacketLen)
	pkt[0] = SyncByte
	pkt.SetPID(0x1FFE)
	if got := pkt.PID(); got != 0x1FFE {
		t.Errorf("PID() = %#x, want 0x1FFE", got)
	}
	pkt.SetContinuityCounter(0x0F)
	if got := pkt.ContinuityCounter(); got != 0x0F {
		t.Errorf("ContinuityCounter() = %#x, want 0xF", got)
	}
}

func TestPSIMuxSinglePacketReassembles(t *testing.T) {
	want := &PAT{TransportStreamID: 7, CurrentNext: true, Items: []PATItem{{PID: 0x20, PNR: 1}, {PID: 0x21, PNR: 2}, {PID: 0x22, PNR: 3}}}
	s := buildPAT(t, want)
	packets := collectPackets(t, s)
	if len(packets) < 1 {
		t.Fatal("expected at least one packet")
	}

	reasm := NewSection(PacketPAT, PIDPAT)
	called := false
	reasm.Mux(packets[0], func(*Section) { called = true })
	if len(packets) == 1 && !called {
		t.Fatal("single-packet section should reassemble immediately")
	}
}
