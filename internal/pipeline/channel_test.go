package pipeline

import (
	"testing"

	"github.com/tsforge/astragate/internal/ts"
)

func reassemble(t *testing.T, typ ts.PacketType, pid uint16, section *ts.Section, parse func(*ts.Section)) *ts.Section {
	t.Helper()
	reasm := ts.NewSection(typ, pid)
	section.Demux(func(pkt ts.Packet) {
		reasm.Mux(pkt, parse)
	})
	return reasm
}

func TestChannelSelectsProgramAndRemaps(t *testing.T) {
	srcPAT := &ts.PAT{TransportStreamID: 1, CurrentNext: true, Items: []ts.PATItem{
		{PID: 0x100, PNR: 1},
		{PID: 0x200, PNR: 2},
	}}
	patSec := ts.NewSection(ts.PacketPAT, ts.PIDPAT)
	ts.AssemblePAT(patSec, srcPAT)

	srcPMT := &ts.PMT{PNR: 1, PCRPID: 0x101, CurrentNext: true, Items: []ts.PMTItem{
		{PID: 0x101, Type: 0x02},
		{PID: 0x102, Type: 0x04},
	}}
	pmtSec := ts.NewSection(ts.PacketPMT, 0x100)
	ts.AssemblePMT(pmtSec, srcPMT)

	var joined []uint16
	var emitted []ts.Packet
	ch := NewChannel("ch1", 1)
	ch.JoinUpstream = func(pid uint16) { joined = append(joined, pid) }
	ch.Emit = func(pkt ts.Packet) {
		cp := make(ts.Packet, ts.PacketLen)
		copy(cp, pkt)
		emitted = append(emitted, cp)
	}

	reassemble(t, ts.PacketPAT, ts.PIDPAT, patSec, func(s *ts.Section) {
		ts.ParsePAT(s)
		ch.ScanPAT(s)
	})
	if ch.pmtPID != 0x100 {
		t.Fatalf("pmtPID = %#x, want 0x100", ch.pmtPID)
	}

	reassemble(t, ts.PacketPMT, 0x100, pmtSec, func(s *ts.Section) {
		ts.ParsePMT(s)
		ch.ScanPMT(s)
	})

	if ch.pmt == nil {
		t.Fatal("pmt not built")
	}
	if len(ch.pmt.Items) != 2 {
		t.Fatalf("pmt items = %d, want 2", len(ch.pmt.Items))
	}
	if ch.pmt.PCRPID != 0x101 {
		t.Fatalf("pcr pid = %#x, want 0x101 (identity remap)", ch.pmt.PCRPID)
	}

	ch.ResendPATPMT()
	if len(emitted) == 0 {
		t.Fatal("ResendPATPMT emitted nothing")
	}

	emitted = nil
	pkt := makePacket(0x101)
	ch.HandlePacket(pkt)
	if len(emitted) != 1 {
		t.Fatalf("HandlePacket forwarded %d packets, want 1", len(emitted))
	}
	if got := emitted[0].PID(); got != 0x101 {
		t.Fatalf("forwarded pid = %#x, want 0x101", got)
	}

	unknown := makePacket(0x999)
	emitted = nil
	ch.HandlePacket(unknown)
	if len(emitted) != 0 {
		t.Fatalf("HandlePacket forwarded an unsubscribed pid")
	}
}

func TestChannelFilterDropsUnmappedPID(t *testing.T) {
	srcPMT := &ts.PMT{PNR: 1, PCRPID: 0x101, CurrentNext: true, Items: []ts.PMTItem{
		{PID: 0x101, Type: 0x02},
		{PID: 0x102, Type: 0x04},
	}}
	pmtSec := ts.NewSection(ts.PacketPMT, 0x100)
	ts.AssemblePMT(pmtSec, srcPMT)

	ch := NewChannel("ch1", 1)
	ch.Filter = true
	ch.PIDMap[0x101] = 0x151 // only the video PID is explicitly allowed
	ch.pat = &ts.PAT{TransportStreamID: 1, CurrentNext: true}
	ch.pmtPID = 0x100

	reassemble(t, ts.PacketPMT, 0x100, pmtSec, func(s *ts.Section) {
		ts.ParsePMT(s)
		ch.ScanPMT(s)
	})

	if len(ch.pmt.Items) != 1 {
		t.Fatalf("filtered pmt items = %d, want 1", len(ch.pmt.Items))
	}
	if ch.pmt.Items[0].PID != 0x151 {
		t.Fatalf("filtered item pid = %#x, want 0x151", ch.pmt.Items[0].PID)
	}
}
