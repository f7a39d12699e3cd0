package pipeline

import (
	"github.com/tsforge/astragate/internal/ts"
)

// PATPMTResendInterval is the periodic resend period for a Channel's
// synthetic PAT/PMT, grounded on PAT_PMT_INTERVAL (500ms) in
// _examples/original_source/modules/mpegts/channel.c.
const PATPMTResendInterval = 500

// Channel is the single-program remux filter: given a multi-program
// transport stream it selects one program_number, builds a synthetic
// single-program PAT and a remapped PMT, and forwards only the PIDs that
// program needs — grounded on module_data_s/scan_pat/scan_pmt/
// callback_send_ts in channel.c. It is driven by PAT/PMT sections
// reassembled elsewhere in the pipeline (e.g. by internal/ts.Section
// instances attached to the source's PAT/PMT PIDs) and emits its own
// remapped TS packets through Emit.
type Channel struct {
	Name string
	PNR  uint16

	// Filter, when true, drops elementary streams the caller hasn't
	// pre-populated into PIDMap; when false (the default remux mode)
	// every ES in the selected program passes through under its
	// original PID, matching __npmt_set_item's identity fallback.
	Filter bool
	PIDMap map[uint16]uint16

	// PIDOrder, if non-empty, fixes the order PMT items are emitted in
	// and restricts the program to exactly these source PIDs, mirroring
	// mod->pid_order in scan_pmt.
	PIDOrder []uint16

	// Emit is called with every TS packet this channel produces: the
	// synthetic PAT/PMT on resend, and remapped payload packets.
	Emit func(ts.Packet)

	// JoinUpstream/LeaveUpstream request/release a source PID — wired to
	// the upstream node's JoinPID/LeavePID, mirroring stream_ts_join_pid.
	JoinUpstream  func(pid uint16)
	LeaveUpstream func(pid uint16)

	patVersion byte
	pmtPID     uint16
	pat        *ts.PAT
	pmt        *ts.PMT
	patSection *ts.Section
	pmtSection *ts.Section

	streamReload bool
}

// NewChannel creates a remux filter selecting program pnr.
func NewChannel(name string, pnr uint16) *Channel {
	return &Channel{
		Name:   name,
		PNR:    pnr,
		PIDMap: make(map[uint16]uint16),
	}
}

// ScanPAT inspects a reassembled source PAT section; on first match (or a
// CRC change forcing reload) it locates pnr's PMT PID and subscribes to
// it upstream. Grounded on scan_pat.
func (c *Channel) ScanPAT(sec *ts.Section) {
	switch sec.Status {
	case ts.StatusUnchanged:
		return
	case ts.StatusOK:
	case ts.StatusCRC32Changed:
		c.streamReload = true
		return
	default:
		return
	}

	pat, ok := sec.Data.(*ts.PAT)
	if !ok {
		return
	}

	c.pat = &ts.PAT{
		TransportStreamID: pat.TransportStreamID,
		Version:           c.patVersion,
		CurrentNext:       true,
	}
	c.patVersion = (c.patVersion + 1) & 0x1F

	for _, item := range pat.Items {
		if item.PNR == c.PNR {
			c.pmtPID = item.PID
			if c.JoinUpstream != nil {
				c.JoinUpstream(c.pmtPID)
			}
			return
		}
	}
}

// setItem applies one elementary stream from the source PMT into the
// outgoing synthetic PMT, honoring Filter/PIDMap identity-fallback,
// mirroring __npmt_set_item.
func (c *Channel) setItem(item ts.PMTItem, srcPCRPID uint16) {
	custom, mapped := c.PIDMap[item.PID]
	if !mapped {
		if c.Filter {
			return
		}
		custom = item.PID
		c.PIDMap[item.PID] = custom
	}

	c.pmt.ItemAdd(custom, item.Type, item.Desc)
	if c.JoinUpstream != nil {
		c.JoinUpstream(item.PID)
	}
	if srcPCRPID == item.PID {
		c.pmt.PCRPID = custom
	}
}

// ScanPMT inspects a reassembled source PMT for the selected program,
// builds the remapped outgoing PMT (and updates the outgoing PAT's PMT
// entry), and subscribes upstream to every PID the program needs.
// Grounded on scan_pmt.
func (c *Channel) ScanPMT(sec *ts.Section) {
	switch sec.Status {
	case ts.StatusUnchanged:
		return
	case ts.StatusOK:
	case ts.StatusCRC32Changed:
		c.streamReload = true
		return
	default:
		return
	}
	if c.pat == nil {
		return
	}

	src, ok := sec.Data.(*ts.PMT)
	if !ok {
		return
	}

	c.pmt = &ts.PMT{
		PNR:         src.PNR,
		Desc:        src.Desc,
		Version:     src.Version,
		CurrentNext: src.CurrentNext,
	}

	c.pat.ItemAdd(c.pmtPID, c.pmt.PNR)

	if len(c.PIDOrder) > 0 {
		for _, pid := range c.PIDOrder {
			if item, found := src.ItemGet(pid); found {
				c.setItem(item, src.PCRPID)
			}
		}
	} else {
		for _, item := range src.Items {
			c.setItem(item, src.PCRPID)
		}
	}

	if c.pmt.PCRPID == 0 {
		custom, mapped := c.PIDMap[src.PCRPID]
		if !mapped {
			custom = src.PCRPID
			c.PIDMap[src.PCRPID] = custom
		}
		c.pmt.PCRPID = custom
		if c.JoinUpstream != nil {
			c.JoinUpstream(src.PCRPID)
		}
	}

	c.patSection = ts.NewSection(ts.PacketPAT, ts.PIDPAT)
	ts.AssemblePAT(c.patSection, c.pat)
	c.pmtSection = ts.NewSection(ts.PacketPMT, c.pmtPID)
	ts.AssemblePMT(c.pmtSection, c.pmt)
}

// ResendPATPMT re-emits the current synthetic PAT and PMT, called on a
// roughly PATPMTResendInterval cadence by the owning reactor timer,
// mirroring send_custom_pat_pmt.
func (c *Channel) ResendPATPMT() {
	if c.Emit == nil {
		return
	}
	if c.patSection != nil {
		c.patSection.Demux(c.Emit)
	}
	if c.pmtSection != nil {
		c.pmtSection.Demux(c.Emit)
	}
}

// HandlePacket remaps a source payload packet's PID through PIDMap and
// forwards it via Emit, dropping packets for PIDs this channel never
// subscribed to. A stream_reload in progress (PAT/PMT CRC changed)
// suppresses forwarding until the caller has rebuilt via fresh
// ScanPAT/ScanPMT calls, matching callback_send_ts's reload gate.
func (c *Channel) HandlePacket(pkt ts.Packet) {
	if c.streamReload {
		return
	}
	pid := pkt.PID()
	custom, ok := c.PIDMap[pid]
	if !ok || c.Emit == nil {
		return
	}
	if custom == pid {
		c.Emit(pkt)
		return
	}
	remapped := make(ts.Packet, ts.PacketLen)
	copy(remapped, pkt)
	remapped.SetPID(custom)
	c.Emit(remapped)
}

// Reloading reports whether a PAT/PMT CRC change is pending a rebuild.
func (c *Channel) Reloading() bool { return c.streamReload }

// PMT returns the source program's current PMT, or nil before the
// first successful ScanPMT. Callers use this to reach the CA
// descriptors ScanPMT doesn't otherwise surface (e.g. ECM PID
// discovery for softcam/CI dispatch).
func (c *Channel) PMT() *ts.PMT { return c.pmt }

// PMTPID returns the source PMT PID located by ScanPAT, or 0 before
// the program has been found in a PAT.
func (c *Channel) PMTPID() uint16 { return c.pmtPID }

// AcceptReload clears the reload flag once the caller has released all
// upstream PID subscriptions and is ready to rebuild from a fresh PAT,
// mirroring the join_pat/stream_ts_leave_all dance in callback_send_ts.
func (c *Channel) AcceptReload(leaveAll func(pid uint16)) {
	if !c.streamReload {
		return
	}
	if leaveAll != nil {
		for pid := range c.PIDMap {
			leaveAll(pid)
		}
	}
	c.PIDMap = make(map[uint16]uint16)
	c.pat = nil
	c.pmt = nil
	c.patSection = nil
	c.pmtSection = nil
	c.streamReload = false
}
