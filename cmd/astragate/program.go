package main

import (
	"fmt"
	"time"

	"github.com/tsforge/astragate/internal/astlog"
	"github.com/tsforge/astragate/internal/camclient"
	"github.com/tsforge/astragate/internal/cas"
	"github.com/tsforge/astragate/internal/ci"
	"github.com/tsforge/astragate/internal/descrambler"
	"github.com/tsforge/astragate/internal/pipeline"
	"github.com/tsforge/astragate/internal/ts"
)

// program binds one selected program_number's PAT/PMT scan to CA
// descriptor discovery and entitlement-message dispatch, mirroring how
// channel.c's scan_pmt feeds ca_set_pnr/ca_set_descriptors in the
// original softcam wiring. It owns no network or device I/O itself —
// those come from the optional camclient.Client and ci.Device it's
// constructed with.
type program struct {
	log *astlog.Logger

	channel *pipeline.Channel

	// Hardware CI path: present when a CAM is in a Common Interface
	// slot and descrambles in hardware once it accepts the CA-PMT.
	ci *ci.Device

	// Software CAM path: present when a newcamd server resolves ECMs
	// into control words this process must apply itself.
	cam *camclient.Client

	variant    cas.Variant
	state      *cas.State
	ecmPID     uint16
	ecmSection *ts.Section

	// descramble is the opaque CSA engine control words get applied to
	// once camclient resolves them. No concrete implementation exists
	// in this tree (see internal/descrambler's package doc) — it stays
	// nil unless a caller injects one, in which case ECM resolution
	// runs but packets pass through unmodified; see DESIGN.md.
	descramble descrambler.Descrambler
	cluster    *descrambler.Cluster

	joinECM func(pid uint16)

	lastCAPMT *ci.CAPMT

	patSection *ts.Section
	pmtSection *ts.Section

	// PCR pacing: once ScanPMT locates the program's PCR-bearing
	// elementary stream, packets on pcrPID are reassembled into PES
	// packets and re-fragmented through pes instead of passed straight
	// through the Channel, so a synthetic PCR is re-inserted at
	// pcrInterval regardless of how the source stream paces its own,
	// per §3.3's "per-PES-instance pacing channel".
	pcrPID      uint16
	pes         *ts.PES
	pcrInterval time.Duration
}

func newProgram(name string, pnr uint16, log *astlog.Logger, cam *camclient.Client, ciDev *ci.Device, pcrInterval time.Duration) *program {
	ch := pipeline.NewChannel(name, pnr)
	return &program{
		log:         log,
		channel:     ch,
		cam:         cam,
		ci:          ciDev,
		state:       &cas.State{},
		cluster:     descrambler.NewCluster(descrambler.DefaultClusterSize),
		patSection:  ts.NewSection(ts.PacketPAT, ts.PIDPAT),
		pcrInterval: pcrInterval,
	}
}

// ScanPAT forwards to the underlying Channel; kept as a thin passthrough
// so callers only need to hold a *program, not a *program and a
// *pipeline.Channel both wired to the same upstream join/leave funcs.
func (p *program) ScanPAT(sec *ts.Section) { p.channel.ScanPAT(sec) }

// ScanPMT forwards to the Channel and then re-derives CA wiring from
// the freshly scanned PMT, mirroring scan_pmt's trailing
// stream_ca_set_pmt / ca_set_descriptors call.
func (p *program) ScanPMT(sec *ts.Section) {
	p.channel.ScanPMT(sec)
	pmt := p.channel.PMT()
	if pmt == nil {
		return
	}
	p.setupPCRPacing(pmt)
	p.discoverCA(pmt, sec.CRC32)
}

// setupPCRPacing (re)builds the PES pacer for the program's PCR-bearing
// PID whenever ScanPMT locates (or relocates) it, mirroring
// mpegts_pes_init being called once per discovered PCR PID. The pacer
// emits on the Channel's remapped PID, not the source PID, so it still
// lands on the right outgoing PID under a non-identity PIDMap.
func (p *program) setupPCRPacing(pmt *ts.PMT) {
	if pmt.PCRPID == 0 || p.pcrInterval <= 0 {
		return
	}
	if p.pes != nil && p.pcrPID == pmt.PCRPID {
		return
	}

	outPID := pmt.PCRPID
	if custom, ok := p.channel.PIDMap[pmt.PCRPID]; ok {
		outPID = custom
	}
	kind := ts.PacketData
	for _, item := range pmt.Items {
		if item.PID == pmt.PCRPID {
			kind = ts.StreamTypeCategory(item.Type)
			break
		}
	}

	p.pcrPID = pmt.PCRPID
	p.pes = ts.NewPES(kind, outPID)
	p.pes.PCRInterval = p.pcrInterval
}

// discoverCA scans the program-level and every elementary-stream CA
// descriptor for a CAID a known cas.Variant claims, subscribes to its
// ECM PID, and (if a CI device is configured) builds/sends the CA-PMT
// so a hardware CAM can pick up descrambling on its own, mirroring
// scan_pmt's two parallel consumers: the softcam CAS dispatch and the
// CI ca_pmt path.
func (p *program) discoverCA(pmt *ts.PMT, crc uint32) {
	descLists := make([]*ts.DescriptorList, 0, len(pmt.Items)+1)
	if pmt.Desc != nil {
		descLists = append(descLists, pmt.Desc)
	}
	for _, item := range pmt.Items {
		if item.Desc != nil {
			descLists = append(descLists, item.Desc)
		}
	}

	if p.variant == nil {
		for _, dl := range descLists {
			for _, cad := range dl.CADescriptors() {
				v := cas.ForCAID(cad.CAID)
				if v == nil {
					continue
				}
				ecmPID, ok := v.CheckDescriptor(cad)
				if !ok {
					continue
				}
				p.variant = v
				p.ecmPID = ecmPID
				p.ecmSection = ts.NewSection(ts.PacketECM, ecmPID)
				p.log.Printf("selected CAS variant %s, ecm pid %d", v.Name(), ecmPID)
				if p.joinECM != nil {
					p.joinECM(ecmPID)
				}
				break
			}
			if p.variant != nil {
				break
			}
		}
	}

	if p.ci != nil {
		capmt := ci.NewCAPMT(p.channel.PNR, pmt, crc)
		if p.lastCAPMT == nil {
			p.lastCAPMT = capmt
			p.ci.SubscribeCAPMT(p.channel.PNR, capmt, ci.CAPMTListOnly, ci.CAPMTCmdOKDescrambling)
		} else if p.lastCAPMT.Update(pmt, crc) {
			p.ci.SubscribeCAPMT(p.channel.PNR, p.lastCAPMT, ci.CAPMTListAdd, ci.CAPMTCmdOKDescrambling)
		}
	}
}

// Dispatch routes one source TS packet arriving on this program's sink
// node: its own PAT feeds ScanPAT, the located PMT PID feeds ScanPMT,
// the located ECM PID feeds the CAS dispatch, and anything else passes
// straight to the Channel remux.
func (p *program) Dispatch(pkt ts.Packet) {
	pid := pkt.PID()
	switch {
	case pid == ts.PIDPAT:
		p.patSection.Mux(pkt, func(s *ts.Section) {
			ts.ParsePAT(s)
			p.ScanPAT(s)
		})
		return
	case p.channel.PMTPID() != 0 && pid == p.channel.PMTPID():
		if p.pmtSection == nil || p.pmtSection.PID != pid {
			p.pmtSection = ts.NewSection(ts.PacketPMT, pid)
		}
		p.pmtSection.Mux(pkt, func(s *ts.Section) {
			ts.ParsePMT(s)
			p.ScanPMT(s)
		})
		return
	case p.ecmSection != nil && pid == p.ecmPID:
		p.handleECM(pkt)
		return
	case p.pes != nil && pid == p.pcrPID:
		p.pes.Mux(pkt, func(pes *ts.PES) {
			if p.channel.Emit != nil {
				pes.Demux(p.channel.Emit)
			}
		})
		return
	}
	p.channel.HandlePacket(pkt)
}

func (p *program) handleECM(pkt ts.Packet) {
	p.ecmSection.Mux(pkt, func(s *ts.Section) {
		if !s.VerifyCRC() {
			p.log.Malformed("section", fmt.Errorf("ecm pid %d: crc mismatch", p.ecmPID))
			return
		}
		payload := s.Buffer()
		msg, kind := p.variant.CheckEM(p.state, payload)
		if kind != cas.EMECM || msg == nil {
			return
		}
		p.requestControlWord(msg)
	})
}

// requestControlWord sends a resolved ECM to the configured newcamd
// server and, if a concrete Descrambler is present, latches the
// returned control word into this program's cluster. With no
// Descrambler configured the key exchange still runs (useful for
// monitoring CAM health) but no packet is ever descrambled in software
// — the CI hardware path above is this system's only working
// descrambling route until a CSA engine is wired in.
func (p *program) requestControlWord(ecm []byte) {
	if p.cam == nil {
		return
	}
	cw, err := p.cam.RequestECM(p.channel.PNR, ecm)
	if err != nil {
		p.log.Recoverable("key_server_down", err)
		return
	}
	if p.descramble == nil || len(cw) != 16 {
		return
	}
	var key [16]byte
	copy(key[:], cw)
	p.cluster.SetKey(p.descramble, key)
}
