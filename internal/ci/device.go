package ci

import "time"

// pmtDelay is the minimum spacing between two CA-PMT dispatches to the
// same CAM, mirroring ca_loop's pmt_delay gate: the CAM is given time to
// digest one CA_PMT before the next is sent.
const pmtDelay = 100 * time.Millisecond

// Device coordinates every slot on one CI device node, mirroring
// ca_open/ca_close/ca_loop: per-slot module-ready polling drives the
// RESET->CONNECTING transition, and once READY, one pending CA-PMT is
// drained to every slot's conditional-access session per tick.
type Device struct {
	Slots []*Slot

	lastPMT time.Time

	// pending holds CA-PMTs awaiting first dispatch or a resend after a
	// PMT version change, keyed by PNR, mirroring ca_pmt_list_new.
	pending map[uint16]*pendingCAPMT
}

type pendingCAPMT struct {
	capmt      *CAPMT
	listManage byte
	cmd        byte
}

// NewDevice constructs a coordinator for n slots, each using transport
// as its TPDU bytestream.
func NewDevice(n int, transport Transport, onError func(error)) *Device {
	slots := make([]*Slot, n)
	for i := range slots {
		slots[i] = NewSlot(byte(i), transport, onError)
	}
	return &Device{Slots: slots, pending: make(map[uint16]*pendingCAPMT)}
}

// PollModuleReady checks CA_GET_SLOT_INFO on dev for every RESET slot
// and advances it to CONNECTING once the CAM asserts module-ready,
// mirroring ca_slot_loop.
func (d *Device) PollModuleReady(dev interface {
	ModuleReady(slotID int) (bool, error)
}, now time.Time) error {
	for i, slot := range d.Slots {
		if slot.State != SlotReset {
			continue
		}
		ready, err := dev.ModuleReady(i)
		if err != nil {
			return err
		}
		if ready {
			slot.ModuleReady(now)
		}
	}
	return nil
}

// Tick drives every slot's 100ms poll/timeout state machine and the
// periodic per-session callbacks (Date-Time resend), then dispatches at
// most one pending CA-PMT, mirroring ca_loop's per-iteration body.
func (d *Device) Tick(now time.Time) {
	for _, slot := range d.Slots {
		slot.Tick(now)
		slot.ManagePeriodic()
	}
	d.dispatchOne(now)
}

// SubscribeCAPMT queues pnr's CA-PMT for dispatch to every READY slot's
// conditional-access session, with the given list_management/cmd_id,
// mirroring ca_pmt_send_all's enqueue half. A later call for the same
// PNR (e.g. after a PMT version bump) replaces the pending entry.
func (d *Device) SubscribeCAPMT(pnr uint16, capmt *CAPMT, listManage, cmd byte) {
	d.pending[pnr] = &pendingCAPMT{capmt: capmt, listManage: listManage, cmd: cmd}
}

// UnsubscribeCAPMT sends a not-selected CA-PMT for pnr to every slot and
// drops it from the pending set, mirroring deselection teardown.
func (d *Device) UnsubscribeCAPMT(pnr uint16, capmt *CAPMT) {
	delete(d.pending, pnr)
	for _, slot := range d.Slots {
		if slot.State != SlotReady {
			continue
		}
		slot.SendCAPMT(capmt, CAPMTListOnly, CAPMTCmdNotSelected)
	}
}

// dispatchOne sends the lowest-PNR pending CA-PMT to every READY slot,
// gated by pmtDelay, mirroring ca_loop's CA_MODULE_STATUS_READY branch.
func (d *Device) dispatchOne(now time.Time) {
	if len(d.pending) == 0 {
		return
	}
	if now.Sub(d.lastPMT) < pmtDelay {
		return
	}

	var pnr uint16
	var found bool
	for p := range d.pending {
		if !found || p < pnr {
			pnr, found = p, true
		}
	}
	if !found {
		return
	}
	entry := d.pending[pnr]

	sent := false
	for _, slot := range d.Slots {
		if slot.State != SlotReady {
			continue
		}
		if slot.SendCAPMT(entry.capmt, entry.listManage, entry.cmd) {
			sent = true
		}
	}
	delete(d.pending, pnr)
	if sent {
		d.lastPMT = now
	}
}
