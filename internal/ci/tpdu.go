package ci

import (
	"fmt"
)

// Transport is the bytestream a Slot drives — `/dev/dvb/adapterN/caM`
// per §6, carrying TPDUs as raw writes/reads.
type Transport interface {
	Write(p []byte) (int, error)
}

// tpduMessage is one outbound TPDU queued for the slot's FIFO, mirroring
// ca_tpdu_message_t.
type tpduMessage struct {
	buffer []byte
}

// sendTPDU builds and queues one TPDU with the given tag, per
// ca_tpdu_send. slotID is this slot's 0-based index (wire tcid is
// slotID+1).
func (s *Slot) sendTPDU(tag byte, data []byte) {
	buf := make([]byte, 3, len(data)+12)
	buf[0] = s.id
	tcid := s.id + 1
	buf[1] = tcid
	buf[2] = tag

	switch tag {
	case TagRCV, TagCreateTC, TagCTCReply, TagDeleteTC, TagDTCReply, TagRequestTC:
		buf = append(buf, 1, tcid)
	case TagNewTC, TagTCError:
		var d byte
		if len(data) > 0 {
			d = data[0]
		}
		buf = append(buf, 2, tcid, d)
	case TagDataLast, TagDataMore:
		buf = EncodeASN1Length(buf, len(data)+1)
		buf = append(buf, tcid)
		buf = append(buf, data...)
	}

	s.queue = append(s.queue, tpduMessage{buffer: buf})
	if !s.busy {
		s.writeNext()
	}
}

// writeNext dequeues and writes the next pending TPDU, mirroring
// ca_tpdu_write. A slot stays busy until the CAM's reply (read by
// Feed) clears it.
func (s *Slot) writeNext() {
	if s.busy {
		return
	}
	if len(s.queue) == 0 {
		return
	}
	msg := s.queue[0]
	s.queue = s.queue[1:]
	if _, err := s.transport.Write(msg.buffer); err != nil {
		s.onError(fmt.Errorf("ci: slot %d: tpdu write: %w", s.id, err))
		return
	}
	s.busy = true
}

// Feed delivers one raw TPDU read from the CI device to the slot it
// addresses, mirroring ca_tpdu_event. slots is the full slot table so
// the tcid->slot_id mapping (tcid = slot_id+1) can be resolved.
func Feed(slots []*Slot, raw []byte) error {
	if len(raw) < 5 {
		return fmt.Errorf("ci: tpdu: short read (%d bytes)", len(raw))
	}
	slotID := int(raw[1]) - 1
	if slotID < 0 || slotID >= len(slots) {
		return fmt.Errorf("ci: tpdu: bad slot id %d", slotID)
	}
	tag := raw[2]
	slot := slots[slotID]
	slot.busy = false

	n := len(raw)
	hasData := n >= 4 && raw[n-4] == TagSB && raw[n-3] == 2 && raw[n-1]&dataIndicator != 0

	switch tag {
	case TagCTCReply:
		slot.active = true
		if slot.OnActive != nil {
			slot.OnActive()
		}
	case TagDataLast, TagDataMore:
		size, skip, err := DecodeASN1Length(raw[3:])
		if err != nil || size <= 1 {
			break
		}
		skip += 3 + 1 // +1 skips the repeated tcid byte after the length
		size--
		if skip > n || skip+size > n {
			break
		}
		slot.buffer = append(slot.buffer[:0], raw[skip:skip+size]...)
		slot.bufferSize = len(slot.buffer)
		if slot.bufferSize >= spduHeaderSize {
			slot.dispatchSPDU()
		}
	case TagTCError:
		return fmt.Errorf("ci: slot %d: TC_ERROR", slotID)
	}

	if !slot.busy && slot.pendingSessionID != 0 {
		sid := slot.pendingSessionID
		slot.pendingSessionID = 0
		slot.openPendingResource(sid)
	}
	if !slot.busy && len(slot.queue) > 0 {
		slot.writeNext()
	}
	if hasData && !slot.busy {
		slot.sendTPDU(TagRCV, nil)
	}
	return nil
}
