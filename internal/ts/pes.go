package ts

import "time"

// PESHeaderSize is the fixed prefix every PES packet must carry:
// packet_start_code_prefix (3) + stream_id (1) + PES_packet_length (2).
const PESHeaderSize = 6

// PESMaxSize bounds a reassembled PES packet buffer.
const PESMaxSize = 1 << 18

// PES reassembles/fragments one elementary stream's PES packets to and
// from 188-byte TS packets, optionally re-inserting a paced PCR on the
// same PID during Demux. Grounded on mpegts_pes_t (pes.c).
type PES struct {
	Type PacketType
	PID  uint16

	cc         byte
	buffer     [PESMaxSize]byte
	bufferSize int
	bufferSkip int

	// PCRInterval, when non-zero, is the target spacing between
	// PCR-bearing adaptation-field-only packets inserted by Demux.
	PCRInterval time.Duration

	pcrTime       time.Duration
	pcrTimeOffset time.Duration
	blockBegin    time.Time
	blockTotal    time.Duration

	ts [PacketLen]byte
}

// NewPES allocates a PES muxer/demuxer for one PID.
func NewPES(t PacketType, pid uint16) *PES {
	return &PES{Type: t, PID: pid}
}

// Buffer returns the reassembled PES packet, valid only immediately after
// a Mux callback invocation.
func (p *PES) Buffer() []byte { return p.buffer[:p.bufferSize] }

func pesPacketLength(payload []byte) int {
	return int(payload[4])<<8 | int(payload[5])
}

// Mux feeds one TS packet into the PES reassembly state machine, invoking
// callback synchronously with p whenever a complete PES packet has been
// assembled. Grounded on mpegts_pes_mux (pes.c).
func (p *PES) Mux(pkt Packet, callback func(*PES)) {
	off, ok := PayloadStart(pkt)
	if !ok {
		return
	}
	payload := pkt[off:]
	payloadLen := len(payload)
	cc := pkt.ContinuityCounter()

	if pkt.PUSI() {
		if p.bufferSkip > 0 {
			p.bufferSize = p.bufferSkip
			p.bufferSkip = 0
			p.blockTotal = time.Since(p.blockBegin)
			callback(p)
		}

		if payloadLen < PESHeaderSize {
			return
		}
		if payload[0] != 0x00 || payload[1] != 0x00 || payload[2] != 0x01 {
			return
		}

		p.bufferSize = pesPacketLength(payload) + PESHeaderSize
		p.blockBegin = time.Now()

		copy(p.buffer[:payloadLen], payload)
		p.bufferSkip = payloadLen

		if p.bufferSize == p.bufferSkip {
			p.bufferSkip = 0
			p.blockTotal = 0
			callback(p)
		}
	} else {
		if p.bufferSkip == 0 {
			return
		}
		if (p.cc+1)&0x0F != cc {
			p.bufferSkip = 0
			return
		}
		copy(p.buffer[p.bufferSkip:], payload)
		p.bufferSkip += payloadLen
		if p.bufferSize == p.bufferSkip {
			p.bufferSkip = 0
			p.blockTotal = time.Since(p.blockBegin)
			callback(p)
		}
	}
	p.cc = cc
}

// checkPCRTime reports whether a PCR tick is due, advancing pcrTime by
// PCRInterval when it fires. Grounded on check_pcr_time (pes.c): the
// fractional offset into the current block is estimated from how much of
// the previous block's buffer has been re-emitted so far.
func (p *PES) checkPCRTime() bool {
	if p.bufferSize == 0 {
		return false
	}
	offset := time.Duration(0)
	if p.blockTotal > 0 {
		offset = time.Duration(int64(p.blockTotal) * int64(p.bufferSkip) / int64(p.bufferSize))
	}
	blockOffset := p.pcrTimeOffset + time.Duration(p.blockBegin.UnixNano()) + offset
	pcrNext := p.pcrTime + p.PCRInterval
	if blockOffset >= pcrNext {
		p.pcrTime = pcrNext
		p.pcrTimeOffset = blockOffset - pcrNext
		return true
	}
	return false
}

// Demux fragments the PES packet in Buffer() into 188-byte TS packets,
// invoking callback once per packet (not retained past the call).
// Grounded on mpegts_pes_demux (pes.c).
func (p *PES) Demux(callback func(Packet)) {
	if p.bufferSize == 0 {
		return
	}
	p.bufferSkip = 0
	p.cc &= 0x0F

	ts := p.ts[:]
	ts[0] = SyncByte
	ts[1] = byte(p.PID >> 8 & 0x1F)
	ts[2] = byte(p.PID)

	for {
		if p.PCRInterval > 0 && p.checkPCRTime() {
			ts[1] &^= 0x40
			ts[3] = 0x20 | p.cc
			ts[4] = 1 + 6 + 176
			ts[5] = 0x10
			pcrTimeUs := uint64(p.pcrTime.Microseconds())
			pcrBase := pcrTimeUs * 90 / 1000
			pcrExt := pcrTimeUs * 27000 / 1000
			pcr := pcrBase*300 + pcrExt%300
			Packet(ts).SetPCR(pcr)
			for i := 12; i < PacketLen; i++ {
				ts[i] = 0xFF
			}
			callback(Packet(ts))
		}

		if p.bufferSkip == 0 {
			ts[1] |= 0x40
		}

		bufferTail := p.bufferSize - p.bufferSkip

		switch {
		case bufferTail >= BodyLen:
			ts[3] = 0x10 | p.cc
			copy(ts[HeaderLen:HeaderLen+BodyLen], p.buffer[p.bufferSkip:p.bufferSkip+BodyLen])
			p.bufferSkip += BodyLen
		case bufferTail >= BodyLen-2:
			ts[3] = 0x30 | p.cc
			ts[4] = 1
			ts[5] = 0x00
			copy(ts[6:6+BodyLen-2], p.buffer[p.bufferSkip:p.bufferSkip+BodyLen-2])
			p.bufferSkip += BodyLen - 2
		default:
			stuffSize := BodyLen - bufferTail - 2
			ts[3] = 0x30 | p.cc
			ts[4] = byte(1 + stuffSize)
			ts[5] = 0x00
			for i := 0; i < stuffSize; i++ {
				ts[6+i] = 0xFF
			}
			copy(ts[6+stuffSize:6+stuffSize+bufferTail], p.buffer[p.bufferSkip:p.bufferSkip+bufferTail])
			p.bufferSkip += bufferTail
		}

		callback(Packet(ts))

		p.cc = (p.cc + 1) & 0x0F
		if Packet(ts).PUSI() {
			ts[1] &^= 0x40
		}

		if p.bufferSkip == p.bufferSize {
			break
		}
	}
}

// PCRBlockDuration estimates the wall-clock duration a TS segment occupied
// given the delta between two successive 27MHz PCR readings, grounded on
// mpegts_pcr_block_us (pcr.c). A non-monotonic pcrCurrent (discontinuity,
// PCR wraparound) reports zero elapsed time.
func PCRBlockDuration(pcrLast, pcrCurrent uint64) time.Duration {
	if pcrCurrent <= pcrLast {
		return 0
	}
	delta := pcrCurrent - pcrLast
	base := delta / 300
	ext := delta % 300
	us := base*1000/90 + ext*1000/27000
	return time.Duration(us) * time.Microsecond
}
