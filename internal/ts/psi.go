package ts

// Section is a reassembled (or not-yet-assembled) PSI section buffer, the
// Go analogue of mpegts_psi_t. It is reused across calls to Mux: a
// completed section is handed to the caller's callback synchronously and
// must be copied out if retained past the call.
type Section struct {
	Type PacketType
	PID  uint16

	cc         byte
	buffer     [PSIMaxSize]byte
	bufferSize int
	bufferSkip int
	CRC32      uint32

	Status Status

	// Data is parser-specific decoded content (PAT/CAT/PMT/SDT), set by
	// the matching Parse* call after Mux hands back a complete section.
	Data any

	ts [PacketLen]byte // Demux scratch buffer
}

// NewSection allocates a Section for the given table type and PID.
func NewSection(t PacketType, pid uint16) *Section {
	return &Section{Type: t, PID: pid}
}

// Buffer returns the reassembled section bytes (including the trailing
// CRC-32), valid only immediately after a callback invocation from Mux.
func (s *Section) Buffer() []byte { return s.buffer[:s.bufferSize] }

// sectionLengthField decodes the 12-bit section_length field of a PSI
// header and returns the implied total buffer size (header + body + CRC),
// i.e. PSI_BUFFER_GET_SIZE + 3.
func sectionLengthField(b []byte) int {
	return int(b[1]&0x0F)<<8 | int(b[2]) + 3
}

// CalcCRC computes the CRC-32/MPEG-2 over the section body (excluding the
// trailing CRC field itself).
func (s *Section) CalcCRC() uint32 {
	if s.bufferSize < CRC32Len {
		return 0
	}
	return crc32MPEG(s.buffer[:s.bufferSize-CRC32Len])
}

// GetCRC reads the trailing 4-byte CRC-32 field from the buffer.
func (s *Section) GetCRC() uint32 {
	if s.bufferSize < CRC32Len {
		return 0
	}
	b := s.buffer[s.bufferSize-CRC32Len : s.bufferSize]
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// VerifyCRC reports whether the section's embedded CRC matches its
// computed CRC (valid iff accumulating over the buffer up to the CRC
// field yields the stored value).
func (s *Section) VerifyCRC() bool {
	return s.GetCRC() == s.CalcCRC()
}

// Mux feeds one TS packet belonging to this section's PID into the
// reassembly state machine. callback is invoked synchronously with s
// whenever a complete section has been assembled; callback must not
// retain s.Buffer() past the call. Grounded on mpegts_psi_mux (psi.c):
// any new PUSI unconditionally drops an in-progress reassembly whose
// continuity is broken or whose declared length disagrees with what has
// already accumulated, per this system's resolved PSI overlap policy.
func (s *Section) Mux(pkt Packet, callback func(*Section)) {
	off, ok := PayloadStart(pkt)
	if !ok {
		return
	}
	cc := pkt.ContinuityCounter()

	if pkt.PUSI() {
		ptrField := int(pkt[off])
		off++

		if ptrField > 0 {
			if ptrField >= BodyLen {
				s.bufferSkip = 0
				return
			}
			if s.bufferSkip > 0 {
				if (s.cc+1)&0x0F != cc {
					s.bufferSkip = 0
					return
				}
				copy(s.buffer[s.bufferSkip:], pkt[off:off+ptrField])
				if s.bufferSize == 0 {
					sz := sectionLengthField(s.buffer[:])
					if sz <= 3 || sz > PSIMaxSize {
						s.bufferSkip = 0
						return
					}
					s.bufferSize = sz
				}
				if s.bufferSize != s.bufferSkip+ptrField {
					s.bufferSkip = 0
					return
				}
				s.bufferSkip = 0
				callback(s)
			}
			off += ptrField
		}

		for off < PacketLen && pkt[off] != 0xFF {
			s.bufferSize = 0
			remain := PacketLen - off
			if remain < 3 {
				copy(s.buffer[:remain], pkt[off:])
				s.bufferSkip = remain
				break
			}
			sz := sectionLengthField(pkt[off:])
			if sz <= 3 || sz > PSIMaxSize {
				break
			}
			cpyLen := remain
			if cpyLen > BodyLen {
				break
			}
			s.bufferSize = sz
			if sz > cpyLen {
				copy(s.buffer[:cpyLen], pkt[off:off+cpyLen])
				s.bufferSkip = cpyLen
				break
			}
			copy(s.buffer[:sz], pkt[off:off+sz])
			s.bufferSkip = 0
			callback(s)
			off += sz
		}
	} else {
		if s.bufferSkip == 0 {
			return
		}
		if (s.cc+1)&0x0F != cc {
			s.bufferSkip = 0
			return
		}
		if s.bufferSize == 0 {
			if s.bufferSkip >= 3 {
				s.bufferSkip = 0
				return
			}
			need := 3 - s.bufferSkip
			copy(s.buffer[s.bufferSkip:3], pkt[off:off+need])
			sz := sectionLengthField(s.buffer[:])
			if sz <= 3 || sz > PSIMaxSize {
				s.bufferSkip = 0
				return
			}
			s.bufferSize = sz
		}
		remain := s.bufferSize - s.bufferSkip
		if remain <= BodyLen {
			copy(s.buffer[s.bufferSkip:], pkt[off:off+remain])
			s.bufferSkip = 0
			callback(s)
		} else {
			copy(s.buffer[s.bufferSkip:], pkt[off:off+BodyLen])
			s.bufferSkip += BodyLen
		}
	}
	s.cc = cc
}

// Demux fragments the section's current buffer into 188-byte TS packets,
// invoking callback once per packet. callback must not retain the packet
// slice past the call (it is backed by shared scratch storage reused on
// the next iteration). Grounded on mpegts_psi_demux (psi.c): PUSI and
// pointer_field are set only on the first packet, remaining packets carry
// payload only, and the final packet is padded with 0xFF stuffing.
func (s *Section) Demux(callback func(Packet)) {
	bufferSize := s.bufferSize
	if bufferSize == 0 {
		return
	}

	ts := s.ts[:]
	ts[0] = SyncByte
	ts[1] = 0x40 | byte(s.PID>>8)
	ts[2] = byte(s.PID)
	ts[4] = 0x00

	tsSkip := HeaderLen + 1
	tsSize := BodyLen - 1
	bufferSkip := 0

	for bufferSkip < bufferSize {
		bufferTail := bufferSize - bufferSkip
		if bufferTail < tsSize {
			tsSize = bufferTail
			lastByte := tsSkip + tsSize
			for i := lastByte; i < PacketLen; i++ {
				ts[i] = 0xFF
			}
		}

		copy(ts[tsSkip:tsSkip+tsSize], s.buffer[bufferSkip:bufferSkip+tsSize])
		ts[3] = 0x10 | s.cc

		bufferSkip += tsSize
		s.cc = (s.cc + 1) & 0x0F

		callback(Packet(ts))

		if tsSkip == 5 {
			tsSkip = HeaderLen
			tsSize = BodyLen
			ts[1] &^= 0x40
		}
	}
}
