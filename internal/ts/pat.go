package ts

// PAT is the decoded Program Association Table, grounded on
// mpegts_pat_t / pat.c.
type PAT struct {
	TransportStreamID uint16
	Version           byte
	CurrentNext       bool
	Items             []PATItem
}

// PATItem maps a program_number to the PID carrying its PMT (program_number
// 0 instead maps to the Network PID).
type PATItem struct {
	PID uint16
	PNR uint16 // program_number; 0 = NIT
}

// ParsePAT validates and decodes a complete PAT section (s.Buffer()),
// mirroring mpegts_pat_parse. It sets s.Status and, on success, s.Data to
// a *PAT (nil when Status is StatusUnchanged or StatusCRC32Changed, in
// which case the previous *PAT in s.Data — if any — remains valid).
func ParsePAT(s *Section) {
	currCRC := s.GetCRC()
	if s.CRC32 == currCRC {
		s.Status = StatusUnchanged
		return
	}
	calcCRC := s.CalcCRC()
	buf := s.Buffer()

	switch {
	case s.Type != PacketPAT:
		s.Status = StatusErrorPacketType
		return
	case buf[0] != 0x00:
		s.Status = StatusErrorTableID
		return
	case buf[1]&0xCC != 0x80:
		s.Status = StatusErrorFixedBits
		return
	case s.bufferSize > 1024:
		s.Status = StatusErrorLength
		return
	case currCRC != calcCRC:
		s.Status = StatusErrorCRC32
		return
	}
	if _, ok := s.Data.(*PAT); ok {
		s.Status = StatusCRC32Changed
		return
	}

	s.Status = StatusOK
	s.CRC32 = currCRC

	pat := &PAT{
		TransportStreamID: uint16(buf[3])<<8 | uint16(buf[4]),
		Version:           buf[5] & 0x3E >> 1,
		CurrentNext:       buf[5]&0x01 != 0,
	}
	body := buf[8 : s.bufferSize-CRC32Len]
	for i := 0; i+4 <= len(body); i += 4 {
		pnr := uint16(body[i])<<8 | uint16(body[i+1])
		pid := uint16(body[i+2]&0x1F)<<8 | uint16(body[i+3])
		pat.Items = append(pat.Items, PATItem{PID: pid, PNR: pnr})
	}
	s.Data = pat
}

// AssemblePAT writes pat into s.buffer as a complete section (including
// freshly computed section_length and CRC-32), mirroring
// mpegts_pat_assemble.
func AssemblePAT(s *Section, pat *PAT) {
	buf := s.buffer[:]
	buf[0] = 0x00
	buf[1] = 0x80 | 0x30
	buf[3] = byte(pat.TransportStreamID >> 8)
	buf[4] = byte(pat.TransportStreamID)
	cn := byte(0)
	if pat.CurrentNext {
		cn = 1
	}
	buf[5] = (pat.Version<<1)&0x3E | cn
	buf[6], buf[7] = 0, 0

	ptr := 8
	for _, item := range pat.Items {
		buf[ptr] = byte(item.PNR >> 8)
		buf[ptr+1] = byte(item.PNR)
		buf[ptr+2] = byte(item.PID>>8) & 0x1F
		buf[ptr+3] = byte(item.PID)
		ptr += 4
	}

	slen := ptr - 3 + CRC32Len
	buf[1] |= byte(slen>>8) & 0x0F
	buf[2] = byte(slen)
	s.bufferSize = slen + 3

	crc := s.CalcCRC()
	buf[ptr] = byte(crc >> 24)
	buf[ptr+1] = byte(crc >> 16)
	buf[ptr+2] = byte(crc >> 8)
	buf[ptr+3] = byte(crc)
}

// ItemAdd appends a program_number/PMT-PID pair to pat.
func (pat *PAT) ItemAdd(pid, pnr uint16) {
	pat.Items = append(pat.Items, PATItem{PID: pid, PNR: pnr})
}

// LogDumpPAT writes one line per PAT item via logf, mirroring mpegts_pat_dump.
func LogDumpPAT(pat *PAT, name string, logf func(format string, args ...any)) {
	logf("[PAT %s] transport_stream_id:%d", name, pat.TransportStreamID)
	for _, item := range pat.Items {
		if item.PNR == 0 {
			logf("[PAT %s] pid:%4d NIT", name, item.PID)
		} else {
			logf("[PAT %s] pid:%4d PMT pnr:%d", name, item.PID, item.PNR)
		}
	}
}
