package ts

// PMT is the decoded Program Map Table: the PCR PID and elementary stream
// list for one program_number, grounded on mpegts_pmt_t / pmt.c.
type PMT struct {
	PNR         uint16
	PCRPID      uint16
	Version     byte
	CurrentNext bool
	Desc        *DescriptorList
	Items       []PMTItem
}

// PMTItem is one elementary stream entry (an audio/video/data/ECM PID).
type PMTItem struct {
	PID  uint16
	Type byte // stream_type
	Desc *DescriptorList
}

// ParsePMT validates and decodes a complete PMT section, mirroring
// mpegts_pmt_parse. A PMT reassembly is only meaningful for one fixed
// program_number per Section; a section whose program_number disagrees
// with the one already bound is reported StatusUnchanged rather than
// reparsed, matching the original's pnr short-circuit.
func ParsePMT(s *Section) {
	buf := s.Buffer()
	if prev, ok := s.Data.(*PMT); ok && prev.PNR != 0 {
		pnr := uint16(buf[3])<<8 | uint16(buf[4])
		if prev.PNR != pnr {
			s.Status = StatusUnchanged
			return
		}
	}

	currCRC := s.GetCRC()
	if s.CRC32 == currCRC {
		s.Status = StatusUnchanged
		return
	}
	calcCRC := s.CalcCRC()

	switch {
	case s.Type != PacketPMT:
		s.Status = StatusErrorPacketType
		return
	case buf[0] != 0x02:
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
	if prev, ok := s.Data.(*PMT); ok && len(prev.Items) > 0 {
		s.Status = StatusCRC32Changed
		return
	}

	s.Status = StatusOK
	s.CRC32 = currCRC

	pmt := &PMT{
		PNR:         uint16(buf[3])<<8 | uint16(buf[4]),
		PCRPID:      uint16(buf[8]&0x1F)<<8 | uint16(buf[9]),
		Version:     buf[5] & 0x3E >> 1,
		CurrentNext: buf[5]&0x01 != 0,
	}
	descSize := int(buf[10]&0x0F)<<8 | int(buf[11])
	pos := 12
	if descSize > 0 {
		pmt.Desc = ParseDescriptors(buf[pos : pos+descSize])
		pos += descSize
	}

	end := s.bufferSize - CRC32Len
	for pos+5 <= end {
		esType := buf[pos]
		esPID := uint16(buf[pos+1]&0x1F)<<8 | uint16(buf[pos+2])
		esDescSize := int(buf[pos+3]&0x0F)<<8 | int(buf[pos+4])
		pos += 5
		item := PMTItem{PID: esPID, Type: esType}
		if esDescSize > 0 && pos+esDescSize <= end {
			item.Desc = ParseDescriptors(buf[pos : pos+esDescSize])
		}
		pos += esDescSize
		pmt.Items = append(pmt.Items, item)
	}
	s.Data = pmt
}

// AssemblePMT writes pmt into s.buffer as a complete section, mirroring
// mpegts_pmt_assemble.
func AssemblePMT(s *Section, pmt *PMT) {
	buf := s.buffer[:]
	buf[0] = 0x02
	buf[1] = 0x80 | 0x30
	buf[3] = byte(pmt.PNR >> 8)
	buf[4] = byte(pmt.PNR)
	cn := byte(0)
	if pmt.CurrentNext {
		cn = 1
	}
	buf[5] = 0xC0 | (pmt.Version<<1)&0x3E | cn
	buf[6], buf[7] = 0, 0

	buf[8] = 0xE0 | byte(pmt.PCRPID>>8)&0x1F
	buf[9] = byte(pmt.PCRPID)
	buf[10] = 0xF0
	buf[11] = 0x00

	ptr := 12
	if pmt.Desc != nil {
		descBytes := pmt.Desc.Assemble()
		if n := len(descBytes); n > 0 {
			buf[10] = 0xF0 | byte(n>>8)&0x03
			buf[11] = byte(n)
			copy(buf[ptr:], descBytes)
			ptr += n
		}
	}

	for _, item := range pmt.Items {
		buf[ptr] = item.Type
		buf[ptr+1] = byte(item.PID>>8) & 0x1F
		buf[ptr+2] = byte(item.PID)
		buf[ptr+3], buf[ptr+4] = 0, 0
		ptr += 5
		if item.Desc != nil {
			itemBytes := item.Desc.Assemble()
			if n := len(itemBytes); n > 0 {
				buf[ptr-2] = byte(n>>8) & 0x03
				buf[ptr-1] = byte(n)
				copy(buf[ptr:], itemBytes)
				ptr += n
			}
		}
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

// DuplicatePMT builds a fresh *Section carrying a copy of src's raw buffer,
// re-parsed, for the channel remux filter to mutate independently of the
// source program's live reassembly — grounded on mpegts_pmt_duplicate
// (channel.c): a selected program's PMT is cloned so PID remapping for one
// output channel never perturbs the original PAT/PMT state machine.
func DuplicatePMT(src *Section) *Section {
	if src.Type != PacketPMT {
		return nil
	}
	dst := NewSection(PacketPMT, src.PID)
	dst.bufferSize = src.bufferSize
	copy(dst.buffer[:], src.buffer[:src.bufferSize])
	ParsePMT(dst)
	return dst
}

// ItemAdd appends an elementary stream to pmt.
func (pmt *PMT) ItemAdd(pid uint16, streamType byte, desc *DescriptorList) {
	pmt.Items = append(pmt.Items, PMTItem{PID: pid, Type: streamType, Desc: desc})
}

// ItemDelete removes the first item matching pid, if any.
func (pmt *PMT) ItemDelete(pid uint16) {
	for i, item := range pmt.Items {
		if item.PID == pid {
			pmt.Items = append(pmt.Items[:i], pmt.Items[i+1:]...)
			return
		}
	}
}

// ItemGet returns the item for pid, if present.
func (pmt *PMT) ItemGet(pid uint16) (PMTItem, bool) {
	for _, item := range pmt.Items {
		if item.PID == pid {
			return item, true
		}
	}
	return PMTItem{}, false
}

// LogDumpPMT mirrors mpegts_pmt_dump.
func LogDumpPMT(pmt *PMT, name string, logf func(format string, args ...any)) {
	logf("[PMT %s] pnr:%d", name, pmt.PNR)
	logf("[PMT %s] pid:%4d PCR", name, pmt.PCRPID)
	if pmt.Desc != nil {
		pmt.Desc.LogDump(logf, 0x02, name)
	}
	for _, item := range pmt.Items {
		logf("[PMT %s] pid:%4d %s:0x%02X", name, item.PID, StreamTypeCategory(item.Type), item.Type)
		if item.Desc != nil {
			item.Desc.LogDump(logf, 0x02, name)
		}
	}
}
