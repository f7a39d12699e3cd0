package ts

// SDT is the decoded Service Description Table: per-service name/type and
// EIT-presence flags, grounded on mpegts_sdt_t / sdt.c.
type SDT struct {
	TransportStreamID uint16
	Version           byte
	CurrentNext       bool
	OriginalNetworkID uint16
	Items             []SDTItem
}

// SDTItem is one service entry in an SDT section.
type SDTItem struct {
	PNR                 uint16 // service_id
	EITSchedule         bool
	EITPresentFollowing bool
	Desc                *DescriptorList
}

// ParseSDT validates and decodes a complete SDT section, mirroring
// mpegts_sdt_parse.
func ParseSDT(s *Section) {
	currCRC := s.GetCRC()
	prev, hasPrev := s.Data.(*SDT)
	if hasPrev && len(prev.Items) > 0 && s.CRC32 == currCRC {
		s.Status = StatusUnchanged
		return
	}
	calcCRC := s.CalcCRC()
	buf := s.Buffer()

	switch {
	case s.Type != PacketSDT:
		s.Status = StatusErrorPacketType
		return
	case buf[0] != 0x42 && buf[0] != 0x46:
		s.Status = StatusErrorTableID
		return
	case buf[1]&0x8C != 0x80:
		s.Status = StatusErrorFixedBits
		return
	case s.bufferSize > 1024:
		s.Status = StatusErrorLength
		return
	case currCRC != calcCRC:
		s.Status = StatusErrorCRC32
		return
	}
	if hasPrev && len(prev.Items) > 0 {
		s.Status = StatusCRC32Changed
		return
	}

	s.Status = StatusOK
	s.CRC32 = currCRC

	sdt := &SDT{
		TransportStreamID: uint16(buf[3])<<8 | uint16(buf[4]),
		Version:           buf[5] & 0x3E >> 1,
		CurrentNext:       buf[5]&0x01 != 0,
		OriginalNetworkID: uint16(buf[8])<<8 | uint16(buf[9]),
	}
	body := buf[11 : s.bufferSize-CRC32Len]
	for i := 0; i+5 <= len(body); {
		pnr := uint16(body[i])<<8 | uint16(body[i+1])
		eitFlags := body[i+2]
		descLen := int(body[i+3]&0x0F)<<8 | int(body[i+4])
		i += 5
		if i+descLen > len(body) {
			break
		}
		sdt.Items = append(sdt.Items, SDTItem{
			PNR:                 pnr,
			EITSchedule:         eitFlags&0x02 != 0,
			EITPresentFollowing: eitFlags&0x01 != 0,
			Desc:                ParseDescriptors(body[i : i+descLen]),
		})
		i += descLen
	}
	s.Data = sdt
}

// LogDumpSDT mirrors mpegts_sdt_dump.
func LogDumpSDT(sdt *SDT, name string, logf func(format string, args ...any)) {
	logf("[SDT %s] transport_stream_id:%d", name, sdt.TransportStreamID)
	logf("[SDT %s] original_network_id:%d", name, sdt.OriginalNetworkID)
	for _, item := range sdt.Items {
		logf("[SDT %s] pnr:%d", name, item.PNR)
		item.Desc.LogDump(logf, 0x42, name)
	}
}
