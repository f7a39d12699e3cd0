package ts

// DescMaxSize bounds a single descriptor-loop buffer, matching DESC_MAX_SIZE.
const DescMaxSize = 4096

// Descriptor tag constants used across PAT/CAT/PMT/SDT descriptor loops.
const (
	DescTagCA           = 0x09
	DescTagLanguage     = 0x0A
	DescTagService      = 0x48
	DescTagShortEvent   = 0x4D
	DescTagExtEvent     = 0x4E
	DescTagStreamID     = 0x52
	DescTagContent      = 0x54
	DescTagParentalRate = 0x55
)

// Descriptor is a single raw descriptor: tag at [0], length at [1], payload
// at [2:2+len].
type Descriptor []byte

// Tag returns the descriptor_tag byte.
func (d Descriptor) Tag() byte { return d[0] }

// Len returns the descriptor_length byte (payload size, excluding tag+len).
func (d Descriptor) Len() int { return int(d[1]) }

// Payload returns the descriptor's data bytes.
func (d Descriptor) Payload() []byte { return d[2 : 2+d.Len()] }

// DescriptorList holds a parsed descriptor loop, grounded on
// mpegts_desc_parse/mpegts_desc_assemble (desc.c).
type DescriptorList struct {
	items []Descriptor
}

// ParseDescriptors splits a raw descriptor-loop buffer into individual
// descriptors. Malformed trailing bytes (a length that would run past the
// end of buf) truncate the list rather than panic.
func ParseDescriptors(buf []byte) *DescriptorList {
	dl := &DescriptorList{}
	i := 0
	for i+2 <= len(buf) {
		l := int(buf[i+1])
		end := i + 2 + l
		if end > len(buf) {
			break
		}
		dl.items = append(dl.items, Descriptor(buf[i:end]))
		i = end
	}
	return dl
}

// Items returns the parsed descriptors in order.
func (dl *DescriptorList) Items() []Descriptor {
	if dl == nil {
		return nil
	}
	return dl.items
}

// Add appends a descriptor built from tag and payload.
func (dl *DescriptorList) Add(tag byte, payload []byte) {
	d := make(Descriptor, 2+len(payload))
	d[0] = tag
	d[1] = byte(len(payload))
	copy(d[2:], payload)
	dl.items = append(dl.items, d)
}

// Assemble concatenates all descriptors back into a single buffer.
func (dl *DescriptorList) Assemble() []byte {
	if dl == nil {
		return nil
	}
	var size int
	for _, d := range dl.items {
		size += len(d)
	}
	out := make([]byte, 0, size)
	for _, d := range dl.items {
		out = append(out, d...)
	}
	return out
}

// CADescriptor is the decoded form of a CA descriptor (tag 0x09): a
// conditional-access system identifier, the PID carrying its ECM/EMM
// stream, and any vendor-private trailing bytes.
type CADescriptor struct {
	CAID    uint16
	CAPID   uint16
	Private []byte
}

// CA decodes this descriptor as a CA descriptor (tag 0x09); ok is false if
// the tag doesn't match or the payload is too short.
func (d Descriptor) CA() (CADescriptor, bool) {
	if d.Tag() != DescTagCA {
		return CADescriptor{}, false
	}
	p := d.Payload()
	if len(p) < 4 {
		return CADescriptor{}, false
	}
	c := CADescriptor{
		CAID:  uint16(p[0])<<8 | uint16(p[1]),
		CAPID: uint16(p[2]&0x1F)<<8 | uint16(p[3]),
	}
	if len(p) > 4 {
		c.Private = p[4:]
	}
	return c, true
}

// CADescriptors returns every CA descriptor (tag 0x09) in the list.
func (dl *DescriptorList) CADescriptors() []CADescriptor {
	var out []CADescriptor
	for _, d := range dl.Items() {
		if ca, ok := d.CA(); ok {
			out = append(out, ca)
		}
	}
	return out
}

// Language decodes an ISO-639 language descriptor (tag 0x0A)'s 3-letter code.
func (d Descriptor) Language() (string, bool) {
	if d.Tag() != DescTagLanguage {
		return "", false
	}
	p := d.Payload()
	if len(p) < 3 {
		return "", false
	}
	return string(p[0:3]), true
}

// ServiceDescriptor is the decoded form of the DVB service_descriptor
// (tag 0x48): broadcaster name, channel name, and service type.
type ServiceDescriptor struct {
	ServiceType  byte
	ProviderName string
	ServiceName  string
}

// Service decodes this descriptor as a DVB service_descriptor.
func (d Descriptor) Service() (ServiceDescriptor, bool) {
	if d.Tag() != DescTagService {
		return ServiceDescriptor{}, false
	}
	p := d.Payload()
	if len(p) < 3 {
		return ServiceDescriptor{}, false
	}
	sd := ServiceDescriptor{ServiceType: p[0]}
	provLen := int(p[1])
	if 2+provLen+1 > len(p) {
		return ServiceDescriptor{}, false
	}
	sd.ProviderName = decodeDVBText(p[2 : 2+provLen])
	nameOff := 2 + provLen
	nameLen := int(p[nameOff])
	nameOff++
	if nameOff+nameLen > len(p) {
		return ServiceDescriptor{}, false
	}
	sd.ServiceName = decodeDVBText(p[nameOff : nameOff+nameLen])
	return sd, true
}

// decodeDVBText strips the DVB character-table selector byte(s) and
// returns the remainder as a best-effort Latin-1-decoded string (the
// broad majority of broadcast metadata uses the default ISO 8859-1 table).
func decodeDVBText(d []byte) string {
	if len(d) == 0 {
		return ""
	}
	if d[0] == 0x10 {
		if len(d) >= 3 {
			d = d[3:]
		}
	} else if d[0] < 0x20 {
		d = d[1:]
	}
	r := make([]rune, 0, len(d))
	for _, b := range d {
		if b >= 0x80 && b <= 0x9F {
			continue
		}
		r = append(r, rune(b))
	}
	return string(r)
}

// LogDump writes one line per descriptor to logf, in the table_id-prefixed
// format used by mpegts_desc_dump (desc.c), e.g. "[PMT name] > cas: ...".
func (dl *DescriptorList) LogDump(logf func(format string, args ...any), tableID byte, name string) {
	if dl == nil {
		return
	}
	tname := ""
	switch tableID {
	case 0x01:
		tname = "CAT"
	case 0x02:
		tname = "PMT"
	case 0x42, 0x46:
		tname = "SDT"
	}
	for _, d := range dl.items {
		switch d.Tag() {
		case DescTagCA:
			ca, _ := d.CA()
			logf("[%s %s] > cas: caid:0x%04X pid:%d data:%X", tname, name, ca.CAID, ca.CAPID, ca.Private)
		case DescTagLanguage:
			lang, _ := d.Language()
			logf("[%s %s] > language: %s", tname, name, lang)
		default:
			logf("[%s %s] > descriptor:0x%02X size:%d data:%X", tname, name, d.Tag(), d.Len(), d.Payload())
		}
	}
}
