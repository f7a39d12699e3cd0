package ci

import "time"

// ── Resource Manager ─────────────────────────────────────────────────────

func (s *Slot) openResourceManager(sessionID uint16) {
	s.sessions[sessionID].event = (*Slot).resourceManagerEvent
	s.SendAPDU(sessionID, AOTProfileEnq, nil)
}

func (s *Slot) resourceManagerEvent(sessionID uint16) {
	switch s.apduTag() {
	case AOTProfileEnq:
		res := []uint32{ResourceManager, ResourceApplicationInfo, ResourceConditionalAccess, ResourceDateTime, ResourceMMI}
		buf := make([]byte, 0, 4*len(res))
		for _, r := range res {
			buf = append(buf, byte(r>>24), byte(r>>16), byte(r>>8), byte(r))
		}
		s.SendAPDU(sessionID, AOTProfile, buf)
	case AOTProfile:
		s.SendAPDU(sessionID, AOTProfileChange, nil)
	default:
		s.logf("[ci slot %d] resource manager: wrong event 0x%08X", s.id, s.apduTag())
	}
}

// ── Application Information ──────────────────────────────────────────────

func (s *Slot) openApplicationInformation(sessionID uint16) {
	s.sessions[sessionID].event = (*Slot).applicationInformationEvent
	s.SendAPDU(sessionID, AOTApplicationInfoEnq, nil)
}

func (s *Slot) applicationInformationEvent(sessionID uint16) {
	if s.apduTag() != AOTApplicationInfo {
		s.logf("[ci slot %d] application information: wrong event 0x%08X", s.id, s.apduTag())
		return
	}
	buf := s.apduBody()
	if len(buf) < 5 {
		return
	}
	kind := buf[0]
	manufacturer := uint16(buf[1])<<8 | uint16(buf[2])
	product := uint16(buf[3])<<8 | uint16(buf[4])
	rest := buf[5:]
	size, skip, err := DecodeASN1Length(rest)
	if err != nil || skip+size > len(rest) {
		return
	}
	name := string(rest[skip : skip+size])
	s.logf("[ci slot %d] module %s 0x%02X 0x%04X 0x%04X", s.id, name, kind, manufacturer, product)
}

// ── Conditional Access Support ───────────────────────────────────────────

// ConditionalAccessData is the CAID list the CAM advertised via CA_INFO,
// per §3.8/§4.4.
type ConditionalAccessData struct {
	CAIDs []uint16
}

func (d *ConditionalAccessData) hasCAID(caid uint16) bool {
	for _, c := range d.CAIDs {
		if c == caid {
			return true
		}
	}
	return false
}

func (s *Slot) openConditionalAccessSupport(sessionID uint16) {
	data := &ConditionalAccessData{}
	s.sessions[sessionID].data = data
	s.sessions[sessionID].event = (*Slot).conditionalAccessEvent
	s.CASupport = data
	s.SendAPDU(sessionID, AOTCAInfoEnq, nil)
}

func (s *Slot) conditionalAccessEvent(sessionID uint16) {
	switch s.apduTag() {
	case AOTCAInfo:
		buf := s.apduBody()
		if len(buf) < 2 {
			return
		}
		data, _ := s.sessions[sessionID].data.(*ConditionalAccessData)
		if data == nil {
			return
		}
		data.CAIDs = data.CAIDs[:0]
		for i := 0; i+1 < len(buf); i += 2 {
			caid := uint16(buf[i])<<8 | uint16(buf[i+1])
			data.CAIDs = append(data.CAIDs, caid)
			s.logf("[ci slot %d] module caid:0x%04X (session %d)", s.id, caid, sessionID)
		}
	case AOTCAUpdate, AOTCAPMTReply:
		// acknowledged implicitly; nothing to do.
	default:
		s.logf("[ci slot %d] conditional access: wrong event 0x%08X", s.id, s.apduTag())
	}
}

// SendCAPMT builds and sends a CA_PMT APDU over the conditional-access
// session for the given program, per §4.4's "CA-PMT construction".
// Returns false (and sends nothing) if the CAM advertised no matching
// CAID, mirroring ca_pmt_send's is_caid gate.
func (s *Slot) SendCAPMT(pmt *CAPMT, listManage, cmd byte) bool {
	if s.CASupport == nil {
		return false
	}
	for sessionID := range s.sessions {
		if s.sessions[sessionID].ResourceID != ResourceConditionalAccess {
			continue
		}
		buf, ok := pmt.build(s.CASupport, listManage, cmd)
		if !ok {
			return false
		}
		s.SendAPDU(uint16(sessionID), AOTCAPMT, buf)
		return true
	}
	return false
}

// ── Date-Time ─────────────────────────────────────────────────────────────

type dateTimeData struct {
	interval time.Duration
	last     time.Time
	now      func() time.Time
}

func (s *Slot) openDateTime(sessionID uint16) {
	nowFn := s.now
	if nowFn == nil {
		nowFn = time.Now
	}
	data := &dateTimeData{now: nowFn}
	s.sessions[sessionID].data = data
	s.sessions[sessionID].event = (*Slot).dateTimeEvent
	s.sessions[sessionID].manage = (*Slot).dateTimeManage
	s.sessions[sessionID].close = func(s *Slot, sessionID uint16) {}
	s.sendDateTime(sessionID, data)
}

func (s *Slot) sendDateTime(sessionID uint16, data *dateTimeData) {
	now := data.now().UTC()
	local := data.now()

	mjd := modifiedJulianDate(now.Year(), int(now.Month()), now.Day())
	buf := make([]byte, 7)
	buf[0] = byte(mjd >> 8)
	buf[1] = byte(mjd)
	buf[2] = decToBCD(now.Hour())
	buf[3] = decToBCD(now.Minute())
	buf[4] = decToBCD(now.Second())
	_, offset := local.Zone()
	offsetMin := int16(offset / 60)
	buf[5] = byte(offsetMin >> 8)
	buf[6] = byte(offsetMin)

	s.SendAPDU(sessionID, AOTDateTime, buf)
	data.last = data.now()
}

func modifiedJulianDate(year, month, day int) int {
	l := 0
	if month == 1 || month == 2 {
		l = 1
	}
	return 14956 + day + int(float64(year-l)*365.25) + int(float64(month+1+l*12)*30.6001)
}

func decToBCD(d int) byte {
	return byte((d/10)<<4 + d%10)
}

func (s *Slot) dateTimeEvent(sessionID uint16) {
	if s.apduTag() != AOTDateTimeEnq {
		s.logf("[ci slot %d] date-time: wrong event 0x%08X", s.id, s.apduTag())
		return
	}
	buf := s.apduBody()
	data, _ := s.sessions[sessionID].data.(*dateTimeData)
	if data == nil {
		return
	}
	if len(buf) > 0 {
		data.interval = time.Duration(buf[0]) * time.Second
	} else {
		data.interval = 0
	}
	s.sendDateTime(sessionID, data)
}

// dateTimeManage is the periodic callback driving §4.4's "afterwards
// re-send periodically at the interval the CAM requested" — invoked by
// the slot owner's tick loop (S4: reply at t0 and t0+interval ± 100ms).
func (s *Slot) dateTimeManage(sessionID uint16) {
	data, _ := s.sessions[sessionID].data.(*dateTimeData)
	if data == nil || data.interval <= 0 {
		return
	}
	now := data.now()
	if now.Sub(data.last) >= data.interval {
		s.sendDateTime(sessionID, data)
	}
}

// ManagePeriodic drives every open session's periodic callback (only
// Date-Time uses one); call once per reactor tick.
func (s *Slot) ManagePeriodic() {
	for i := range s.sessions {
		if s.sessions[i].manage != nil {
			s.sessions[i].manage(s, uint16(i))
		}
	}
}
