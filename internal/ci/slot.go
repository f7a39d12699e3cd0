package ci

import "time"

// SlotState is the CI slot lifecycle, per §4.4's "Slot lifecycle":
// RESET -module_ready-> CONNECTING(CREATE_TC) -CTC_REPLY-> READY
// READY -status_loss/timeout-> RESET.
type SlotState int

const (
	SlotReset SlotState = iota
	SlotConnecting
	SlotReady
)

func (s SlotState) String() string {
	switch s {
	case SlotConnecting:
		return "CONNECTING"
	case SlotReady:
		return "READY"
	default:
		return "RESET"
	}
}

// Session holds one of up to 33 open EN 50221 sessions on a slot, per
// §3.7: a resource id plus event/close/periodic callbacks and an opaque
// resource-specific data block.
type Session struct {
	ResourceID uint32
	event      func(s *Slot, sessionID uint16)
	close      func(s *Slot, sessionID uint16)
	manage     func(s *Slot, sessionID uint16)
	data       any
}

// Slot drives one physical CI slot's TPDU/SPDU/APDU state machine, per
// §3.7 and §4.4.
type Slot struct {
	id       byte
	transport Transport
	onError  func(error)

	State    SlotState
	active   bool // TT_CTC_REPLY seen

	connectingSince time.Time
	lastPoll        time.Time

	busy  bool
	queue []tpduMessage

	buffer           []byte
	bufferSize       int
	pendingSessionID uint16

	sessions [maxSessions]Session

	// CASupport holds the CAID list advertised by the CAM once CA_INFO
	// arrives, consulted by the descrambler's CAS dispatch (§4.5).
	CASupport *ConditionalAccessData

	// CAPMTList is the set of currently-subscribed programs' CA-PMTs,
	// per §3.8.
	CAPMTList []*CAPMT

	// OnActive fires once when TT_CTC_REPLY marks the slot active.
	OnActive func()
	// Log receives informational/debug lines, matching §7's
	// "[component id] message" convention.
	Log func(format string, args ...any)

	// now overrides the clock used for Date-Time replies; nil means
	// time.Now (tests substitute a fixed clock for S4).
	now func() time.Time
}

// NewSlot constructs a slot bound to id (0-based) and the given
// transport (the CI device's write half).
func NewSlot(id byte, transport Transport, onError func(error)) *Slot {
	return &Slot{id: id, transport: transport, onError: onError, State: SlotReset}
}

// OpenSessions returns the resource IDs of every currently open
// session on this slot (session 0 is never used on the wire, matching
// the 1-based session IDs opened by openSessionRequest), for
// diagnostics surfaces that list what's active without reaching into
// slot internals.
func (s *Slot) OpenSessions() []uint32 {
	var out []uint32
	for i := 1; i < maxSessions; i++ {
		if s.sessions[i].event != nil {
			out = append(out, s.sessions[i].ResourceID)
		}
	}
	return out
}

// SetClock overrides the clock used for Date-Time replies; used by
// tests to get deterministic MJD/BCD output (S4).
func (s *Slot) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Slot) logf(format string, args ...any) {
	if s.Log != nil {
		s.Log(format, args...)
	}
}

// ModuleReady transitions RESET -> CONNECTING and issues CREATE_TC, the
// entry point once the CAM asserts module-ready on the slot.
func (s *Slot) ModuleReady(now time.Time) {
	s.State = SlotConnecting
	s.connectingSince = now
	s.sendTPDU(TagCreateTC, nil)
}

// Tick drives the 100ms poll described in §4.4: while READY, an idle
// slot is polled with an empty DATA_LAST to solicit SB status; a slot
// stuck CONNECTING past 1s is force-reset.
func (s *Slot) Tick(now time.Time) {
	switch s.State {
	case SlotConnecting:
		if s.active {
			s.State = SlotReady
			return
		}
		if now.Sub(s.connectingSince) > time.Second {
			s.Reset()
		}
	case SlotReady:
		if !s.busy && now.Sub(s.lastPoll) >= 100*time.Millisecond {
			s.lastPoll = now
			s.sendTPDU(TagDataLast, nil)
		}
	}
}

// Reset drops the slot back to RESET, clearing queued TPDUs, pending
// CA-PMTs (§4.4's "slot not-ready transitions drop pending CA-PMTs"),
// and all sessions.
func (s *Slot) Reset() {
	s.State = SlotReset
	s.active = false
	s.busy = false
	s.queue = nil
	s.buffer = s.buffer[:0]
	s.bufferSize = 0
	s.pendingSessionID = 0
	s.CASupport = nil
	s.CAPMTList = nil
	for i := range s.sessions {
		s.sessions[i] = Session{}
	}
}

func (s *Slot) dispatchSPDU() {
	buf := s.buffer[:s.bufferSize]
	switch buf[0] {
	case TagSessionNumber:
		if s.bufferSize <= 4 {
			return
		}
		sessionID := uint16(buf[2])<<8 | uint16(buf[3])
		if int(sessionID) < maxSessions && s.sessions[sessionID].event != nil {
			s.sessions[sessionID].event(s, sessionID)
		}
	case TagOpenSessionRequest:
		if s.bufferSize != 6 || buf[1] != 0x04 {
			return
		}
		s.openSessionRequest()
	case TagCloseSessionRequest:
		if s.bufferSize != 4 || buf[1] != 0x02 {
			return
		}
		s.closeSessionRequest()
	case TagCreateSessionReply:
		if s.bufferSize != 9 || buf[1] != 0x07 {
			return
		}
		s.openSessionResponse()
	case TagCloseSessionReply:
		if s.bufferSize != 5 || buf[1] != 0x03 {
			return
		}
		sessionID := uint16(buf[3])<<8 | uint16(buf[4])
		if int(sessionID) < maxSessions {
			if s.sessions[sessionID].close != nil {
				s.sessions[sessionID].close(s, sessionID)
			}
			s.sessions[sessionID].ResourceID = 0
		}
	default:
		s.logf("[ci slot %d] wrong SPDU tag 0x%02X", s.id, buf[0])
	}
}

func (s *Slot) openSessionRequest() {
	buf := s.buffer[:s.bufferSize]
	var sessionID uint16
	for i := 1; i < maxSessions; i++ {
		if s.sessions[i].ResourceID == 0 {
			sessionID = uint16(i)
			break
		}
	}
	if sessionID == 0 {
		s.logf("[ci slot %d] session limit", s.id)
		return
	}

	resourceID := uint32(buf[2])<<24 | uint32(buf[3])<<16 | uint32(buf[4])<<8 | uint32(buf[5])
	s.sessions[sessionID].ResourceID = resourceID

	resp := make([]byte, 9)
	resp[0] = TagOpenSessionResponse
	resp[1] = 0x07
	if isKnownResource(resourceID) {
		resp[2] = StatusOpened
	} else {
		resp[2] = StatusNotExists
	}
	copy(resp[3:7], buf[2:6])
	resp[7] = byte(sessionID >> 8)
	resp[8] = byte(sessionID)
	s.sendTPDU(TagDataLast, resp)

	s.pendingSessionID = sessionID
}

// openSessionResponse handles the CAM's CREATE_SESSION_REPLY acking the
// host's OPEN_SESSION_RESPONSE, mirroring ca_spdu_response_open's
// dispatch: once the session number is confirmed, the resource-specific
// handler for that session is installed and kicked off.
func (s *Slot) openSessionResponse() {
	buf := s.buffer[:s.bufferSize]
	sessionID := uint16(buf[7])<<8 | uint16(buf[8])
	if int(sessionID) >= maxSessions {
		return
	}
	s.openPendingResource(sessionID)
}

func isKnownResource(id uint32) bool {
	switch id {
	case ResourceManager, ResourceApplicationInfo, ResourceConditionalAccess, ResourceDateTime, ResourceMMI:
		return true
	default:
		return false
	}
}

func (s *Slot) closeSessionRequest() {
	buf := s.buffer[:s.bufferSize]
	sessionID := uint16(buf[2])<<8 | uint16(buf[3])
	if int(sessionID) < maxSessions {
		if s.sessions[sessionID].close != nil {
			s.sessions[sessionID].close(s, sessionID)
		}
		s.sessions[sessionID] = Session{}
	}

	resp := make([]byte, 5)
	resp[0] = TagCloseSessionReply
	resp[1] = 0x03
	resp[2] = StatusOpened
	resp[3] = byte(sessionID >> 8)
	resp[4] = byte(sessionID)
	s.sendTPDU(TagDataLast, resp)
}

// openPendingResource opens the resource-specific session handler,
// mirroring ca_spdu_response_open — invoked once the slot is free to
// write after an OPEN_SESSION_REQUEST response was queued.
func (s *Slot) openPendingResource(sessionID uint16) {
	if int(sessionID) >= maxSessions {
		return
	}
	switch s.sessions[sessionID].ResourceID {
	case ResourceManager:
		s.openResourceManager(sessionID)
	case ResourceApplicationInfo:
		s.openApplicationInformation(sessionID)
	case ResourceConditionalAccess:
		s.openConditionalAccessSupport(sessionID)
	case ResourceDateTime:
		s.openDateTime(sessionID)
	case ResourceMMI:
		s.openMMI(sessionID)
	default:
		s.logf("[ci slot %d] session %d unknown resource", s.id, sessionID)
		s.sessions[sessionID].ResourceID = 0
	}
}

// SendAPDU builds an SPDU+APDU for sessionID carrying tag/data and
// queues it as one or more TPDUs, fragmenting at maxTPDUSize per §4.4,
// mirroring ca_apdu_send.
func (s *Slot) SendAPDU(sessionID uint16, tag uint32, data []byte) {
	buf := make([]byte, 0, len(data)+spduHeaderSize+apduTagSize+3)
	buf = append(buf, TagSessionNumber, 0x02, byte(sessionID>>8), byte(sessionID))
	buf = append(buf, byte(tag>>16), byte(tag>>8), byte(tag))
	buf = EncodeASN1Length(buf, len(data))
	buf = append(buf, data...)

	for off := 0; off < len(buf); {
		remaining := len(buf) - off
		if remaining > maxTPDUSize {
			s.sendTPDU(TagDataMore, buf[off:off+maxTPDUSize])
			off += maxTPDUSize
		} else {
			s.sendTPDU(TagDataLast, buf[off:])
			break
		}
	}
}

// apduTag extracts the 3-byte application tag from the slot's current
// SPDU payload, mirroring ca_apdu_get_tag.
func (s *Slot) apduTag() uint32 {
	if s.bufferSize < spduHeaderSize+apduTagSize {
		return 0
	}
	b := s.buffer[spduHeaderSize:]
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// apduBody returns the length-prefixed payload following the tag,
// mirroring ca_apdu_get_buffer.
func (s *Slot) apduBody() []byte {
	if s.bufferSize < spduHeaderSize+apduTagSize+1 {
		return nil
	}
	b := s.buffer[spduHeaderSize+apduTagSize:]
	size, skip, err := DecodeASN1Length(b)
	if err != nil || skip+size > len(b) {
		return nil
	}
	return b[skip : skip+size]
}
