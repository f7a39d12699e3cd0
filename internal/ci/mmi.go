package ci

// MMIState is the high-level-only MMI session state §4.4 specifies:
// a blind-enquiry flag plus text, or a menu/list with choices.
type MMIState struct {
	IsEnquiry bool
	Blind     bool
	Text      string

	IsMenu   bool
	Title    string
	Subtitle string
	Bottom   string
	Choices  []string
}

func (s *Slot) openMMI(sessionID uint16) {
	s.sessions[sessionID].data = &MMIState{}
	s.sessions[sessionID].event = (*Slot).mmiEvent
}

func (s *Slot) mmiEvent(sessionID uint16) {
	switch s.apduTag() {
	case AOTDisplayControl:
		s.mmiDisplayControl(sessionID)
	case AOTEnq:
		s.mmiEnq(sessionID)
	case AOTListLast, AOTMenuLast:
		s.mmiMenu(sessionID)
	case AOTCloseMMI:
		resp := make([]byte, 4)
		resp[0] = TagCloseSessionRequest
		resp[1] = 0x02
		resp[2] = byte(sessionID >> 8)
		resp[3] = byte(sessionID)
		s.sendTPDU(TagDataLast, resp)
	default:
		s.logf("[ci slot %d] mmi: wrong event 0x%08X", s.id, s.apduTag())
	}
}

func (s *Slot) mmiDisplayControl(sessionID uint16) {
	buf := s.apduBody()
	if len(buf) == 0 {
		return
	}
	if buf[0] != DCCSetMMIMode {
		s.logf("[ci slot %d] mmi: unknown display command 0x%02X", s.id, buf[0])
		return
	}
	if len(buf) != 2 || buf[1] != MMIModeHigh {
		s.logf("[ci slot %d] mmi: unsupported mode 0x%02X", s.id, buf[1])
		return
	}
	s.SendAPDU(sessionID, AOTDisplayReply, []byte{DRIMMIModeAck, MMIModeHigh})
}

func (s *Slot) mmiEnq(sessionID uint16) {
	buf := s.apduBody()
	if len(buf) < 2 {
		return
	}
	state, _ := s.sessions[sessionID].data.(*MMIState)
	if state == nil {
		return
	}
	*state = MMIState{IsEnquiry: true, Blind: buf[0]&0x01 != 0, Text: string(buf[2:])}
}

// mmiGetText decodes one AOT_TEXT_LAST-tagged string, mirroring
// mmi_get_text: a 3-byte tag, a length byte, then that many bytes of
// text. Returns the decoded text and the number of bytes consumed.
func mmiGetText(buf []byte) (text string, consumed int) {
	if len(buf) < 4 {
		return "", 0
	}
	tag := uint32(buf[0])<<16 | uint32(buf[1])<<8 | uint32(buf[2])
	if tag != AOTTextLast {
		return "", 0
	}
	size := int(buf[3])
	if 4+size > len(buf) {
		return "", 0
	}
	return string(buf[4 : 4+size]), 4 + size
}

func (s *Slot) mmiMenu(sessionID uint16) {
	buf := s.apduBody()
	if len(buf) == 0 {
		return
	}
	state, _ := s.sessions[sessionID].data.(*MMIState)
	if state == nil {
		return
	}
	isMenu := s.apduTag() == AOTMenuLast
	*state = MMIState{IsMenu: isMenu}

	skip := 1 // choice_nb
	var n int
	state.Title, n = mmiGetText(buf[skip:])
	skip += n
	state.Subtitle, n = mmiGetText(buf[skip:])
	skip += n
	state.Bottom, n = mmiGetText(buf[skip:])
	skip += n
	for skip < len(buf) {
		text, n := mmiGetText(buf[skip:])
		if n == 0 {
			break
		}
		state.Choices = append(state.Choices, text)
		skip += n
	}

	// High-level MMI only: always select choice 0 ("return"), per §4.4.
	s.mmiAnswerMenu(sessionID, 0)
}

// mmiAnswerMenu sends MENU_ANSW with the given 1-based choice (0 =
// return), mirroring mmi_send_menu_answer.
func (s *Slot) mmiAnswerMenu(sessionID uint16, choice byte) {
	s.SendAPDU(sessionID, AOTMenuAnsw, []byte{choice})
}
