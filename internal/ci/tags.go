package ci

// Transport tags, en50221 A.4.1.13.
const (
	TagSB        byte = 0x80
	TagRCV       byte = 0x81
	TagCreateTC  byte = 0x82
	TagCTCReply  byte = 0x83
	TagDeleteTC  byte = 0x84
	TagDTCReply  byte = 0x85
	TagRequestTC byte = 0x86
	TagNewTC     byte = 0x87
	TagTCError   byte = 0x88
	TagDataLast  byte = 0xA0
	TagDataMore  byte = 0xA1
)

// Session tags, en50221 7.2.7.
const (
	TagSessionNumber       byte = 0x90
	TagOpenSessionRequest  byte = 0x91
	TagOpenSessionResponse byte = 0x92
	TagCreateSession       byte = 0x93
	TagCreateSessionReply  byte = 0x94
	TagCloseSessionRequest byte = 0x95
	TagCloseSessionReply   byte = 0x96
)

// Open Session status, en50221 Table 7.
const (
	StatusOpened    byte = 0x00
	StatusNotExists byte = 0xF0
)

// Resource identifiers, en50221 8.8.1.
const (
	ResourceManager           uint32 = 0x00010041
	ResourceApplicationInfo   uint32 = 0x00020041
	ResourceConditionalAccess uint32 = 0x00030041
	ResourceHostControl       uint32 = 0x00200041
	ResourceDateTime          uint32 = 0x00240041
	ResourceMMI               uint32 = 0x00400041
)

// Application object tags, en50221 Table 58 (subset this implementation
// recognises).
const (
	AOTProfileEnq          uint32 = 0x9F8010
	AOTProfile             uint32 = 0x9F8011
	AOTProfileChange       uint32 = 0x9F8012
	AOTApplicationInfoEnq  uint32 = 0x9F8020
	AOTApplicationInfo     uint32 = 0x9F8021
	AOTEnterMenu           uint32 = 0x9F8022
	AOTCAInfoEnq           uint32 = 0x9F8030
	AOTCAInfo              uint32 = 0x9F8031
	AOTCAPMT               uint32 = 0x9F8032
	AOTCAPMTReply          uint32 = 0x9F8033
	AOTCAUpdate            uint32 = 0x9F8034
	AOTDateTimeEnq         uint32 = 0x9F8440
	AOTDateTime            uint32 = 0x9F8441
	AOTCloseMMI            uint32 = 0x9F8800
	AOTDisplayControl      uint32 = 0x9F8801
	AOTDisplayReply        uint32 = 0x9F8802
	AOTTextLast            uint32 = 0x9F8803
	AOTTextMore            uint32 = 0x9F8804
	AOTEnq                 uint32 = 0x9F8807
	AOTAnsw                uint32 = 0x9F8808
	AOTMenuLast            uint32 = 0x9F8809
	AOTMenuMore            uint32 = 0x9F880A
	AOTMenuAnsw            uint32 = 0x9F880B
	AOTListLast            uint32 = 0x9F880C
	AOTListMore            uint32 = 0x9F880D
)

// CA-PMT list_management values, en50221 Table 12.
const (
	CAPMTListMore   byte = 0x00
	CAPMTListFirst  byte = 0x01
	CAPMTListLast   byte = 0x02
	CAPMTListOnly   byte = 0x03
	CAPMTListAdd    byte = 0x04
	CAPMTListUpdate byte = 0x05
)

// CA-PMT cmd_id values, en50221 Table 13.
const (
	CAPMTCmdOKDescrambling byte = 0x01
	CAPMTCmdOKMMI          byte = 0x02
	CAPMTCmdQuery          byte = 0x03
	CAPMTCmdNotSelected    byte = 0x04
)

// Display Control / MMI mode / Display Reply constants, en50221 Annex AH.
const (
	DCCSetMMIMode byte = 0x01
	MMIModeHigh   byte = 0x01
	DRIMMIModeAck byte = 0x01
)

const (
	spduHeaderSize = 4
	apduTagSize    = 3
	dataIndicator  = 0x80
	maxTPDUSize    = 2048
	maxSessions    = 33
)
