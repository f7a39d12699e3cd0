package camclient

import "fmt"

// Wire message commands, the newcamd protocol's fixed cmd byte values.
const (
	cmdClientLogin    byte = 0x00
	cmdClientLoginAck byte = 0x01
	cmdClientLoginNak byte = 0x02
	cmdCardDataReq    byte = 0x04
	cmdCardData       byte = 0x05
)

// reservedHeaderSize is the msg_id(2)+pnr(2)+reserved(6) block at the
// front of every frame body, mirroring NEWCAMD_HEADER_SIZE-2.
const reservedHeaderSize = 10

// maxFrameSize bounds one newcamd frame, mirroring NEWCAMD_MSG_SIZE.
const maxFrameSize = 400

// buildMessage renders a cmd+12-bit-length+payload message block,
// mirroring the manual buffer[0]/[1]/[2] setup in newcamd_login_1 and
// the subsequent re-stamp in newcamd_send_msg.
func buildMessage(cmd byte, payload []byte) []byte {
	msg := make([]byte, 3+len(payload))
	msg[0] = cmd
	msg[1] = byte(len(payload) >> 8 & 0x0F)
	msg[2] = byte(len(payload))
	copy(msg[3:], payload)
	return msg
}

// forwardSection re-stamps a raw DVB PSI section's length field to
// match its actual size (defensive, mirroring newcamd_send_msg always
// recomputing buffer[13]/[14] from buffer_size regardless of what the
// caller wrote there) while preserving the existing top nibble of
// byte 1 (the section_syntax_indicator/reserved bits), and returns it
// ready to use as a message block — the section's own table_id byte
// doubles as the newcamd cmd byte.
func forwardSection(section []byte) ([]byte, error) {
	if len(section) < 3 {
		return nil, fmt.Errorf("camclient: section too short (%d bytes)", len(section))
	}
	msg := make([]byte, len(section))
	copy(msg, section)
	n := len(section) - 3
	msg[1] = (msg[1] & 0xF0) | byte(n>>8&0x0F)
	msg[2] = byte(n)
	return msg, nil
}

// frameBody is a decoded frame's reserved header plus message block.
type frameBody struct {
	msgID   uint16
	pnr     uint16
	cmd     byte
	payload []byte
}

// buildBody assembles the reserved header and message block into one
// buffer, ready for padding and encryption.
func buildBody(msgID, pnr uint16, msg []byte) []byte {
	body := make([]byte, reservedHeaderSize, reservedHeaderSize+len(msg))
	body[0] = byte(msgID >> 8)
	body[1] = byte(msgID)
	body[2] = byte(pnr >> 8)
	body[3] = byte(pnr)
	return append(body, msg...)
}

// parseBody decodes a decrypted, checksum-verified frame body back
// into its reserved header and message fields, mirroring the
// buffer[NEWCAMD_HEADER_SIZE...] field reads in newcamd_recv_msg.
func parseBody(body []byte) (frameBody, error) {
	if len(body) < reservedHeaderSize+3 {
		return frameBody{}, fmt.Errorf("camclient: frame too short (%d bytes)", len(body))
	}
	msgID := uint16(body[0])<<8 | uint16(body[1])
	pnr := uint16(body[2])<<8 | uint16(body[3])
	cmd := body[reservedHeaderSize]
	length := (uint16(body[reservedHeaderSize+1])<<8 | uint16(body[reservedHeaderSize+2])) & 0x0FFF
	start := reservedHeaderSize + 3
	end := start + int(length)
	if end > len(body) {
		return frameBody{}, fmt.Errorf("camclient: message length %d exceeds frame", length)
	}
	return frameBody{msgID: msgID, pnr: pnr, cmd: cmd, payload: body[start:end]}, nil
}

// padLen computes the padding needed so that bodyLen (the
// reserved-header+message size, pre-checksum) plus the checksum byte
// lands on an 8-byte boundary, mirroring newcamd_send_msg's
// no_pad_bytes formula applied to packet_size = bodyLen+2.
func padLen(bodyLen int) int {
	return (8 - ((bodyLen+1)%8))%8
}
