package camclient

import "testing"

func TestBuildMessageEncodesLength(t *testing.T) {
	payload := make([]byte, 16)
	msg := buildMessage(0x80, payload)
	if msg[0] != 0x80 {
		t.Fatalf("cmd byte = 0x%02X, want 0x80", msg[0])
	}
	length := uint16(msg[1])<<8 | uint16(msg[2])
	if length != 16 {
		t.Fatalf("length field = %d, want 16", length)
	}
}

func TestForwardSectionPreservesTopNibble(t *testing.T) {
	section := []byte{0x80, 0xF0, 0x00, 0xAA, 0xBB, 0xCC}
	msg, err := forwardSection(section)
	if err != nil {
		t.Fatalf("forwardSection: %v", err)
	}
	if msg[1]&0xF0 != 0xF0 {
		t.Fatalf("top nibble not preserved: got 0x%02X", msg[1])
	}
	n := uint16(msg[1]&0x0F)<<8 | uint16(msg[2])
	if n != 3 {
		t.Fatalf("recomputed length = %d, want 3", n)
	}
}

func TestForwardSectionRejectsShort(t *testing.T) {
	if _, err := forwardSection([]byte{0x80, 0x00}); err == nil {
		t.Fatalf("expected error for section shorter than 3 bytes")
	}
}

func TestBuildParseBodyRoundTrip(t *testing.T) {
	msg := buildMessage(0x81, []byte{0x01, 0x02, 0x03, 0x04})
	body := buildBody(0x1234, 0x0100, msg)

	fb, err := parseBody(body)
	if err != nil {
		t.Fatalf("parseBody: %v", err)
	}
	if fb.msgID != 0x1234 {
		t.Fatalf("msgID = 0x%04X, want 0x1234", fb.msgID)
	}
	if fb.pnr != 0x0100 {
		t.Fatalf("pnr = 0x%04X, want 0x0100", fb.pnr)
	}
	if fb.cmd != 0x81 {
		t.Fatalf("cmd = 0x%02X, want 0x81", fb.cmd)
	}
	if string(fb.payload) != "\x01\x02\x03\x04" {
		t.Fatalf("payload = %v, want 1,2,3,4", fb.payload)
	}
}

func TestParseBodyRejectsShort(t *testing.T) {
	if _, err := parseBody(make([]byte, 5)); err == nil {
		t.Fatalf("expected error for short body")
	}
}

func TestPadLenAlignsToEightBytes(t *testing.T) {
	for bodyLen := 0; bodyLen < 64; bodyLen++ {
		pad := padLen(bodyLen)
		total := bodyLen + pad + 1 // +1 for the trailing checksum byte
		if total%8 != 0 {
			t.Fatalf("bodyLen=%d: total %d not 8-byte aligned (pad=%d)", bodyLen, total, pad)
		}
	}
}
