package ci

import "testing"

func TestASN1LengthRoundTrip(t *testing.T) {
	cases := []int{0, 1, 0x7F, 0x80, 0xFF, 0x100, 0xFFFF}
	for _, size := range cases {
		buf := EncodeASN1Length(nil, size)
		got, skip, err := DecodeASN1Length(buf)
		if err != nil {
			t.Fatalf("size %d: decode error: %v", size, err)
		}
		if got != size {
			t.Fatalf("size %d: decoded %d", size, got)
		}
		if skip != len(buf) {
			t.Fatalf("size %d: consumed %d, want %d", size, skip, len(buf))
		}
	}
}

func TestASN1LengthShortForm(t *testing.T) {
	buf := EncodeASN1Length(nil, 0x42)
	if len(buf) != 1 || buf[0] != 0x42 {
		t.Fatalf("short form = % X, want [42]", buf)
	}
}

func TestASN1LengthRejectsOversize(t *testing.T) {
	buf := []byte{0x83, 0x01, 0x00, 0x00}
	if _, _, err := DecodeASN1Length(buf); err == nil {
		t.Fatalf("expected error for 4-byte length form")
	}
}
