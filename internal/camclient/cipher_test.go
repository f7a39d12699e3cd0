package camclient

import "testing"

func TestCBCRoundTrip(t *testing.T) {
	var key [16]byte
	for i := range key {
		key[i] = byte(i * 3)
	}
	s := newSession(key)

	plain := make([]byte, 24)
	for i := range plain {
		plain[i] = byte(i)
	}

	enc, err := s.encryptCBC(plain)
	if err != nil {
		t.Fatalf("encryptCBC: %v", err)
	}
	if len(enc) != len(plain)+8 {
		t.Fatalf("encryptCBC output length = %d, want %d", len(enc), len(plain)+8)
	}

	dec, err := s.decryptCBC(enc)
	if err != nil {
		t.Fatalf("decryptCBC: %v", err)
	}
	if string(dec) != string(plain) {
		t.Fatalf("round trip mismatch: got %v, want %v", dec, plain)
	}
}

func TestCBCRejectsUnalignedInput(t *testing.T) {
	var key [16]byte
	s := newSession(key)
	if _, err := s.encryptCBC(make([]byte, 7)); err == nil {
		t.Fatalf("expected error for non-block-aligned plaintext")
	}
}
