package camclient

import "testing"

func TestSetOddParity(t *testing.T) {
	key := []byte{0x00, 0xFF, 0x01, 0xFE, 0x55, 0xAA, 0x10, 0x08}
	setOddParity(key)
	for _, b := range key {
		ones := 0
		for bit := 0; bit < 8; bit++ {
			if b&(1<<uint(bit)) != 0 {
				ones++
			}
		}
		if ones%2 == 0 {
			t.Fatalf("byte %08b has even parity after setOddParity", b)
		}
	}
}

func TestExpandDESKeyDeterministic(t *testing.T) {
	var provider [14]byte
	for i := range provider {
		provider[i] = byte(i + 1)
	}
	material := []byte("some-random-seed-material")

	a := expandDESKey(provider, material)
	b := expandDESKey(provider, material)
	if a != b {
		t.Fatalf("expandDESKey not deterministic: %v vs %v", a, b)
	}

	other := expandDESKey(provider, []byte("different-material"))
	if a == other {
		t.Fatalf("expandDESKey produced identical keys for different material")
	}
}

func TestEDE2ToEDE3(t *testing.T) {
	var key [16]byte
	for i := range key {
		key[i] = byte(i)
	}
	out := ede2ToEDE3(key)
	for i := 0; i < 8; i++ {
		if out[i] != key[i] || out[16+i] != key[i] {
			t.Fatalf("ede2ToEDE3 did not repeat k1 at position %d", i)
		}
	}
	for i := 0; i < 8; i++ {
		if out[8+i] != key[8+i] {
			t.Fatalf("ede2ToEDE3 dropped k2 at position %d", i)
		}
	}
}

func TestMD5CryptStableOutput(t *testing.T) {
	out := md5Crypt("hunter2", "$1$abcdefgh$")
	if len(out) != len(md5CryptMagic)+8+1+22 {
		t.Fatalf("md5Crypt produced unexpected length %d: %q", len(out), out)
	}
	if out[:len(md5CryptMagic)] != md5CryptMagic {
		t.Fatalf("md5Crypt output missing magic prefix: %q", out)
	}
	again := md5Crypt("hunter2", "$1$abcdefgh$")
	if out != again {
		t.Fatalf("md5Crypt not deterministic: %q vs %q", out, again)
	}
	other := md5Crypt("hunter3", "$1$abcdefgh$")
	if out == other {
		t.Fatalf("md5Crypt produced identical hashes for different passwords")
	}
}

func TestXorSumSelfChecking(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	cs := xorSum(data)
	checked := append(append([]byte{}, data...), cs)
	if xorSum(checked) != 0 {
		t.Fatalf("appending the checksum should XOR the running sum to zero")
	}
}

func TestParseHexKeyRoundTrip(t *testing.T) {
	const hex = "0123456789abcdef0123456789ab"[:28]
	key, err := parseHexKey(hex)
	if err != nil {
		t.Fatalf("parseHexKey: %v", err)
	}
	want := [14]byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef, 0x01, 0x23, 0x45, 0x67, 0x89, 0xab}
	if key != want {
		t.Fatalf("parseHexKey = %v, want %v", key, want)
	}
}

func TestParseHexKeyRejectsBadLength(t *testing.T) {
	if _, err := parseHexKey("00112233"); err == nil {
		t.Fatalf("expected error for short key")
	}
}

func TestParseHexKeyRejectsBadHex(t *testing.T) {
	bad := "zz23456789abcdef0123456789ab"[:28]
	if _, err := parseHexKey(bad); err == nil {
		t.Fatalf("expected error for invalid hex digit")
	}
}
