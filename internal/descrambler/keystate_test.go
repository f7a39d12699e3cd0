package descrambler

import "testing"

type fakeDescrambler struct {
	even, odd     ControlWord
	immediate     int
	evenInstalls  int
	oddInstalls   int
	decryptCalls  int
}

func (f *fakeDescrambler) SetControlWords(even, odd ControlWord) {
	f.even, f.odd = even, odd
	f.immediate++
}
func (f *fakeDescrambler) SetEvenControlWord(even ControlWord) {
	f.even = even
	f.evenInstalls++
}
func (f *fakeDescrambler) SetOddControlWord(odd ControlWord) {
	f.odd = odd
	f.oddInstalls++
}
func (f *fakeDescrambler) Decrypt(cluster [][]byte) int {
	f.decryptCalls++
	return len(cluster)
}

func key16(even, odd byte) [16]byte {
	var k [16]byte
	for i := 0; i < 8; i++ {
		k[i] = even
	}
	for i := 8; i < 16; i++ {
		k[i] = odd
	}
	return k
}

// TestKeyStateFirstKeyInstallsImmediately mirrors interface_set_keys'
// !mod->is_keys branch: the very first key is pushed straight to the
// descrambler.
func TestKeyStateFirstKeyInstallsImmediately(t *testing.T) {
	d := &fakeDescrambler{}
	var ks KeyState
	ks.SetKey(d, key16(1, 2))
	if d.immediate != 1 {
		t.Fatalf("immediate installs = %d, want 1", d.immediate)
	}
	if ks.Pending() {
		t.Fatalf("first key left something pending")
	}
}

// TestKeyStateSingleHalfChangeIsLatched mirrors the is_new_key==2
// (only odd changed) branch: the descrambler isn't touched until Apply.
func TestKeyStateSingleHalfChangeIsLatched(t *testing.T) {
	d := &fakeDescrambler{}
	var ks KeyState
	ks.SetKey(d, key16(1, 2)) // first key, installs immediately
	d.immediate = 0

	ks.SetKey(d, key16(1, 9)) // even (byte 3,7) unchanged -> odd latched
	if d.immediate != 0 || d.evenInstalls != 0 || d.oddInstalls != 0 {
		t.Fatalf("half-key change installed before Apply: %+v", d)
	}
	if !ks.Pending() {
		t.Fatalf("expected a pending latch")
	}

	ks.Apply(d)
	if d.oddInstalls != 1 || d.evenInstalls != 0 {
		t.Fatalf("Apply installed wrong half: even=%d odd=%d", d.evenInstalls, d.oddInstalls)
	}
	if ks.Pending() {
		t.Fatalf("Apply left a pending latch")
	}
}

// TestKeyStateEvenHalfChangeIsLatched mirrors is_new_key==1.
func TestKeyStateEvenHalfChangeIsLatched(t *testing.T) {
	d := &fakeDescrambler{}
	var ks KeyState
	ks.SetKey(d, key16(1, 2))
	d.immediate = 0

	ks.SetKey(d, key16(7, 2)) // odd (byte 11,15) unchanged -> even latched
	if d.evenInstalls != 0 {
		t.Fatalf("even half installed before Apply")
	}
	ks.Apply(d)
	if d.evenInstalls != 1 || d.oddInstalls != 0 {
		t.Fatalf("Apply installed wrong half: even=%d odd=%d", d.evenInstalls, d.oddInstalls)
	}
}

// TestKeyStateBothHalvesChangeInstallsImmediately mirrors the else
// branch logging "both keys changed".
func TestKeyStateBothHalvesChangeInstallsImmediately(t *testing.T) {
	d := &fakeDescrambler{}
	var ks KeyState
	ks.SetKey(d, key16(1, 2))
	d.immediate = 0

	ks.SetKey(d, key16(5, 6))
	if d.immediate != 1 {
		t.Fatalf("both-changed key not installed immediately: immediate=%d", d.immediate)
	}
	if ks.Pending() {
		t.Fatalf("both-changed key left something pending")
	}
}
