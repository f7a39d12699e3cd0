package descrambler

// pendingKind distinguishes which half of a key is latched for
// deferred installation, mirroring decrypt.c's is_new_key (0 = none, 1
// = even pending, 2 = odd pending).
type pendingKind int

const (
	pendingNone pendingKind = iota
	pendingEven
	pendingOdd
)

// KeyState tracks one program's current 16-byte control-word pair and
// decides, on each new ECM, whether to install both halves immediately
// or latch a single changed half for deferred installation — mirroring
// interface_set_keys's even/odd-unchanged comparison and the
// cluster-boundary apply in decrypt_packets' caller.
type KeyState struct {
	hasKey  bool
	current [16]byte
	pending pendingKind
}

// SetKey records a freshly decrypted 16-byte key (bytes 0:8 even, 8:16
// odd) parsed from an ECM response, mirroring interface_set_keys. The
// first key ever seen, or a key where both halves changed at once, is
// installed on d immediately — there is nothing in flight that needs
// the old key. A key where only one half changed is latched instead:
// the actual install is deferred to Apply, called once the in-flight
// cluster (built with the old parity) has drained, matching
// decrypt.c's is_new_key check at the top of the cluster-fill loop.
func (k *KeyState) SetKey(d Descrambler, key [16]byte) {
	if !k.hasKey {
		k.hasKey = true
		k.pending = pendingNone
		k.current = key
		d.SetControlWords(ControlWord(key[:8]), ControlWord(key[8:]))
		return
	}

	switch {
	case k.current[3] == key[3] && k.current[7] == key[7]:
		// Even half unchanged: only the odd control word rolled.
		k.pending = pendingOdd
		copy(k.current[8:], key[8:])
	case k.current[11] == key[11] && k.current[15] == key[15]:
		// Odd half unchanged: only the even control word rolled.
		k.pending = pendingEven
		copy(k.current[:8], key[:8])
	default:
		// Both halves changed between ECMs: install immediately, no
		// deferral needed.
		k.pending = pendingNone
		k.current = key
		d.SetControlWords(ControlWord(key[:8]), ControlWord(key[8:]))
	}
}

// Pending reports whether a half-key latch is awaiting installation.
func (k *KeyState) Pending() bool {
	return k.pending != pendingNone
}

// Apply installs a latched half-key change on d, mirroring the
// is_new_key check at the top of the cluster-fill loop. Call this once
// per cluster boundary; it is a no-op when nothing is pending.
func (k *KeyState) Apply(d Descrambler) {
	switch k.pending {
	case pendingEven:
		d.SetEvenControlWord(ControlWord(k.current[:8]))
	case pendingOdd:
		d.SetOddControlWord(ControlWord(k.current[8:]))
	}
	k.pending = pendingNone
}
