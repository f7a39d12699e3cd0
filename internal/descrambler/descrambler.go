// Package descrambler batches transport-stream packets into clusters
// and drives the even/odd CSA control-word lifecycle, grounded on
// _examples/original_source/modules/softcam/decrypt.c. The CSA cipher
// itself is treated as an opaque engine behind the Descrambler
// interface — implementing DVB-CSA is out of scope for this package;
// only the batching and key-update timing are.
package descrambler

// ControlWord is one 8-byte DVB-CSA control word (even or odd half of
// a 16-byte key).
type ControlWord [8]byte

// Descrambler is the opaque cipher engine a cluster is handed to.
// Implementations own whatever batching/threading the actual CSA
// algorithm needs; this package only guarantees the call order below
// matches decrypt.c's timing.
type Descrambler interface {
	// SetControlWords installs both halves of a fresh key immediately,
	// mirroring set_control_words — used the first time a program gets
	// keys, or when both halves changed between ECMs at once.
	SetControlWords(even, odd ControlWord)
	// SetEvenControlWord installs a new even half only, mirroring
	// set_even_control_word.
	SetEvenControlWord(even ControlWord)
	// SetOddControlWord installs a new odd half only, mirroring
	// set_odd_control_word.
	SetOddControlWord(odd ControlWord)
	// Decrypt descrambles every packet in cluster in place and reports
	// how many packets were consumed, mirroring decrypt_packets.
	Decrypt(cluster [][]byte) int
}
