package cas

import "github.com/tsforge/astragate/internal/ts"

// biss is the Basic Interoperable Scrambling System, CAID 0x2600, which
// carries no provider CA descriptor — the control word is configured
// out of band. Grounded on cas/biss.c.
type biss struct{}

func (biss) Name() string { return "BISS" }

func (biss) CheckCAID(caid uint16) bool { return caid == 0x2600 }

func (biss) CheckDescriptor(ts.CADescriptor) (uint16, bool) {
	return 0, false
}

// CheckEM forwards the very first key payload seen and then goes
// silent, mirroring biss_check_em's one-shot is_keys latch.
func (biss) CheckEM(state *State, payload []byte) ([]byte, EMType) {
	if state.Parity != 0 {
		return nil, EMNone
	}
	state.Parity = 1
	return payload, EMECM
}
