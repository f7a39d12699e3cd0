// Package cas dispatches elementary-stream entitlement messages (ECM/
// EMM) to the conditional-access-system variant matching the program's
// CA descriptor CAID, grounded on
// _examples/original_source/modules/softcam/cas/*.c.
package cas

import "github.com/tsforge/astragate/internal/ts"

// EMType classifies one entitlement message payload, mirroring
// MPEGTS_PACKET_ECM/MPEGTS_PACKET_EMM.
type EMType int

const (
	EMNone EMType = iota
	EMECM
	EMEMM
)

// Variant is one CAS implementation's CAID match, descriptor gating and
// entitlement-message classification, mirroring cas_module_t's
// check_caid/check_desc/check_em trio.
type Variant interface {
	// Name identifies the variant in logs, e.g. "Viaccess".
	Name() string
	// CheckCAID reports whether this variant handles caid.
	CheckCAID(caid uint16) bool
	// CheckDescriptor decides whether this CA descriptor is one this
	// program instance should track, returning its ECM PID. ok is false
	// when the descriptor belongs to a different provider/operator the
	// variant can distinguish (only Viaccess does today).
	CheckDescriptor(cad ts.CADescriptor) (ecmPID uint16, ok bool)
	// CheckEM classifies a section payload and, for a new-parity ECM,
	// returns the message to forward to the descrambler. state is
	// variant-specific parity/dedup bookkeeping; the caller keeps one
	// State per program, and a zero State is ready to use.
	CheckEM(state *State, payload []byte) (msg []byte, kind EMType)
}

// State holds the per-program mutable bookkeeping a Variant's CheckEM
// needs across calls, mirroring cas_data_s's "uint8_t parity" (and, for
// Viaccess, the shared/unique EMM reassembly buffer).
type State struct {
	Parity     byte
	ProviderID []byte // not filled in by any variant: CheckDescriptor has no State to write to

	sharedType byte
	sharedBuf  []byte
}

var variants = []Variant{
	biss{},
	viaccess{},
	dre{},
	irdeto{},
	conax{},
	mediaguard{},
	nagra{},
	bulcrypt{},
	cryptoworks{},
	videoguard{},
}

// ForCAID returns the variant handling caid, mirroring cas_init's
// cas_module_list scan, or nil if no variant claims it.
func ForCAID(caid uint16) Variant {
	for _, v := range variants {
		if v.CheckCAID(caid) {
			return v
		}
	}
	return nil
}

// checkECMParity is the shared even/odd (0x80/0x81) ECM-change
// detector every variant but BISS uses verbatim, mirroring
// template_check_em / biss_check_em / dre_check_em etc.
func checkECMParity(state *State, payload []byte) (msg []byte, kind EMType) {
	if len(payload) == 0 {
		return nil, EMNone
	}
	emType := payload[0]
	switch emType {
	case 0x80, 0x81:
		if emType != state.Parity {
			state.Parity = emType
			return payload, EMECM
		}
	}
	return nil, EMNone
}
