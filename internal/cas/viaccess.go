package cas

import "github.com/tsforge/astragate/internal/ts"

// viaccess is CAID 0x0500. Its CA descriptor carries one or more
// "ident" nano-descriptors (tag 0x14, length 5). cas/viaccess.c's
// __check_ident compares each ident against a configured provider
// list; this port has no provider list to check against (EMM/
// subscription management is out of scope, see DESIGN.md), so
// CheckDescriptor accepts any descriptor that carries an ident nano and
// returns its ECM PID. Idents are not compared, neither with a provider
// list nor with the idents of earlier descriptors.
type viaccess struct{}

func (viaccess) Name() string { return "Viaccess" }

func (viaccess) CheckCAID(caid uint16) bool { return caid == 0x0500 }

func (viaccess) CheckDescriptor(cad ts.CADescriptor) (uint16, bool) {
	const nanoIdent = 0x14
	p := cad.Private
	for i := 0; i+1 < len(p); {
		dtype := p[i]
		dlen := int(p[i+1]) + 2
		if dtype == nanoIdent && dlen == 5 && i+dlen <= len(p) {
			return cad.CAPID, true
		}
		i += dlen
	}
	return 0, false
}

// CheckEM recognizes the 0x80/0x81 ECM pair exactly like the shared
// filter; viaccess.c's shared/unique EMM reassembly (em_type 0x8C/0x8D/
// 0x8E) is not ported since EMM delivery is out of scope.
func (viaccess) CheckEM(state *State, payload []byte) ([]byte, EMType) {
	return checkECMParity(state, payload)
}
