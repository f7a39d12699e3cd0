package cas

import (
	"testing"

	"github.com/tsforge/astragate/internal/ts"
)

func TestForCAIDDispatch(t *testing.T) {
	cases := []struct {
		caid uint16
		want string
	}{
		{0x2600, "BISS"},
		{0x0500, "Viaccess"},
		{0x4AE0, "DRE-Crypt"},
		{0x7BE1, "DRE-Crypt"},
		{0x0601, "Irdeto"},
		{0x0B01, "Conax"},
		{0x0100, "Mediaguard"},
		{0x1801, "Nagra"},
		{0x4AEE, "Bulcrypt"},
		{0x5581, "Bulcrypt"},
		{0x0D01, "Cryptoworks"},
		{0x0901, "Videoguard"},
	}
	for _, c := range cases {
		v := ForCAID(c.caid)
		if v == nil {
			t.Fatalf("caid 0x%04X: no variant matched", c.caid)
		}
		if v.Name() != c.want {
			t.Fatalf("caid 0x%04X: matched %s, want %s", c.caid, v.Name(), c.want)
		}
	}
}

func TestForCAIDNoMatch(t *testing.T) {
	if v := ForCAID(0xFFFF); v != nil {
		t.Fatalf("expected no variant for 0xFFFF, got %s", v.Name())
	}
}

func TestCheckECMParityFiltersRepeats(t *testing.T) {
	state := &State{}
	msg, kind := checkECMParity(state, []byte{0x80, 0x00, 0x01})
	if kind != EMECM || msg == nil {
		t.Fatalf("first ECM not forwarded")
	}
	if _, kind := checkECMParity(state, []byte{0x80, 0x00, 0x01}); kind != EMNone {
		t.Fatalf("repeated parity forwarded again")
	}
	if _, kind := checkECMParity(state, []byte{0x81, 0x00, 0x02}); kind != EMECM {
		t.Fatalf("parity change not forwarded")
	}
}

func TestBISSForwardsOnlyOnce(t *testing.T) {
	b := biss{}
	state := &State{}
	if _, kind := b.CheckEM(state, []byte{0x01, 0x02}); kind != EMECM {
		t.Fatalf("first BISS key not forwarded")
	}
	if _, kind := b.CheckEM(state, []byte{0x01, 0x02}); kind != EMNone {
		t.Fatalf("second BISS key forwarded")
	}
}

func TestViaccessDescriptorRequiresIdentNano(t *testing.T) {
	v := viaccess{}
	withIdent := ts.CADescriptor{CAPID: 0x0123, Private: []byte{0x14, 0x03, 0xAA, 0xBB, 0xCC}}
	if pid, ok := v.CheckDescriptor(withIdent); !ok || pid != 0x0123 {
		t.Fatalf("descriptor with ident nano not accepted: pid=%d ok=%v", pid, ok)
	}

	noIdent := ts.CADescriptor{CAPID: 0x0123, Private: []byte{0x15, 0x01, 0x00}}
	if _, ok := v.CheckDescriptor(noIdent); ok {
		t.Fatalf("descriptor without ident nano accepted")
	}
}
