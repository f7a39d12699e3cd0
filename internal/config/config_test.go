package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	os.Clearenv()
	c := Load()

	if c.AdapterCount != 1 {
		t.Errorf("AdapterCount = %d, want 1", c.AdapterCount)
	}
	if len(c.Adapters) != 1 {
		t.Fatalf("len(Adapters) = %d, want 1", len(c.Adapters))
	}
	if c.Adapters[0].System != "dvbs2" {
		t.Errorf("Adapters[0].System = %q, want dvbs2", c.Adapters[0].System)
	}
	if c.Adapters[0].Polarity != "h" {
		t.Errorf("Adapters[0].Polarity = %q, want h", c.Adapters[0].Polarity)
	}
	if !c.CIEnabled {
		t.Errorf("CIEnabled = false, want true by default")
	}
	if c.SourceMode != "dvb" {
		t.Errorf("SourceMode = %q, want dvb", c.SourceMode)
	}
	if c.ECMTimeout != 5*time.Second {
		t.Errorf("ECMTimeout = %s, want 5s", c.ECMTimeout)
	}
	if c.PCRReinsertInterval != 100*time.Millisecond {
		t.Errorf("PCRReinsertInterval = %s, want 100ms", c.PCRReinsertInterval)
	}
}

func TestLoadMultipleAdapters(t *testing.T) {
	os.Clearenv()
	os.Setenv("ASTRAGATE_ADAPTER_COUNT", "2")
	os.Setenv("ASTRAGATE_ADAPTER0_FREQUENCY", "12345000")
	os.Setenv("ASTRAGATE_ADAPTER1_FREQUENCY", "11000000")
	os.Setenv("ASTRAGATE_ADAPTER1_POLARITY", "V")

	c := Load()
	if len(c.Adapters) != 2 {
		t.Fatalf("len(Adapters) = %d, want 2", len(c.Adapters))
	}
	if c.Adapters[0].Frequency != 12345000 {
		t.Errorf("Adapters[0].Frequency = %d, want 12345000", c.Adapters[0].Frequency)
	}
	if c.Adapters[1].Frequency != 11000000 {
		t.Errorf("Adapters[1].Frequency = %d, want 11000000", c.Adapters[1].Frequency)
	}
	if c.Adapters[1].Polarity != "v" {
		t.Errorf("Adapters[1].Polarity = %q, want v (lowercased)", c.Adapters[1].Polarity)
	}
}

func TestLoadCamSettings(t *testing.T) {
	os.Clearenv()
	os.Setenv("ASTRAGATE_CAM_ADDR", "cam.example:15000")
	os.Setenv("ASTRAGATE_CAM_USER", "user1")
	os.Setenv("ASTRAGATE_CAM_PASS", "pass1")

	c := Load()
	if c.CamAddr != "cam.example:15000" {
		t.Errorf("CamAddr = %q", c.CamAddr)
	}
	if c.CamUser != "user1" || c.CamPass != "pass1" {
		t.Errorf("CamUser/CamPass = %q/%q", c.CamUser, c.CamPass)
	}
}

func TestLoadInvalidAdapterCountFallsBackToOne(t *testing.T) {
	os.Clearenv()
	os.Setenv("ASTRAGATE_ADAPTER_COUNT", "0")
	c := Load()
	if c.AdapterCount != 1 {
		t.Errorf("AdapterCount = %d, want fallback to 1", c.AdapterCount)
	}
}
