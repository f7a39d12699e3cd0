// Package config loads astragate's runtime configuration from
// environment variables, following the teacher's getEnv/getEnvInt/
// getEnvBool/getEnvDuration helper idiom in the same package, with the
// PLEX_TUNER_ prefix replaced by ASTRAGATE_.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AdapterConfig describes one DVB adapter/frontend to tune and pump.
type AdapterConfig struct {
	Index      int
	Device     int
	System     string // "dvbs2", "dvbs", "dvbc", "dvbt", "dvbt2"
	Frequency  int    // kHz
	SymbolRate int
	Polarity   string // "h", "v", "l", "r"
	DiseqcPort int

	// ProgramNumber selects which program_number this adapter's output
	// channel remuxes to a single-program stream, feeding CA descriptor
	// discovery for that program alone.
	ProgramNumber uint16
}

// Config holds every astragate runtime setting.
type Config struct {
	// Adapters: how many DVB adapters to drive and each one's tuning.
	AdapterCount int
	Adapters     []AdapterConfig

	// CI: whether to drive the EN 50221 Common Interface stack at all
	// (some deployments run FTA-only with no CAM inserted).
	CIEnabled  bool
	CISlots    int

	// CAM: newcamd server this gateway dispatches ECM/EMM requests to.
	CamAddr   string
	CamUser   string
	CamPass   string
	CamDESKey string

	// Source: where TS packets come from when not reading a tuned DVB
	// adapter directly — "dvb" (default), "udp", or "replay".
	SourceMode string
	UDPAddr    string
	UDPIface   string
	ReplayFile string

	// Output: where each adapter's remuxed single-program stream is
	// sent once it leaves the pipeline — a plain UDP sink, the
	// simplest of the data flow's "UDP output, HTTP downstream, file
	// writer" endpoint kinds. Empty disables forwarding (capture/
	// diagnostics still observe every packet either way).
	OutputUDPAddr string

	// Paths
	CacheDir    string
	StorePath   string
	DiagFSMount string

	// HTTP surfaces
	MetricsAddr string
	HealthAddr  string

	// Capture
	CaptureRingPackets int

	// Runtime tuning
	DeviceLostTimeout time.Duration
	ECMTimeout        time.Duration

	// PCRReinsertInterval is the target spacing between synthetic
	// PCR-bearing packets a program's PES pacer inserts on the PMT's
	// PCR-bearing elementary stream, per §3.3's "configured PCR
	// re-insertion interval".
	PCRReinsertInterval time.Duration
}

// Load reads Config from the environment.
func Load() *Config {
	c := &Config{
		AdapterCount:        getEnvInt("ASTRAGATE_ADAPTER_COUNT", 1),
		CIEnabled:           getEnvBool("ASTRAGATE_CI_ENABLED", true),
		CISlots:             getEnvInt("ASTRAGATE_CI_SLOTS", 1),
		CamAddr:             os.Getenv("ASTRAGATE_CAM_ADDR"),
		CamUser:             os.Getenv("ASTRAGATE_CAM_USER"),
		CamPass:             os.Getenv("ASTRAGATE_CAM_PASS"),
		CamDESKey:           getEnv("ASTRAGATE_CAM_DESKEY", "0102030405060708091011121314"),
		SourceMode:          getEnv("ASTRAGATE_SOURCE_MODE", "dvb"),
		UDPAddr:             os.Getenv("ASTRAGATE_UDP_ADDR"),
		UDPIface:            os.Getenv("ASTRAGATE_UDP_IFACE"),
		ReplayFile:          os.Getenv("ASTRAGATE_REPLAY_FILE"),
		OutputUDPAddr:       os.Getenv("ASTRAGATE_OUTPUT_UDP_ADDR"),
		CacheDir:            getEnv("ASTRAGATE_CACHE", "/var/cache/astragate"),
		StorePath:           getEnv("ASTRAGATE_STORE", "/var/lib/astragate/astragate.db"),
		DiagFSMount:         getEnv("ASTRAGATE_DIAGFS_MOUNT", "/mnt/astragate-diag"),
		MetricsAddr:         getEnv("ASTRAGATE_METRICS_ADDR", ":9120"),
		HealthAddr:          getEnv("ASTRAGATE_HEALTH_ADDR", ":9121"),
		CaptureRingPackets:  getEnvInt("ASTRAGATE_CAPTURE_RING_PACKETS", 4096),
		DeviceLostTimeout:   getEnvDuration("ASTRAGATE_DEVICE_LOST_TIMEOUT", 30*time.Second),
		ECMTimeout:          getEnvDuration("ASTRAGATE_ECM_TIMEOUT", 5*time.Second),
		PCRReinsertInterval: getEnvDuration("ASTRAGATE_PCR_REINSERT_INTERVAL", 100*time.Millisecond),
	}
	if c.AdapterCount <= 0 {
		c.AdapterCount = 1
	}
	if c.CISlots <= 0 {
		c.CISlots = 1
	}
	if c.CaptureRingPackets <= 0 {
		c.CaptureRingPackets = 4096
	}
	c.Adapters = loadAdapters(c.AdapterCount)
	return c
}

// loadAdapters reads ASTRAGATE_ADAPTER<n>_* settings for each of the
// first n adapters; adapter i always gets index i, and its device
// defaults to 0.
func loadAdapters(n int) []AdapterConfig {
	out := make([]AdapterConfig, 0, n)
	for i := 0; i < n; i++ {
		prefix := fmt.Sprintf("ASTRAGATE_ADAPTER%d_", i)
		out = append(out, AdapterConfig{
			Index:         i,
			Device:        getEnvInt(prefix+"DEVICE", 0),
			System:        getEnv(prefix+"SYSTEM", "dvbs2"),
			Frequency:     getEnvInt(prefix+"FREQUENCY", 0),
			SymbolRate:    getEnvInt(prefix+"SYMBOL_RATE", 27500),
			Polarity:      strings.ToLower(getEnv(prefix+"POLARITY", "h")),
			DiseqcPort:    getEnvInt(prefix+"DISEQC_PORT", 0),
			ProgramNumber: uint16(getEnvInt(prefix+"PROGRAM", 1)),
		})
	}
	return out
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
