package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestObservePacketIncrementsCounter(t *testing.T) {
	m := NewRegistry()
	m.ObservePacket(0x0010)
	m.ObservePacket(0x0010)
	m.ObserveCRCError(0x0020)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rr, req)

	body := rr.Body.String()
	if !strings.Contains(body, `astragate_packets_total{pid="0x10"} 2`) {
		t.Fatalf("expected packet counter in output, got:\n%s", body)
	}
	if !strings.Contains(body, `astragate_crc_errors_total{pid="0x20"} 1`) {
		t.Fatalf("expected crc error counter in output, got:\n%s", body)
	}
}

func TestSetPIDDemandAndCASlotState(t *testing.T) {
	m := NewRegistry()
	m.SetPIDDemand("adapter0", 0x0100, 3)
	m.SetCASlotState(0, 2)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	body := rr.Body.String()

	if !strings.Contains(body, `astragate_pipeline_pid_demand{node="adapter0",pid="0x100"} 3`) {
		t.Fatalf("expected pid demand gauge in output, got:\n%s", body)
	}
	if !strings.Contains(body, `astragate_ci_slot_state{slot="0"} 2`) {
		t.Fatalf("expected ci slot state gauge in output, got:\n%s", body)
	}
}

func TestHistogramsObserve(t *testing.T) {
	m := NewRegistry()
	m.ECMRoundTrip.Observe(0.05)
	m.DescrambleLatency.Observe(0.0005)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	body := rr.Body.String()

	if !strings.Contains(body, "astragate_ecm_round_trip_seconds") {
		t.Fatalf("expected ecm round trip histogram in output")
	}
	if !strings.Contains(body, "astragate_descramble_cluster_seconds") {
		t.Fatalf("expected descramble latency histogram in output")
	}
}
