// Package metrics wires github.com/prometheus/client_golang into
// astragate: per-PID packet/CRC-error counters, pipeline demand
// gauges, CI slot state, and the ECM/descramble latency histograms
// named in SPEC_FULL.md's DOMAIN STACK table, exposed over /metrics
// next to the health endpoints the way internal/health's handlers are
// mounted on the same mux.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns every astragate metric and serves them over HTTP.
type Registry struct {
	reg *prometheus.Registry

	PacketsTotal    *prometheus.CounterVec
	CRCErrorsTotal  *prometheus.CounterVec
	PIDDemand       *prometheus.GaugeVec
	CASlotState     *prometheus.GaugeVec
	ECMRoundTrip    prometheus.Histogram
	DescrambleLatency prometheus.Histogram
}

// NewRegistry creates a Registry with every metric registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	m := &Registry{
		reg: reg,
		PacketsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "astragate",
			Name:      "packets_total",
			Help:      "TS packets observed per PID.",
		}, []string{"pid"}),
		CRCErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "astragate",
			Name:      "crc_errors_total",
			Help:      "Section CRC validation failures per PID.",
		}, []string{"pid"}),
		PIDDemand: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "astragate",
			Name:      "pipeline_pid_demand",
			Help:      "Reference count of subscribers demanding a PID on a pipeline node.",
		}, []string{"node", "pid"}),
		CASlotState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "astragate",
			Name:      "ci_slot_state",
			Help:      "EN 50221 CI slot state machine value (0=RESET,1=CONNECTING,2=READY).",
		}, []string{"slot"}),
		ECMRoundTrip: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "astragate",
			Name:      "ecm_round_trip_seconds",
			Help:      "Latency from ECM dispatch to control word delivery.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		DescrambleLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "astragate",
			Name:      "descramble_cluster_seconds",
			Help:      "Time spent decrypting one CSA packet cluster.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 10),
		}),
	}

	reg.MustRegister(
		m.PacketsTotal,
		m.CRCErrorsTotal,
		m.PIDDemand,
		m.CASlotState,
		m.ECMRoundTrip,
		m.DescrambleLatency,
	)
	return m
}

// Handler returns the /metrics HTTP handler.
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// ObservePacket records one TS packet seen on pid.
func (m *Registry) ObservePacket(pid uint16) {
	m.PacketsTotal.WithLabelValues(pidLabel(pid)).Inc()
}

// ObserveCRCError records one malformed-section drop on pid.
func (m *Registry) ObserveCRCError(pid uint16) {
	m.CRCErrorsTotal.WithLabelValues(pidLabel(pid)).Inc()
}

// SetPIDDemand records the current subscriber count for pid on node.
func (m *Registry) SetPIDDemand(node string, pid uint16, demand int) {
	m.PIDDemand.WithLabelValues(node, pidLabel(pid)).Set(float64(demand))
}

// SetCASlotState records a CI slot's current state machine value.
func (m *Registry) SetCASlotState(slot int, state int) {
	m.CASlotState.WithLabelValues(strconv.Itoa(slot)).Set(float64(state))
}

func pidLabel(pid uint16) string {
	return "0x" + strconv.FormatUint(uint64(pid), 16)
}
