// Package metrics provides the Prometheus collectors CRAG's components report to.
package metrics

import (
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for admission, gateway, cache, and
// circuit-breaker activity.
type Metrics struct {
	AdmissionDecisionsTotal *prometheus.CounterVec
	RotationDeltaTotal      prometheus.Counter

	GatewayRequestsTotal   *prometheus.CounterVec
	GatewayRequestDuration *prometheus.HistogramVec
	GatewayInFlight        prometheus.Gauge

	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter
	CacheSize        prometheus.Gauge

	CircuitStateGauge *prometheus.GaugeVec
	RateLimitedTotal  *prometheus.CounterVec

	QueueDepth *prometheus.GaugeVec

	ServiceInfo *prometheus.GaugeVec
}

// New creates a Metrics instance registered against the default registerer.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Metrics instance registered against registerer
// (nil skips registration, useful for tests).
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		AdmissionDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "crag_admission_decisions_total", Help: "Admission decisions by feature and outcome."},
			[]string{"feature", "decision"},
		),
		RotationDeltaTotal: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "crag_rotation_deltas_total", Help: "Number of published rotation deltas."},
		),
		GatewayRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "crag_gateway_requests_total", Help: "Gateway requests by endpoint and outcome."},
			[]string{"endpoint", "outcome"},
		),
		GatewayRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crag_gateway_request_duration_seconds",
				Help:    "Gateway request duration in seconds.",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"endpoint"},
		),
		GatewayInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "crag_gateway_requests_in_flight", Help: "Requests currently in flight."},
		),
		CacheHitsTotal:   prometheus.NewCounter(prometheus.CounterOpts{Name: "crag_cache_hits_total", Help: "Response cache hits."}),
		CacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{Name: "crag_cache_misses_total", Help: "Response cache misses."}),
		CacheSize:        prometheus.NewGauge(prometheus.GaugeOpts{Name: "crag_cache_size", Help: "Current response cache entry count."}),
		CircuitStateGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "crag_circuit_state", Help: "Circuit breaker state (0=closed,1=half_open,2=open)."},
			[]string{"endpoint"},
		),
		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "crag_rate_limited_total", Help: "Rate-limited requests by endpoint."},
			[]string{"endpoint"},
		),
		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "crag_queue_depth", Help: "Request queue depth by priority level."},
			[]string{"priority"},
		),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "crag_service_info", Help: "Static service build info."},
			[]string{"service"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.AdmissionDecisionsTotal, m.RotationDeltaTotal,
			m.GatewayRequestsTotal, m.GatewayRequestDuration, m.GatewayInFlight,
			m.CacheHitsTotal, m.CacheMissesTotal, m.CacheSize,
			m.CircuitStateGauge, m.RateLimitedTotal, m.QueueDepth, m.ServiceInfo,
		)
	}
	m.ServiceInfo.WithLabelValues(serviceName).Set(1)
	return m
}

func (m *Metrics) RecordAdmission(feature, decision string) {
	m.AdmissionDecisionsTotal.WithLabelValues(feature, decision).Inc()
}

func (m *Metrics) RecordGatewayRequest(endpoint, outcome string, d time.Duration) {
	m.GatewayRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
	m.GatewayRequestDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

func (m *Metrics) SetCircuitState(endpoint string, state int) {
	m.CircuitStateGauge.WithLabelValues(endpoint).Set(float64(state))
}

var (
	globalMetrics *Metrics
	globalMu      sync.Mutex
)

// Init lazily creates and returns the process-wide Metrics singleton.
func Init(serviceName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalMetrics == nil {
		globalMetrics = New(serviceName)
	}
	return globalMetrics
}

// Global returns the process-wide Metrics singleton, creating a fallback if needed.
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalMetrics == nil {
		globalMetrics = New("crag")
	}
	return globalMetrics
}

// Enabled reports whether metrics collection is turned on. Defaults to on;
// set CRAG_METRICS_ENABLED=false to disable in environments without a
// Prometheus scraper.
func Enabled() bool {
	return os.Getenv("CRAG_METRICS_ENABLED") != "false"
}
