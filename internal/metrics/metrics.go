package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry creates a dedicated Prometheus registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the Prometheus scrape handler for reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics business metrics. All methods are safe on a nil receiver so
// components can run without metrics in tests.
type AppMetrics struct {
	ResolveTotal     *prometheus.CounterVec   // labels: kind, strategy, outcome
	ResolveDuration  *prometheus.HistogramVec // labels: kind
	StageErrors      *prometheus.CounterVec   // labels: stage
	CacheRequests    *prometheus.CounterVec   // labels: result=hit|miss|refresh
	CacheFetchTotal  *prometheus.CounterVec   // labels: result=ok|error|discarded
	CacheSize        prometheus.Gauge
	ACSRequests      *prometheus.CounterVec // labels: method, code
	ACSBreakerState  prometheus.Gauge       // 0=closed 1=open 2=half_open
	ChatCommandTotal *prometheus.CounterVec // labels: command
}

// NewAppMetrics registers and returns the business metrics.
func NewAppMetrics(reg *prometheus.Registry) *AppMetrics {
	m := &AppMetrics{
		ResolveTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resolve_total",
			Help: "Device resolutions by identifier kind, winning strategy and outcome.",
		}, []string{"kind", "strategy", "outcome"}),
		ResolveDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "resolve_duration_seconds",
			Help:    "End-to-end device resolution latency.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
		}, []string{"kind"}),
		StageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resolve_stage_errors_total",
			Help: "Transport errors swallowed per cascade stage.",
		}, []string{"stage"}),
		CacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "device_cache_requests_total",
			Help: "Device collection cache lookups.",
		}, []string{"result"}),
		CacheFetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "device_cache_fetch_total",
			Help: "Underlying full-collection fetches.",
		}, []string{"result"}),
		CacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "device_cache_size",
			Help: "Devices in the current cached snapshot.",
		}),
		ACSRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "acs_requests_total",
			Help: "HTTP requests sent to the ACS.",
		}, []string{"method", "code"}),
		ACSBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "acs_breaker_state",
			Help: "ACS circuit breaker state (0=closed, 1=open, 2=half_open).",
		}),
		ChatCommandTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_commands_total",
			Help: "Chat commands handled.",
		}, []string{"command"}),
	}
	reg.MustRegister(
		m.ResolveTotal, m.ResolveDuration, m.StageErrors,
		m.CacheRequests, m.CacheFetchTotal, m.CacheSize,
		m.ACSRequests, m.ACSBreakerState, m.ChatCommandTotal,
	)
	return m
}

func (m *AppMetrics) ObserveResolve(kind, strategy, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.ResolveTotal.WithLabelValues(kind, strategy, outcome).Inc()
	m.ResolveDuration.WithLabelValues(kind).Observe(took.Seconds())
}

func (m *AppMetrics) StageError(stage string) {
	if m == nil {
		return
	}
	m.StageErrors.WithLabelValues(stage).Inc()
}

func (m *AppMetrics) CacheRequest(result string) {
	if m == nil {
		return
	}
	m.CacheRequests.WithLabelValues(result).Inc()
}

func (m *AppMetrics) CacheFetch(result string, size int) {
	if m == nil {
		return
	}
	m.CacheFetchTotal.WithLabelValues(result).Inc()
	if result == "ok" {
		m.CacheSize.Set(float64(size))
	}
}

func (m *AppMetrics) ACSRequest(method, code string) {
	if m == nil {
		return
	}
	m.ACSRequests.WithLabelValues(method, code).Inc()
}

func (m *AppMetrics) BreakerState(state int) {
	if m == nil {
		return
	}
	m.ACSBreakerState.Set(float64(state))
}

func (m *AppMetrics) ChatCommand(command string) {
	if m == nil {
		return
	}
	m.ChatCommandTotal.WithLabelValues(command).Inc()
}
