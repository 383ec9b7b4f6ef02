// Package metrics exposes Prometheus counters for pairing, sessions and uploads.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pairlink"

// Result labels shared by the counters
const (
	ResultOK          = "ok"
	ResultFailed      = "failed"
	ResultInvalid     = "invalid"
	ResultMissing     = "missing"
	ResultUnavailable = "unavailable"
)

// Metrics holds every collector on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	pairingRequests  *prometheus.CounterVec
	sessionsActive   prometheus.Gauge
	sessionRestarts  prometheus.Counter
	connectionCloses *prometheus.CounterVec
	uploadsTotal     *prometheus.CounterVec
	uploadDuration   *prometheus.HistogramVec
	exportsTotal     *prometheus.CounterVec
}

// New registers all collectors, plus the Go and process collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pairingRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pairing_requests_total",
			Help:      "Pairing requests by result.",
		}, []string{"result"}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions with a running supervisor.",
		}),
		sessionRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_restarts_total",
			Help:      "Lifecycle restarts after a transient close.",
		}),
		connectionCloses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_closes_total",
			Help:      "Protocol connection closes by kind.",
		}, []string{"kind"}),
		uploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Bundle uploads by provider and result.",
		}, []string{"provider", "result"}),
		uploadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_duration_seconds",
			Help:      "Time spent in a single provider upload.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		exportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Credential exports through the provider chain by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		m.pairingRequests,
		m.sessionsActive,
		m.sessionRestarts,
		m.connectionCloses,
		m.uploadsTotal,
		m.uploadDuration,
		m.exportsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) PairingRequest(result string) {
	if m == nil {
		return
	}
	m.pairingRequests.WithLabelValues(result).Inc()
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.sessionsActive.Inc()
}

func (m *Metrics) SessionEnded() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}

func (m *Metrics) SessionRestarted() {
	if m == nil {
		return
	}
	m.sessionRestarts.Inc()
}

func (m *Metrics) ConnectionClosed(kind string) {
	if m == nil {
		return
	}
	m.connectionCloses.WithLabelValues(kind).Inc()
}

// Upload records one provider attempt
func (m *Metrics) Upload(provider, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.uploadsTotal.WithLabelValues(provider, result).Inc()
	m.uploadDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// Export records one run of the whole provider chain
func (m *Metrics) Export(result string) {
	if m == nil {
		return
	}
	m.exportsTotal.WithLabelValues(result).Inc()
}
