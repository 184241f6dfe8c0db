// Package metrics holds the server's Prometheus collectors. Every method is
// safe on a nil *Metrics so tests and tools can run without a registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Upsert results.
const (
	ResultApplied   = "applied"
	ResultDuplicate = "duplicate"
	ResultConflict  = "conflict"
	ResultRejected  = "rejected"
)

// Seal results.
const (
	SealIssued   = "issued"
	SealExisting = "existing"
	SealRejected = "rejected"
)

type Metrics struct {
	registry *prometheus.Registry

	upserts       *prometheus.CounterVec
	seals         *prometheus.CounterVec
	verifications *prometheus.CounterVec
	archived      prometheus.Counter
	rpcDuration   *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		upserts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldseal_upserts_total",
			Help: "Job and contact upserts by entity and result",
		}, []string{"entity", "result"}),
		seals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldseal_seals_total",
			Help: "Seal requests by result",
		}, []string{"result"}),
		verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldseal_verifications_total",
			Help: "Seal verifications by outcome",
		}, []string{"status"}),
		archived: f.NewCounter(prometheus.CounterOpts{
			Name: "fieldseal_jobs_archived_total",
			Help: "Sealed jobs moved to the archive",
		}),
		rpcDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fieldseal_rpc_duration_seconds",
			Help:    "Sync API call latency by method and status code",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "code"}),
	}
}

func (m *Metrics) Upsert(entity, result string) {
	if m == nil {
		return
	}
	m.upserts.WithLabelValues(entity, result).Inc()
}

func (m *Metrics) Seal(result string) {
	if m == nil {
		return
	}
	m.seals.WithLabelValues(result).Inc()
}

func (m *Metrics) Verification(status string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(status).Inc()
}

func (m *Metrics) Archived(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.archived.Add(float64(n))
}

func (m *Metrics) ObserveRPC(method, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.rpcDuration.WithLabelValues(method, code).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
