// Package metrics holds the Prometheus collectors for the ingestion pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nestlog"

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeDegraded = "degraded"
	OutcomeError    = "error"
	OutcomeSkipped  = "skipped"
)

// Metrics is the set of pipeline collectors, registered on their own registry.
type Metrics struct {
	registry *prometheus.Registry

	stageDuration     *prometheus.HistogramVec
	originCreates     *prometheus.CounterVec
	projections       *prometheus.CounterVec
	skippedCandidates *prometheus.CounterVec
	resolverDrops     prometheus.Counter
	messages          *prometheus.CounterVec
}

// New creates and registers the collectors along with the Go and process
// collectors.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "pipeline_stage_duration_seconds",
		Help:      "Time spent in each pipeline stage by outcome",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"stage", "outcome"})
	m.originCreates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "origin_events_total",
		Help:      "Origin Log appends by result (created or duplicate)",
	}, []string{"result"})
	m.projections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "projections_total",
		Help:      "Projection runs by outcome",
	}, []string{"outcome"})
	m.skippedCandidates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "skipped_candidates_total",
		Help:      "Extracted candidates skipped during projection by reason",
	}, []string{"reason"})
	m.resolverDrops = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "attachment_resolve_drops_total",
		Help:      "Attachment ids dropped because their metadata lookup failed",
	})
	m.messages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_total",
		Help:      "Ingested messages by transport and classification",
	}, []string{"transport", "classification"})

	m.registry.MustRegister(
		m.stageDuration, m.originCreates, m.projections,
		m.skippedCandidates, m.resolverDrops, m.messages,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveStage records how long a pipeline stage took.
func (m *Metrics) ObserveStage(stage, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage, outcome).Observe(d.Seconds())
}

// OriginCreated records an Origin Log append or duplicate.
func (m *Metrics) OriginCreated(created bool) {
	if m == nil {
		return
	}
	result := "duplicate"
	if created {
		result = "created"
	}
	m.originCreates.WithLabelValues(result).Inc()
}

// Projection records a projection run.
func (m *Metrics) Projection(outcome string) {
	if m == nil {
		return
	}
	m.projections.WithLabelValues(outcome).Inc()
}

// CandidateSkipped records a candidate dropped during projection.
func (m *Metrics) CandidateSkipped(reason string) {
	if m == nil {
		return
	}
	m.skippedCandidates.WithLabelValues(reason).Inc()
}

// ResolverDropped records an attachment id dropped by the resolver.
func (m *Metrics) ResolverDropped() {
	if m == nil {
		return
	}
	m.resolverDrops.Inc()
}

// Message records an ingested message.
func (m *Metrics) Message(transport, classification string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(transport, classification).Inc()
}
