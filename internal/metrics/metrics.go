// Package metrics exposes Prometheus instrumentation for the verification
// pipeline. All methods are nil-safe so components can run without metrics.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the verification pipeline.
type Metrics struct {
	// Final verdicts by outcome (YES, NO, SKIPPED_SUBJECTIVE, ERROR)
	Statements *prometheus.CounterVec

	// Per-question judgments by value
	Judgments *prometheus.CounterVec

	// Generation calls served by a backend
	GenerationLatency *prometheus.HistogramVec

	// Local requests that were served by the remote backend instead
	BackendFallbacks prometheus.Counter

	// Evidence retrievals that failed and were treated as inconclusive
	RetrievalFailures prometheus.Counter

	// Search latency by cache outcome
	SearchLatency *prometheus.HistogramVec

	// Decompositions that produced no questions
	EmptyDecompositions prometheus.Counter

	// End-to-end verification latency per statement
	VerifyLatency prometheus.Histogram

	registry *prometheus.Registry
}

// New creates a Metrics instance registered on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := NewWithRegisterer(reg)
	m.registry = reg
	return m
}

// NewWithRegisterer registers all pipeline metrics on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Statements: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "verity_statements_total",
			Help: "Statements processed by final verdict",
		}, []string{"verdict"}),

		Judgments: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "verity_judgments_total",
			Help: "Atomic question judgments by value",
		}, []string{"judgment"}),

		GenerationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "verity_generation_duration_seconds",
			Help:    "Duration of generation calls by serving backend and status",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"backend", "status"}),

		BackendFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "verity_backend_fallbacks_total",
			Help: "Local generation requests served by the remote backend because the local model was unavailable",
		}),

		RetrievalFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "verity_retrieval_failures_total",
			Help: "Evidence retrievals that failed and produced an inconclusive judgment",
		}),

		SearchLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "verity_search_duration_seconds",
			Help:    "Duration of evidence retrieval by cache outcome",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"cache"}),

		EmptyDecompositions: factory.NewCounter(prometheus.CounterOpts{
			Name: "verity_empty_decompositions_total",
			Help: "Decompositions that yielded zero atomic questions",
		}),

		VerifyLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "verity_verify_duration_seconds",
			Help:    "Duration of a full statement verification",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
	}
}

// IncrementStatement records a final verdict.
func (m *Metrics) IncrementStatement(verdict string) {
	if m != nil {
		m.Statements.WithLabelValues(verdict).Inc()
	}
}

// IncrementJudgment records one question judgment.
func (m *Metrics) IncrementJudgment(judgment string) {
	if m != nil {
		m.Judgments.WithLabelValues(judgment).Inc()
	}
}

// ObserveGeneration records a generation call.
func (m *Metrics) ObserveGeneration(backend string, d time.Duration, err error) {
	if m != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		m.GenerationLatency.WithLabelValues(backend, status).Observe(d.Seconds())
	}
}

// IncrementFallback records a local-to-remote fallback.
func (m *Metrics) IncrementFallback() {
	if m != nil {
		m.BackendFallbacks.Inc()
	}
}

// IncrementRetrievalFailure records a failed evidence retrieval.
func (m *Metrics) IncrementRetrievalFailure() {
	if m != nil {
		m.RetrievalFailures.Inc()
	}
}

// ObserveSearch records a search call; cached reports whether it was a cache hit.
func (m *Metrics) ObserveSearch(d time.Duration, cached bool) {
	if m != nil {
		label := "miss"
		if cached {
			label = "hit"
		}
		m.SearchLatency.WithLabelValues(label).Observe(d.Seconds())
	}
}

// IncrementEmptyDecomposition records a decomposition with no questions.
func (m *Metrics) IncrementEmptyDecomposition() {
	if m != nil {
		m.EmptyDecompositions.Inc()
	}
}

// ObserveVerify records the end-to-end duration for one statement.
func (m *Metrics) ObserveVerify(d time.Duration) {
	if m != nil {
		m.VerifyLatency.Observe(d.Seconds())
	}
}

// Gatherer returns the registry created by New, or nil.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil || m.registry == nil {
		return nil
	}
	return m.registry
}

// WriteTextfile writes the current metrics in the Prometheus text format,
// suitable for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	g := m.Gatherer()
	if g == nil {
		return fmt.Errorf("metrics registry not available")
	}
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
