// Package metrics exposes Prometheus collectors for the extraction pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "extractor"

// Page outcomes.
const (
	PageAnalyzed = "analyzed"
	PageTextOnly = "text_only"
	PageSkipped  = "skipped"
)

type Metrics struct {
	registry *prometheus.Registry

	pages         *prometheus.CounterVec
	llmCalls      *prometheus.CounterVec
	records       *prometheus.CounterVec
	duplicates    prometheus.Counter
	qaFailures    *prometheus.CounterVec
	iterations    *prometheus.CounterVec
	coverageScore prometheus.Gauge
	stageSeconds  *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_total",
			Help:      "Pages processed by the extraction stage, by outcome.",
		}, []string{"outcome"}),
		llmCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "LLM capability calls by role and outcome.",
		}, []string{"role", "outcome"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Canonical records emitted by merge, by section.",
		}, []string{"section"}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_removed_total",
			Help:      "Records removed as near-duplicates.",
		}),
		qaFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "qa_failures_total",
			Help:      "QA check failures by check and severity.",
		}, []string{"check", "severity"}),
		iterations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loop_iterations_total",
			Help:      "Coverage loop iterations by outcome.",
		}, []string{"outcome"}),
		coverageScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "coverage_score",
			Help:      "Coverage score of the most recent iteration.",
		}),
		stageSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time per pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"stage"}),
	}
	reg.MustRegister(m.pages, m.llmCalls, m.records, m.duplicates, m.qaFailures, m.iterations, m.coverageScore, m.stageSeconds)
	return m
}

// Registry returns the underlying registry, or nil for a nil receiver.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Page(outcome string) {
	if m == nil {
		return
	}
	m.pages.WithLabelValues(outcome).Inc()
}

// LLMCall records one capability call. err == nil counts as "ok".
func (m *Metrics) LLMCall(role string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.llmCalls.WithLabelValues(role, outcome).Inc()
}

func (m *Metrics) Records(section string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.records.WithLabelValues(section).Add(float64(n))
}

func (m *Metrics) Duplicates(n int) {
	if m == nil || n == 0 {
		return
	}
	m.duplicates.Add(float64(n))
}

func (m *Metrics) QAFailure(check, severity string) {
	if m == nil {
		return
	}
	m.qaFailures.WithLabelValues(check, severity).Inc()
}

func (m *Metrics) Iteration(failed bool, score float64) {
	if m == nil {
		return
	}
	if failed {
		m.iterations.WithLabelValues("failed").Inc()
		return
	}
	m.iterations.WithLabelValues("ok").Inc()
	m.coverageScore.Set(score)
}

// Since observes the time elapsed from start for stage.
func (m *Metrics) Since(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.stageSeconds.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// WriteTextfile dumps the registry in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
