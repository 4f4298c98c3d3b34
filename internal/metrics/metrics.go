// Package metrics exposes Prometheus collectors for model calls, entry
// refinement, scheduling, and result persistence.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ring2236/ESA-DGR/internal/llm"
	"github.com/ring2236/ESA-DGR/internal/refine"
	"github.com/ring2236/ESA-DGR/internal/scheduler"
)

const namespace = "esa"

var (
	_ llm.Metrics            = (*Metrics)(nil)
	_ refine.EntryObserver   = (*Metrics)(nil)
	_ scheduler.Observer     = (*Metrics)(nil)
	_ scheduler.SinkObserver = (*Metrics)(nil)
)

// Metrics owns a private registry so parallel tests never collide.
type Metrics struct {
	reg *prometheus.Registry

	modelCalls   *prometheus.CounterVec
	modelLatency *prometheus.HistogramVec
	tokens       *prometheus.CounterVec
	retries      *prometheus.CounterVec

	entries       *prometheus.CounterVec
	rounds        prometheus.Histogram
	entryDuration prometheus.Histogram

	tasks    *prometheus.CounterVec
	inFlight prometheus.Gauge

	sinkWrites *prometheus.HistogramVec
}

// New creates and registers all collectors, plus the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		modelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_calls_total",
			Help:      "Model invocations by model, provider kind, and outcome.",
		}, []string{"model", "kind", "outcome"}),
		modelLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_call_duration_seconds",
			Help:      "Latency of model invocations including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"model", "kind"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_tokens_total",
			Help:      "Tokens reported by providers.",
		}, []string{"model", "direction"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_retries_total",
			Help:      "Retried model attempts.",
		}, []string{"model"}),
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_refined_total",
			Help:      "Refined entries by loop outcome.",
		}, []string{"outcome"}),
		rounds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "entry_rounds",
			Help:      "Recorded rounds per refined entry.",
			Buckets:   prometheus.LinearBuckets(0, 1, 11),
		}),
		entryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "entry_duration_seconds",
			Help:      "Wall time to refine one entry.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_tasks_total",
			Help:      "Scheduler tasks by final status.",
		}, []string{"status"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_tasks_in_flight",
			Help:      "Entry tasks currently running.",
		}),
		sinkWrites: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sink_write_duration_seconds",
			Help:      "Result sink append latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
	}

	m.reg.MustRegister(
		m.modelCalls, m.modelLatency, m.tokens, m.retries,
		m.entries, m.rounds, m.entryDuration,
		m.tasks, m.inFlight,
		m.sinkWrites,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// ObserveCall records one model call.
func (m *Metrics) ObserveCall(model, kind, outcome string, d time.Duration) {
	m.modelCalls.WithLabelValues(model, kind, outcome).Inc()
	if outcome != llm.OutcomeCacheHit {
		m.modelLatency.WithLabelValues(model, kind).Observe(d.Seconds())
	}
}

// ObserveTokens records provider token usage.
func (m *Metrics) ObserveTokens(model string, prompt, completion int64) {
	m.tokens.WithLabelValues(model, "prompt").Add(float64(prompt))
	m.tokens.WithLabelValues(model, "completion").Add(float64(completion))
}

// ObserveRetry records one retried attempt.
func (m *Metrics) ObserveRetry(model string) {
	m.retries.WithLabelValues(model).Inc()
}

// ObserveEntry records a refined entry.
func (m *Metrics) ObserveEntry(outcome string, rounds int, d time.Duration) {
	m.entries.WithLabelValues(outcome).Inc()
	m.rounds.Observe(float64(rounds))
	m.entryDuration.Observe(d.Seconds())
}

// TaskStarted marks a scheduler task as running.
func (m *Metrics) TaskStarted() {
	m.inFlight.Inc()
}

// TaskFinished records a scheduler task's status. Skipped entries never started.
func (m *Metrics) TaskFinished(status string, _ time.Duration) {
	m.tasks.WithLabelValues(status).Inc()
	if status != scheduler.StatusSkipped {
		m.inFlight.Dec()
	}
}

// ObserveSinkWrite records a result sink append.
func (m *Metrics) ObserveSinkWrite(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.sinkWrites.WithLabelValues(result).Observe(d.Seconds())
}
