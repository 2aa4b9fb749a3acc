// Package telemetry exposes prometheus metrics and OTLP tracing for the
// radar's jobs.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "radar"

// Metrics implements the llm and pipeline observers. A nil *Metrics
// records nothing.
type Metrics struct {
	registry     *prometheus.Registry
	llmCalls     *prometheus.CounterVec
	llmLatency   *prometheus.HistogramVec
	records      *prometheus.CounterVec
	stageLatency *prometheus.HistogramVec
	collected    *prometheus.CounterVec
	jobRuns      *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		llmCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "llm_calls_total", Help: "Model calls by stage and outcome.",
		}, []string{"stage", "outcome"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "llm_call_seconds", Help: "Model call latency including retries.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"stage"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "pipeline_records_total", Help: "Processed records by outcome.",
		}, []string{"outcome"}),
		stageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "pipeline_stage_seconds", Help: "Pipeline stage latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		collected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "collected_signals_total", Help: "Raw signals stored per collector.",
		}, []string{"collector"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "job_runs_total", Help: "Scheduled job runs by result.",
		}, []string{"job", "result"}),
	}
	m.registry.MustRegister(
		m.llmCalls, m.llmLatency, m.records, m.stageLatency, m.collected, m.jobRuns,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveLLMCall(stage, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.llmCalls.WithLabelValues(stage, outcome).Inc()
	m.llmLatency.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveRecord(outcome string) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveStage(stage string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.stageLatency.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// ObserveCollection counts stored signals. Failed runs (n < 0) are skipped.
func (m *Metrics) ObserveCollection(collector string, n int) {
	if m == nil || n < 0 {
		return
	}
	m.collected.WithLabelValues(collector).Add(float64(n))
}

func (m *Metrics) ObserveJob(job string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.jobRuns.WithLabelValues(job, result).Inc()
}
