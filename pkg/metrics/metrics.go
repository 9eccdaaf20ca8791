// Package metrics provides Prometheus-based metrics for pipeline runs, steps,
// fixes, JSON repairs, and LLM requests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder collects pipeline and LLM metrics. A nil *Recorder is safe to use
// and records nothing, so callers never need to branch on metrics being
// enabled.
type Recorder struct {
	runsTotal         *prometheus.CounterVec
	stepsTotal        *prometheus.CounterVec
	fixAttemptsTotal  prometheus.Counter
	jsonRepairsTotal  *prometheus.CounterVec
	executionDuration prometheus.Histogram
	llmRequestsTotal  *prometheus.CounterVec
	llmDuration       *prometheus.HistogramVec
}

// NewRecorder creates a recorder registered against the given registerer.
// Pass prometheus.DefaultRegisterer for normal operation.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_runs_total",
				Help: "Total number of pipeline runs by outcome",
			},
			[]string{"outcome"},
		),
		stepsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_steps_total",
				Help: "Total number of executed plan steps by review decision",
			},
			[]string{"decision"},
		),
		fixAttemptsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pipeline_fix_attempts_total",
				Help: "Total number of fix attempts across all runs",
			},
		),
		jsonRepairsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_json_repairs_total",
				Help: "Total number of JSON repair resubmissions by role",
			},
			[]string{"role"},
		),
		executionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pipeline_execution_duration_seconds",
				Help:    "Duration of harness executions in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		llmRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_requests_total",
				Help: "Total number of LLM requests by model, role, and status",
			},
			[]string{"model", "role", "status"},
		),
		llmDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_request_duration_seconds",
				Help:    "Duration of LLM requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model", "role"},
		),
	}
}

// ObserveRun records one completed pipeline run.
func (r *Recorder) ObserveRun(outcome string) {
	if r == nil {
		return
	}
	r.runsTotal.WithLabelValues(outcome).Inc()
}

// ObserveStep records one executed step with its review decision.
func (r *Recorder) ObserveStep(decision string) {
	if r == nil {
		return
	}
	r.stepsTotal.WithLabelValues(decision).Inc()
}

// IncFixAttempt counts one fix attempt.
func (r *Recorder) IncFixAttempt() {
	if r == nil {
		return
	}
	r.fixAttemptsTotal.Inc()
}

// IncJSONRepair counts one repair resubmission for a role.
func (r *Recorder) IncJSONRepair(role string) {
	if r == nil {
		return
	}
	r.jsonRepairsTotal.WithLabelValues(role).Inc()
}

// ObserveExecution records the duration of one harness run.
func (r *Recorder) ObserveExecution(duration time.Duration) {
	if r == nil {
		return
	}
	r.executionDuration.Observe(duration.Seconds())
}

// ObserveLLMRequest records one completed LLM request.
func (r *Recorder) ObserveLLMRequest(model, role string, success bool, duration time.Duration) {
	if r == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	r.llmRequestsTotal.WithLabelValues(model, role, status).Inc()
	r.llmDuration.WithLabelValues(model, role).Observe(duration.Seconds())
}
