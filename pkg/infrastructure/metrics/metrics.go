// Package metrics exports the orchestration core's Prometheus metrics:
// per-stage counters and histograms, pipeline-wide request counters, and
// a gauge for in-flight requests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PipelineRequestsTotal counts completed pipeline runs by final status
	// (completed, failed, needs_clarification).
	PipelineRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_requests_total",
		Help: "Total pipeline requests processed, labeled by final status.",
	}, []string{"status"})

	// PipelineRequestDuration records total end-to-end pipeline latency.
	PipelineRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pipeline_request_duration_seconds",
		Help:    "End-to-end pipeline request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	})

	// StageExecutionsTotal counts stage invocations by stage name and
	// outcome (success, error).
	StageExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stage_executions_total",
		Help: "Total stage invocations, labeled by stage and outcome.",
	}, []string{"stage", "outcome"})

	// StageDuration records per-stage latency.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stage_duration_seconds",
		Help:    "Per-stage execution duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	// ClarificationsRequestedTotal counts clarification responses issued.
	ClarificationsRequestedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clarifications_requested_total",
		Help: "Total clarification responses returned to callers.",
	})

	// ClarificationRefusalsTotal counts refusal responses issued after the
	// clarification attempt ceiling was reached.
	ClarificationRefusalsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clarification_refusals_total",
		Help: "Total times the clarification attempt ceiling forced a refusal response.",
	})

	// LLMCallsTotal counts LLM Gateway calls by provider.
	LLMCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_calls_total",
		Help: "Total LLM Gateway calls, labeled by provider.",
	}, []string{"provider"})

	// LLMCallErrorsTotal counts LLM Gateway call failures by provider and
	// error kind.
	LLMCallErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_call_errors_total",
		Help: "Total LLM Gateway call failures, labeled by provider and error kind.",
	}, []string{"provider", "error_kind"})

	// ExecutionStepsTotal counts Stage E step completions by outcome.
	ExecutionStepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execution_steps_total",
		Help: "Total plan steps executed, labeled by outcome.",
	}, []string{"outcome"})

	// ActiveRequestsGauge tracks requests currently in flight.
	ActiveRequestsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "active_requests",
		Help: "Number of pipeline requests currently being processed.",
	})

	// AssetValidationFailuresTotal counts entity resolution failures
	// against the asset service.
	AssetValidationFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "asset_validation_failures_total",
		Help: "Total requests that failed asset-service entity resolution.",
	})
)

// RecordPipelineCompletion records a finished pipeline run.
func RecordPipelineCompletion(status string, duration time.Duration) {
	PipelineRequestsTotal.WithLabelValues(status).Inc()
	PipelineRequestDuration.Observe(duration.Seconds())
}

// RecordStage records one stage invocation's outcome and duration.
func RecordStage(stage, outcome string, duration time.Duration) {
	StageExecutionsTotal.WithLabelValues(stage, outcome).Inc()
	StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordClarification increments the clarification counter.
func RecordClarification() {
	ClarificationsRequestedTotal.Inc()
}

// RecordClarificationRefusal increments the refusal counter.
func RecordClarificationRefusal() {
	ClarificationRefusalsTotal.Inc()
}

// RecordLLMCall increments the LLM call counter for provider.
func RecordLLMCall(provider string) {
	LLMCallsTotal.WithLabelValues(provider).Inc()
}

// RecordLLMCallError increments the LLM error counter for provider and
// errorKind.
func RecordLLMCallError(provider, errorKind string) {
	LLMCallErrorsTotal.WithLabelValues(provider, errorKind).Inc()
}

// RecordExecutionStep increments the execution step counter for outcome
// ("completed" or "failed").
func RecordExecutionStep(outcome string) {
	ExecutionStepsTotal.WithLabelValues(outcome).Inc()
}

// RecordAssetValidationFailure increments the asset validation failure
// counter.
func RecordAssetValidationFailure() {
	AssetValidationFailuresTotal.Inc()
}

// IncrementActiveRequests marks a request as started.
func IncrementActiveRequests() {
	ActiveRequestsGauge.Inc()
}

// DecrementActiveRequests marks a request as finished.
func DecrementActiveRequests() {
	ActiveRequestsGauge.Dec()
}

// Timer measures elapsed wall-clock time for a single stage or request.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Elapsed returns the time since the timer started.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// RecordStage records the elapsed time as one stage invocation.
func (t *Timer) RecordStage(stage, outcome string) {
	RecordStage(stage, outcome, t.Elapsed())
}

// RecordPipeline records the elapsed time as one completed pipeline run.
func (t *Timer) RecordPipeline(status string) {
	RecordPipelineCompletion(status, t.Elapsed())
}
