package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline Prometheus metrics.
var (
	PipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chronolens",
			Name:      "pipeline_runs_total",
			Help:      "Total number of pipeline runs",
		},
		[]string{"mode", "status"},
	)

	PipelineStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chronolens",
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage"},
	)

	RetrievalFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chronolens",
			Name:      "retrieval_failures_total",
			Help:      "Retrievals that degraded to an empty context",
		},
		[]string{"reason"},
	)

	StreamCancellationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chronolens",
			Name:      "stream_cancellations_total",
			Help:      "Streaming runs stopped by client cancellation",
		},
	)

	ContextSizeChars = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chronolens",
			Name:      "context_size_chars",
			Help:      "Size of the injected context block in characters",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 16000, 32000},
		},
	)

	ContextTruncationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chronolens",
			Name:      "context_truncations_total",
			Help:      "Context blocks cut to fit the character budget",
		},
	)

	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chronolens",
			Name:      "llm_requests_total",
			Help:      "Total number of model API requests",
		},
		[]string{"op", "model", "status"},
	)

	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chronolens",
			Name:      "llm_request_duration_seconds",
			Help:      "Model API request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"op", "model"},
	)

	LLMTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chronolens",
			Name:      "llm_tokens_total",
			Help:      "Total model tokens consumed",
		},
		[]string{"model", "type"},
	)

	LLMErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chronolens",
			Name:      "llm_errors_total",
			Help:      "Total model API errors",
		},
		[]string{"op", "model", "error_type"},
	)

	BudgetTokensRemaining = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "chronolens",
			Name:      "budget_tokens_remaining",
			Help:      "Remaining token budget",
		},
		[]string{"period"},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers Prometheus pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(PipelineRunsTotal)
	prometheus.MustRegister(PipelineStageDuration)
	prometheus.MustRegister(RetrievalFailuresTotal)
	prometheus.MustRegister(StreamCancellationsTotal)
	prometheus.MustRegister(ContextSizeChars)
	prometheus.MustRegister(ContextTruncationsTotal)
	prometheus.MustRegister(LLMRequestsTotal)
	prometheus.MustRegister(LLMRequestDuration)
	prometheus.MustRegister(LLMTokensTotal)
	prometheus.MustRegister(LLMErrorsTotal)
	prometheus.MustRegister(BudgetTokensRemaining)
	pipelineMetricsRegistered = true
}
