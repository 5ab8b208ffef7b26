// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the interpreter service and the agent loop.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

// ExecutionBuckets covers snippet runtimes from 5ms up to the maximum
// execution timeout.
var ExecutionBuckets = []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 10, 30, 60, 300}

// IterationBuckets covers agent runs from a single step to a large budget.
var IterationBuckets = []float64{1, 2, 3, 5, 8, 13, 20, 30, 50}

var (
	// RequestsTotal counts all HTTP requests by method, route and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datasci_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration records HTTP request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "datasci_request_duration_seconds",
			Help:    "Request duration",
			Buckets: ExecutionBuckets,
		},
		[]string{"method", "route"},
	)

	// ExecutionsTotal counts code executions by backend and outcome status.
	ExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datasci_executions_total",
			Help: "Code executions",
		},
		[]string{"backend", "status"},
	)

	// ExecutionDuration records wall-clock execution time in seconds.
	ExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "datasci_execution_duration_seconds",
			Help:    "Execution duration",
			Buckets: ExecutionBuckets,
		},
		[]string{"backend"},
	)

	// ActiveSessions tracks the number of live sessions in the registry.
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "datasci_sessions_active",
			Help: "Active sessions",
		},
	)

	// SessionsCreatedTotal counts sessions created.
	SessionsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "datasci_sessions_created_total",
			Help: "Sessions created",
		},
	)

	// SessionsEvictedTotal counts sessions removed by reason (idle, deleted, shutdown).
	SessionsEvictedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datasci_sessions_evicted_total",
			Help: "Sessions removed",
		},
		[]string{"reason"},
	)

	// ModelRequestsTotal counts completion requests sent to the language model.
	ModelRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datasci_model_requests_total",
			Help: "Model requests",
		},
		[]string{"model", "status"},
	)

	// ModelLatency records language model latency in seconds.
	ModelLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "datasci_model_latency_seconds",
			Help:    "Model latency",
			Buckets: LLMBuckets,
		},
		[]string{"model"},
	)

	// AgentRunsTotal counts finished agent runs by terminal status.
	AgentRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datasci_agent_runs_total",
			Help: "Agent runs",
		},
		[]string{"status"},
	)

	// AgentIterations records how many model calls each run used.
	AgentIterations = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "datasci_agent_iterations",
			Help:    "Model calls per agent run",
			Buckets: IterationBuckets,
		},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datasci_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"tier"},
	)

	// ExecutionsRejectedTotal counts executions refused because the
	// service was at capacity.
	ExecutionsRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "datasci_executions_rejected_total",
			Help: "Executions rejected at capacity",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		ExecutionsTotal,
		ExecutionDuration,
		ActiveSessions,
		SessionsCreatedTotal,
		SessionsEvictedTotal,
		ModelRequestsTotal,
		ModelLatency,
		AgentRunsTotal,
		AgentIterations,
		RateLimitRejectedTotal,
		ExecutionsRejectedTotal,
	)
}
