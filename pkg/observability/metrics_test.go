package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// TestMetricsRegistered verifies that all metrics are registered in the
// default registry without panicking.
func TestMetricsRegistered(t *testing.T) {
	// Gather all metrics from the default registry. If registration failed
	// in init(), this test would never run (MustRegister panics), but we
	// verify gathering works cleanly.
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("unexpected gather error: %v", err)
	}

	expected := map[string]bool{
		"datasci_requests_total":             false,
		"datasci_request_duration_seconds":   false,
		"datasci_executions_total":           false,
		"datasci_execution_duration_seconds": false,
		"datasci_sessions_active":            false,
		"datasci_sessions_created_total":     false,
		"datasci_sessions_evicted_total":     false,
		"datasci_model_requests_total":       false,
		"datasci_model_latency_seconds":      false,
		"datasci_agent_runs_total":           false,
		"datasci_agent_iterations":           false,
		"datasci_ratelimit_rejected_total":   false,
	}

	for _, mf := range families {
		if _, ok := expected[mf.GetName()]; ok {
			expected[mf.GetName()] = true
		}
	}

	// Vectors only appear after their first observation.
	RequestsTotal.WithLabelValues("GET", "/health", "2xx").Inc()
	RequestDuration.WithLabelValues("GET", "/health").Observe(0.1)
	ExecutionsTotal.WithLabelValues("local", "success").Inc()
	ExecutionDuration.WithLabelValues("local").Observe(0.1)
	SessionsEvictedTotal.WithLabelValues("idle").Inc()
	ModelRequestsTotal.WithLabelValues("test", "ok").Inc()
	ModelLatency.WithLabelValues("test").Observe(0.1)
	AgentRunsTotal.WithLabelValues("completed").Inc()
	RateLimitRejectedTotal.WithLabelValues("default").Inc()

	families, err = prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("unexpected gather error after seeding: %v", err)
	}

	for _, mf := range families {
		if _, ok := expected[mf.GetName()]; ok {
			expected[mf.GetName()] = true
		}
	}

	for name, found := range expected {
		if !found {
			t.Errorf("metric %q not found in default registry", name)
		}
	}
}

// TestMiddlewareRecordsRequestCount verifies that the middleware increments
// the request counter for each served request.
func TestMiddlewareRecordsRequestCount(t *testing.T) {
	// Get baseline count.
	before := counterValue(t, RequestsTotal, "GET", "/health", "2xx")

	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	after := counterValue(t, RequestsTotal, "GET", "/health", "2xx")
	if after-before != 1 {
		t.Errorf("expected request count to increase by 1, got delta=%f", after-before)
	}
}

// TestMiddlewareRecordsDuration verifies that the middleware records
// a positive request duration observation.
func TestMiddlewareRecordsDuration(t *testing.T) {
	before := histogramCount(t, RequestDuration, "POST", "/execute")

	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/execute", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	after := histogramCount(t, RequestDuration, "POST", "/execute")
	if after-before != 1 {
		t.Errorf("expected histogram sample count to increase by 1, got delta=%d", after-before)
	}
}

// TestRouteLabel verifies that session identifiers are collapsed.
func TestRouteLabel(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/execute", "/execute"},
		{"/sessions", "/sessions"},
		{"/sessions/abc-123", "/sessions/{id}"},
		{"/mcp", "/mcp"},
		{"/favicon.ico", "other"},
	}
	for _, tt := range tests {
		if got := RouteLabel(tt.path); got != tt.want {
			t.Errorf("RouteLabel(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

// TestMiddlewareCapturesStatusCode verifies that non-200 status codes are
// captured correctly in the status label.
func TestMiddlewareCapturesStatusCode(t *testing.T) {
	before := counterValue(t, RequestsTotal, "POST", "/execute", "4xx")

	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))

	req := httptest.NewRequest("POST", "/execute", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	after := counterValue(t, RequestsTotal, "POST", "/execute", "4xx")
	if after-before != 1 {
		t.Errorf("expected 4xx count to increase by 1, got delta=%f", after-before)
	}
}

// TestStatusWriterFlush verifies that the statusWriter Flush method
// delegates to the underlying writer when it implements http.Flusher.
func TestStatusWriterFlush(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec, status: http.StatusOK}

	// Should not panic even though it delegates to a Flusher.
	sw.Flush()

	if !rec.Flushed {
		t.Error("expected underlying writer to be flushed")
	}
}

// counterValue reads the current value of a CounterVec for the given labels.
func counterValue(t *testing.T, cv *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	c, err := cv.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("getting counter metric: %v", err)
	}
	if err := c.(prometheus.Metric).Write(m); err != nil {
		t.Fatalf("writing counter metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

// histogramCount reads the observation count from a HistogramVec.
func histogramCount(t *testing.T, hv *prometheus.HistogramVec, labels ...string) uint64 {
	t.Helper()
	m := &dto.Metric{}
	obs, err := hv.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("getting histogram metric: %v", err)
	}
	if err := obs.(prometheus.Metric).Write(m); err != nil {
		t.Fatalf("writing histogram metric: %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}

// gaugeValue reads the current value of a Gauge.
func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		t.Fatalf("writing gauge metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

// TestActiveSessionsGauge verifies the gauge moves with Inc and Dec.
func TestActiveSessionsGauge(t *testing.T) {
	baseline := gaugeValue(t, ActiveSessions)
	ActiveSessions.Inc()
	if got := gaugeValue(t, ActiveSessions); got != baseline+1 {
		t.Errorf("gauge = %f after Inc, want %f", got, baseline+1)
	}
	ActiveSessions.Dec()
	if got := gaugeValue(t, ActiveSessions); got != baseline {
		t.Errorf("gauge = %f after Dec, want %f", got, baseline)
	}
}
