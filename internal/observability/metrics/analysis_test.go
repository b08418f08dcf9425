package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
)

func TestAnalysisMetricsRecordsRunOutcomes(t *testing.T) {
	m := NewAnalysisMetrics("api", prometheus.NewRegistry())

	m.RunStarted()
	if got := testutil.ToFloat64(m.runsInFlight); got != 1 {
		t.Fatalf("expected 1 run in flight, got %v", got)
	}
	m.RunFinished("completed", 2*time.Second)
	m.RunStarted()
	m.RunFinished("", time.Second)

	if got := testutil.ToFloat64(m.runsInFlight); got != 0 {
		t.Fatalf("expected no runs in flight, got %v", got)
	}
	if got := testutil.ToFloat64(m.runsTotal.WithLabelValues("api", "completed")); got != 1 {
		t.Fatalf("expected 1 completed run, got %v", got)
	}
	if got := testutil.ToFloat64(m.runsTotal.WithLabelValues("api", "unknown")); got != 1 {
		t.Fatalf("expected empty outcome to be recorded as unknown, got %v", got)
	}
}

func TestAnalysisMetricsTokensAndRetrieval(t *testing.T) {
	m := NewAnalysisMetrics("worker", prometheus.NewRegistry())

	m.ObserveTokens("primary", domain.TokenUsage{PromptTokens: 120, CompletionTokens: 30})
	m.ObserveTokens("primary", domain.TokenUsage{})
	m.RecordRetrieval("typesense", 0)
	m.RecordRetrieval("typesense", 4)

	if got := testutil.ToFloat64(m.llmTokensTotal.WithLabelValues("worker", "primary", "in")); got != 120 {
		t.Fatalf("expected 120 prompt tokens, got %v", got)
	}
	if got := testutil.ToFloat64(m.noContextTotal.WithLabelValues("worker", "typesense")); got != 1 {
		t.Fatalf("expected one empty search, got %v", got)
	}
}

func TestAnalysisMetricsBreakerState(t *testing.T) {
	m := NewAnalysisMetrics("api", prometheus.NewRegistry())

	m.BreakerStateChange("llm.primary", "closed", "open")
	if got := testutil.ToFloat64(m.breakerState.WithLabelValues("api", "llm.primary")); got != 2 {
		t.Fatalf("expected open state, got %v", got)
	}
	m.BreakerStateChange("llm.primary", "open", "half-open")
	if got := testutil.ToFloat64(m.breakerState.WithLabelValues("api", "llm.primary")); got != 1 {
		t.Fatalf("expected half-open state, got %v", got)
	}
}

func TestAnalysisMetricsRetriesByReason(t *testing.T) {
	m := NewAnalysisMetrics("worker", prometheus.NewRegistry())

	m.RecordRetry("llm.primary", 1, true)
	m.RecordRetry("llm.primary", 2, true)
	m.RecordRetry("nats.publish", 1, false)

	if got := testutil.ToFloat64(m.retriesTotal.WithLabelValues("worker", "llm.primary", "rate_limited")); got != 2 {
		t.Fatalf("expected 2 rate-limited retries, got %v", got)
	}
	if got := testutil.ToFloat64(m.retriesTotal.WithLabelValues("worker", "nats.publish", "error")); got != 1 {
		t.Fatalf("expected 1 error retry, got %v", got)
	}
}

func TestHTTPMiddlewareNormalizesSessionPaths(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	handler := m.Middleware("api", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	for _, id := range []string{"s1", "s2"} {
		req := httptest.NewRequest(http.MethodPost, "/v1/sessions/"+id+"/analyze", nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	got := testutil.ToFloat64(m.requestTotal.WithLabelValues("api", http.MethodPost, "/v1/sessions/{session_id}/analyze", "202"))
	if got != 2 {
		t.Fatalf("expected 2 normalized requests, got %v", got)
	}
}

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"/healthz":                  "/healthz",
		"/v1/sessions":              "/v1/sessions",
		"/v1/sessions/abc":          "/v1/sessions/{session_id}",
		"/v1/standards/IAS%201":     "/v1/standards/{standard}",
		"/v1/standards/search":      "/v1/standards/search",
		"/v1/sessions/abc/analyze/": "/v1/sessions/{session_id}/analyze",
	}
	for in, want := range cases {
		if got := normalizePath(in); got != want {
			t.Fatalf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHandlerExposesSharedRegistry(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	analysis := NewAnalysisMetrics("api", m.Registry())
	analysis.RunStarted()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "compliance_analysis_runs_in_flight") {
		t.Fatalf("expected analysis metrics in exposition")
	}
}
