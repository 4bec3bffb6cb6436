package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/policy-radar/internal/core/domain"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rr.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	return string(body)
}

func TestHTTPMiddlewareRecordsRequests(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/search", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/random/123", nil))

	out := scrape(t, m.Handler())
	if !strings.Contains(out, `policy_radar_http_requests_total{method="POST",path="/v1/search",service="api",status="418"} 1`) {
		t.Fatalf("missing request counter:\n%s", out)
	}
	if !strings.Contains(out, `path="other"`) {
		t.Fatalf("unknown path should be normalized:\n%s", out)
	}
}

func TestObserveQueryAndReload(t *testing.T) {
	m := NewHTTPServerMetrics("api")

	m.ObserveQuery(domain.AnswerFallback, 0, 3, 20*time.Millisecond)
	m.RecordReload(42, nil)
	m.RecordReload(0, errors.New("missing"))

	out := scrape(t, m.Handler())
	for _, want := range []string{
		`policy_radar_rag_queries_total{mode="fallback",service="api"} 1`,
		`policy_radar_index_chunks{service="api"} 42`,
		`policy_radar_index_reloads_total{service="api",status="error"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestWorkerMetricsRecordRebuild(t *testing.T) {
	m := NewWorkerMetrics("worker")

	m.StartRebuild()
	m.FinishRebuild(2*time.Second, 128, nil)
	m.ObserveRequestLag(-time.Second)

	out := scrape(t, m.Handler())
	if !strings.Contains(out, `policy_radar_worker_index_rebuild_total{service="worker",status="success"} 1`) {
		t.Fatalf("missing rebuild counter:\n%s", out)
	}
	if !strings.Contains(out, `policy_radar_worker_indexed_chunks{service="worker"} 128`) {
		t.Fatalf("missing chunk gauge:\n%s", out)
	}
	if !strings.Contains(out, `policy_radar_worker_index_rebuild_in_flight{service="worker"} 0`) {
		t.Fatalf("in-flight gauge should return to zero:\n%s", out)
	}
}

func TestBreakerStateGauge(t *testing.T) {
	m := NewWorkerMetrics("worker")

	m.ObserveBreakerState("ollama.embed", "open")
	m.ObserveBreakerState("ollama.embed", "bogus")
	m.ObserveBreakerState("nats.publish", "half-open")

	out := scrape(t, m.Handler())
	for _, want := range []string{
		`policy_radar_circuit_breaker_state{operation="ollama.embed",service="worker"} 2`,
		`policy_radar_circuit_breaker_state{operation="nats.publish",service="worker"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}
