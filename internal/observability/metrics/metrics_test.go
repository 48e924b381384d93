package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/culture-relevance/internal/core/domain"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestHTTPMiddlewareBoundsPathLabels(t *testing.T) {
	m := NewHTTPServerMetrics("api", "/v1/analyze")
	h := m.Middleware("api", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/analyze", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/random/123", nil))

	out := scrape(t, m.Handler())
	if !strings.Contains(out, `path="/v1/analyze",service="api",status="418"`) {
		t.Fatalf("expected analyze request counted, got:\n%s", out)
	}
	if !strings.Contains(out, `path="other"`) || strings.Contains(out, "/random/123") {
		t.Fatalf("expected unknown path folded into other, got:\n%s", out)
	}
}

func TestPipelineMetricsShareRegistry(t *testing.T) {
	httpMetrics := NewHTTPServerMetrics("api")
	p := NewPipelineMetrics("api", httpMetrics.Registry())

	three := 3
	p.ObserveStage("retrieval", 20*time.Millisecond, nil)
	p.ObserveStage("scoring", time.Second, errors.New("boom"))
	p.ObserveCacheLookup("hit")
	p.ObserveScores("qwen_vl", []domain.ScoreRecord{{Culture: "Japan", Score: &three}, {Culture: "Peru"}})
	p.ObservePages(4)
	p.ObserveBreakerState("ollama.generate", "open")

	out := scrape(t, httpMetrics.Handler())
	for _, want := range []string{
		`culture_pipeline_stage_duration_seconds_count{service="api",stage="scoring",status="error"} 1`,
		`culture_session_lookups_total{outcome="hit",service="api"} 1`,
		`culture_scoring_verdicts_total{model="qwen_vl",result="absent",service="api"} 1`,
		`culture_scoring_verdicts_total{model="qwen_vl",result="scored",service="api"} 1`,
		`culture_dependency_circuit_open{operation="ollama.generate",service="api"} 1`,
		`culture_enrichment_pages_count{service="api"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestWorkerMetricsCountsJobs(t *testing.T) {
	m := NewWorkerMetrics("worker")
	m.StartJob()
	m.FinishJob("worker", time.Second, nil)
	m.StartJob()
	m.FinishJob("worker", time.Second, errors.New("x"))

	out := scrape(t, m.Handler())
	if !strings.Contains(out, `culture_worker_analysis_jobs_total{service="worker",status="error"} 1`) {
		t.Fatalf("unexpected worker metrics:\n%s", out)
	}
	if !strings.Contains(out, `culture_worker_analysis_jobs_in_flight{service="worker"} 0`) {
		t.Fatalf("expected in-flight back to zero:\n%s", out)
	}
}
