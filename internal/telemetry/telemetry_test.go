package telemetry

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCount(t *testing.T) {
	m := NewMetrics()
	m.ObserveLLMCall("classification", "ok", time.Second)
	m.ObserveLLMCall("classification", "ok", time.Second)
	m.ObserveLLMCall("thesis_scoring", "malformed", time.Second)
	m.ObserveRecord("scored")
	m.ObserveStage("embedding", 20*time.Millisecond)
	m.ObserveCollection("hacker_news", 4)
	m.ObserveCollection("github", -1)
	m.ObserveJob("digest", errors.New("boom"))

	if got := testutil.ToFloat64(m.llmCalls.WithLabelValues("classification", "ok")); got != 2 {
		t.Fatalf("llm calls = %v", got)
	}
	if got := testutil.ToFloat64(m.collected.WithLabelValues("hacker_news")); got != 4 {
		t.Fatalf("collected = %v", got)
	}
	if got := testutil.CollectAndCount(m.collected); got != 1 {
		t.Fatalf("collector series = %d, failed runs must not create one", got)
	}
	if got := testutil.ToFloat64(m.jobRuns.WithLabelValues("digest", "error")); got != 1 {
		t.Fatalf("job runs = %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `radar_pipeline_records_total{outcome="scored"} 1`) {
		t.Fatalf("metrics output missing record counter:\n%s", body)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveLLMCall("x", "ok", 0)
	m.ObserveRecord("scored")
	m.ObserveStage("x", 0)
	m.ObserveCollection("x", 1)
	m.ObserveJob("x", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Fatalf("code = %d", rec.Code)
	}
}

func TestSetupTracingDisabled(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), TracingConfig{})
	if err != nil {
		t.Fatalf("SetupTracing: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if Tracer("test") == nil {
		t.Fatal("nil tracer")
	}
}
