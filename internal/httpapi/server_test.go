package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/joelkehle/opportunity-radar/internal/model"
	"github.com/joelkehle/opportunity-radar/internal/velocity"
)

type fakeStore struct {
	pingErr     error
	fetchErr    error
	lastSignals model.SignalFilter
	updated     []string
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) FetchProcessedSignals(_ context.Context, sf model.SignalFilter) ([]model.ProcessedSignal, error) {
	f.lastSignals = sf
	return nil, f.fetchErr
}

func (f *fakeStore) FetchPatterns(context.Context, model.PatternFilter) ([]model.Pattern, error) {
	return nil, f.fetchErr
}

func (f *fakeStore) GetPattern(context.Context, string) (model.Pattern, error) {
	return model.Pattern{}, nil
}

func (f *fakeStore) UpdatePatternStatus(_ context.Context, id string, status model.PatternStatus, _ string) error {
	f.updated = append(f.updated, id+"="+string(status))
	return nil
}

func (f *fakeStore) FetchOpportunities(context.Context, model.OpportunityFilter) ([]model.Opportunity, error) {
	return nil, f.fetchErr
}

func (f *fakeStore) GetOpportunity(context.Context, string) (model.Opportunity, error) {
	return model.Opportunity{}, nil
}

func (f *fakeStore) UpdateOpportunityStatus(_ context.Context, id string, status model.OpportunityStatus) error {
	f.updated = append(f.updated, id+"="+string(status))
	return nil
}

func (f *fakeStore) RecentCollectionRuns(context.Context, int) ([]model.CollectionRun, error) {
	return nil, f.fetchErr
}

func (f *fakeStore) RecentAnalysisRuns(context.Context, int) ([]model.AnalysisRun, error) {
	return nil, f.fetchErr
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		OK    bool  `json:"ok"`
		Error Error `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	if body.OK {
		t.Fatalf("expected ok=false in %s", rec.Body.String())
	}
	return body.Error.Code
}

func TestServerRejectsBadRequests(t *testing.T) {
	st := &fakeStore{}
	h := NewServer(Deps{Store: st})
	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"bad days", http.MethodGet, "/v1/signals?days=abc", "", http.StatusBadRequest, CodeValidation},
		{"negative min score", http.MethodGet, "/v1/signals?min_score=-1", "", http.StatusBadRequest, CodeValidation},
		{"unknown signal type", http.MethodGet, "/v1/signals?type=rumour", "", http.StatusBadRequest, CodeValidation},
		{"unknown pattern status", http.MethodGet, "/v1/patterns?status=done", "", http.StatusBadRequest, CodeValidation},
		{"unknown timing", http.MethodGet, "/v1/opportunities?timing=late", "", http.StatusBadRequest, CodeValidation},
		{"invalid review status", http.MethodPost, "/v1/patterns/p1/status", `{"status":"done"}`, http.StatusBadRequest, CodeValidation},
		{"empty body", http.MethodPost, "/v1/opportunities/o1/status", "", http.StatusBadRequest, CodeValidation},
		{"malformed body", http.MethodPost, "/v1/opportunities/o1/status", `{"status":`, http.StatusBadRequest, CodeValidation},
		{"wrong method", http.MethodPost, "/v1/signals", "", http.StatusMethodNotAllowed, CodeMethodNotAllowed},
		{"review needs post", http.MethodGet, "/v1/patterns/p1/status", "", http.StatusMethodNotAllowed, CodeMethodNotAllowed},
		{"unknown action", http.MethodPost, "/v1/patterns/p1/delete", "", http.StatusNotFound, CodeNotFound},
		{"no id", http.MethodGet, "/v1/opportunities/", "", http.StatusNotFound, CodeNotFound},
		{"unknown report format", http.MethodGet, "/v1/opportunities/o1/report?format=pdf", "", http.StatusBadRequest, CodeValidation},
		{"dismiss without alerts", http.MethodPost, "/v1/alerts/a1/dismiss", "", http.StatusNotFound, CodeNotFound},
		{"dismiss needs post", http.MethodGet, "/v1/alerts/a1/dismiss", "", http.StatusMethodNotAllowed, CodeMethodNotAllowed},
		{"bad spike threshold", http.MethodGet, "/v1/keywords?spike_threshold=high", "", http.StatusBadRequest, CodeValidation},
		{"bad run limit", http.MethodGet, "/v1/runs?limit=x", "", http.StatusBadRequest, CodeValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(h, tc.method, tc.path, tc.body)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.status, rec.Body.String())
			}
			if got := errorCode(t, rec); got != tc.code {
				t.Fatalf("code = %q, want %q", got, tc.code)
			}
		})
	}
	if len(st.updated) != 0 {
		t.Fatalf("rejected requests reached the store: %v", st.updated)
	}
}

func TestServerSignalDefaults(t *testing.T) {
	st := &fakeStore{}
	rec := do(NewServer(Deps{Store: st}), http.MethodGet, "/v1/signals?limit=5000", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !st.lastSignals.ExcludeDisqualified || st.lastSignals.Limit != maxListLimit || st.lastSignals.Since.IsZero() {
		t.Fatalf("filter = %+v", st.lastSignals)
	}
	if !strings.Contains(rec.Body.String(), `"signals":[]`) {
		t.Fatalf("empty list should encode as [], got %s", rec.Body.String())
	}
}

func TestServerStoreFailures(t *testing.T) {
	st := &fakeStore{pingErr: errors.New("disk gone"), fetchErr: errors.New("locked")}
	h := NewServer(Deps{Store: st})

	rec := do(h, http.MethodGet, "/v1/health", "")
	if rec.Code != http.StatusServiceUnavailable || errorCode(t, rec) != CodeUnavailable {
		t.Fatalf("health = %d %s", rec.Code, rec.Body.String())
	}
	rec = do(h, http.MethodGet, "/v1/patterns", "")
	if rec.Code != http.StatusInternalServerError || errorCode(t, rec) != CodeInternal {
		t.Fatalf("patterns = %d %s", rec.Code, rec.Body.String())
	}
}

func TestServerWithoutAlertsOrMetrics(t *testing.T) {
	h := NewServer(Deps{Store: &fakeStore{}})
	rec := do(h, http.MethodGet, "/v1/alerts", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"count":0`) {
		t.Fatalf("alerts = %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(h, http.MethodGet, "/metrics", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("metrics without handler = %d", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/v1/keywords", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"keywords":[]`) {
		t.Fatalf("keywords without tracker = %d %s", rec.Code, rec.Body.String())
	}
}

func TestServerKeywords(t *testing.T) {
	now := time.Date(2026, 4, 6, 12, 0, 0, 0, time.UTC)
	tr := velocity.NewTracker(velocity.WithClock(func() time.Time { return now }))
	for i := 0; i < 6; i++ {
		tr.Record("dog grooming", now.Add(-time.Duration(i)*time.Hour))
	}
	tr.Record("crm", now.Add(-20*24*time.Hour))
	h := NewServer(Deps{Store: &fakeStore{}, Keywords: tr})

	var body struct {
		Keywords []velocity.KeywordVelocity `json:"keywords"`
	}
	rec := do(h, http.MethodGet, "/v1/keywords?min_mentions=5", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Keywords) != 1 || body.Keywords[0].Keyword != "dog grooming" {
		t.Fatalf("keywords = %+v", body.Keywords)
	}
	rec = do(h, http.MethodGet, "/v1/keywords?min_mentions=1&spike_threshold=0.99", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, k := range body.Keywords {
		if k.Velocity < 0.99 {
			t.Fatalf("spike below threshold: %+v", k)
		}
	}
}
