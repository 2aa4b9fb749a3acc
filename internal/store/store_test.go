package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/joelkehle/opportunity-radar/internal/model"
)

func newTestStore(t *testing.T) (*Store, *time.Time) {
	t.Helper()
	now := time.Date(2026, 4, 6, 7, 0, 0, 0, time.UTC)
	n := 0
	s, err := Open(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "radar.db"),
		WithClock(func() time.Time { return now }),
		WithIDs(func() string { n++; return fmt.Sprintf("id-%03d", n) }),
	)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, &now
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), "mysql", "x"); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestRawSignalsAndUnprocessed(t *testing.T) {
	s, now := newTestStore(t)
	ctx := context.Background()
	date := now.Add(-48 * time.Hour)
	n, err := s.InsertRawSignals(ctx, []model.RawSignal{
		{SourceType: "hacker_news", SourceCategory: "builder", RawContent: json.RawMessage(`{"title":"a"}`), SignalDate: &date, CollectedAt: now.Add(-2 * time.Hour)},
		{SourceType: "reddit", SourceCategory: "demand", CollectedAt: now.Add(-time.Hour)},
	})
	if err != nil || n != 2 {
		t.Fatalf("insert raw: n=%d err=%v", n, err)
	}

	got, err := s.GetRawSignal(ctx, "id-001")
	if err != nil {
		t.Fatalf("get raw: %v", err)
	}
	if got.SourceType != "hacker_news" || string(got.RawContent) != `{"title":"a"}` || got.SignalDate == nil || !got.SignalDate.Equal(date) {
		t.Fatalf("raw = %+v", got)
	}
	if _, err := s.GetRawSignal(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing raw err = %v", err)
	}

	if err := s.InsertProcessedSignal(ctx, &model.ProcessedSignal{RawSignalID: "id-001", SignalType: model.SignalTrend}); err != nil {
		t.Fatalf("insert processed: %v", err)
	}
	unprocessed, err := s.FetchUnprocessed(ctx, 10)
	if err != nil {
		t.Fatalf("fetch unprocessed: %v", err)
	}
	if len(unprocessed) != 1 || unprocessed[0].ID != "id-002" || string(unprocessed[0].RawContent) != "{}" {
		t.Fatalf("unprocessed = %+v", unprocessed)
	}
}

func TestProcessedSignalRoundTrip(t *testing.T) {
	s, now := newTestStore(t)
	ctx := context.Background()
	in := model.ProcessedSignal{
		ID:                  "sig-1",
		RawSignalID:         "raw-1",
		SignalType:          model.SignalDemand,
		Title:               "Booking for groomers",
		Summary:             "Booking for groomers",
		Industry:            "pet services",
		DemandEvidenceLevel: model.DemandHigh,
		Entities:            model.Entities{Industries: []string{"pet services"}, Locations: []string{"UK"}},
		Keywords:            []string{"booking"},
		Scores:              model.ThesisScores{model.FactorDemandEvidence: 8, model.FactorTrendTiming: 4},
		ThesisReasoning:     "Overall: good",
		NoveltyScore:        0.9,
		VelocityScore:       0.25,
		TimingStage:         model.TimingEarly,
		Embedding:           []float64{0.5, -0.25, 1},
		ProcessedAt:         now.Add(-time.Hour),
	}
	if err := s.InsertProcessedSignal(ctx, &in); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := s.GetProcessedSignal(ctx, "sig-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reflect.DeepEqual(got, in) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, in)
	}
	if _, ok := got.Scores[model.FactorCompetitionGap]; ok {
		t.Fatal("absent factor must stay absent")
	}

	in.SignalType = model.SignalComplaint
	in.Embedding = nil
	if err := s.UpdateProcessedSignal(ctx, &in); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ = s.GetProcessedSignal(ctx, "sig-1")
	if got.SignalType != model.SignalComplaint || got.Embedding != nil {
		t.Fatalf("after update = %+v", got)
	}
	missing := model.ProcessedSignal{ID: "nope"}
	if err := s.UpdateProcessedSignal(ctx, &missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update missing err = %v", err)
	}
}

func TestFetchProcessedSignalsFilters(t *testing.T) {
	s, now := newTestStore(t)
	ctx := context.Background()
	records := []model.ProcessedSignal{
		{ID: "a", SignalType: model.SignalDemand, Scores: model.ThesisScores{model.FactorDemandEvidence: 8}, ProcessedAt: now.Add(-time.Hour), Embedding: []float64{1, 0}},
		{ID: "b", SignalType: model.SignalComplaint, Scores: model.AllOnes(), IsDisqualified: true, ProcessedAt: now.Add(-2 * time.Hour)},
		{ID: "c", SignalType: model.SignalDemand, Scores: model.ThesisScores{model.FactorTrendTiming: 5}, ProcessedAt: now.Add(-10 * 24 * time.Hour), Embedding: []float64{0, 1}},
	}
	for i := range records {
		if err := s.InsertProcessedSignal(ctx, &records[i]); err != nil {
			t.Fatalf("insert %s: %v", records[i].ID, err)
		}
	}
	ids := func(f model.SignalFilter) []string {
		t.Helper()
		got, err := s.FetchProcessedSignals(ctx, f)
		if err != nil {
			t.Fatalf("fetch: %v", err)
		}
		var out []string
		for _, p := range got {
			out = append(out, p.ID)
		}
		return out
	}
	week := now.Add(-7 * 24 * time.Hour)
	cases := []struct {
		name string
		f    model.SignalFilter
		want []string
	}{
		{"all newest first", model.SignalFilter{}, []string{"a", "b", "c"}},
		{"window", model.SignalFilter{Since: week}, []string{"a", "b"}},
		{"type", model.SignalFilter{SignalType: model.SignalDemand}, []string{"a", "c"}},
		{"min score", model.SignalFilter{MinScore: 5}, []string{"a", "c"}},
		{"exclude disqualified", model.SignalFilter{Since: week, ExcludeDisqualified: true}, []string{"a"}},
		{"limit", model.SignalFilter{Limit: 1}, []string{"a"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ids(tc.f); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}

	embs, err := s.FetchRecentEmbeddings(ctx, week, 100)
	if err != nil {
		t.Fatalf("embeddings: %v", err)
	}
	if len(embs) != 1 || embs[0].SignalID != "a" || !reflect.DeepEqual(embs[0].Vector, []float64{1, 0}) {
		t.Fatalf("embeddings = %+v", embs)
	}
}

func TestPatternLifecycle(t *testing.T) {
	s, now := newTestStore(t)
	ctx := context.Background()
	p := model.Pattern{
		PatternType:      model.PatternConvergence,
		Title:            "Groomer tooling",
		SignalIDs:        []string{"a", "b"},
		Confidence:       0.8,
		OpportunityScore: 0.7,
		ThesisScores:     model.AggregatedScores{model.FactorDemandEvidence: 7.5},
		PrimaryThesis:    model.FactorDemandEvidence,
	}
	if err := s.InsertPattern(ctx, &p); err != nil {
		t.Fatalf("insert: %v", err)
	}
	low := model.Pattern{PatternType: model.PatternGap, OpportunityScore: 0.2}
	if err := s.InsertPattern(ctx, &low); err != nil {
		t.Fatalf("insert low: %v", err)
	}
	if p.Status != model.PatternNew || !p.DetectedAt.Equal(*now) {
		t.Fatalf("defaults not applied: %+v", p)
	}

	got, err := s.FetchPatterns(ctx, model.PatternFilter{Status: model.PatternNew, MinScore: 0.5})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 1 || !reflect.DeepEqual(got[0], p) {
		t.Fatalf("patterns = %+v", got)
	}

	if err := s.UpdatePatternTiming(ctx, p.ID, model.TimingGrowing, "window closing"); err != nil {
		t.Fatalf("timing: %v", err)
	}
	if err := s.UpdatePatternStatus(ctx, p.ID, model.PatternInvestigating, "call customers"); err != nil {
		t.Fatalf("status: %v", err)
	}
	reviewed, _ := s.GetPattern(ctx, p.ID)
	if reviewed.Status != model.PatternInvestigating || reviewed.Notes != "call customers" || reviewed.ReviewedAt == nil {
		t.Fatalf("reviewed = %+v", reviewed)
	}
	if reviewed.TimingStage != model.TimingGrowing || reviewed.TimingNarrative != "window closing" {
		t.Fatalf("timing = %+v", reviewed)
	}
	if err := s.UpdatePatternStatus(ctx, "missing", model.PatternArchived, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing err = %v", err)
	}
}

func TestOpportunityLifecycle(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	o := model.Opportunity{
		PatternID:   "p1",
		Title:       "GroomBook",
		Verdict:     model.VerdictBuildNow,
		TimingStage: model.TimingEmerging,
		Build:       model.BuildAssessment{CanShipIn4Weeks: true, Challenges: []string{"sms"}},
		Scoring:     model.Scoring{Factors: model.ThesisScores{model.FactorDemandEvidence: 8}, Overall: 8},
	}
	if err := s.InsertOpportunity(ctx, &o); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := s.FetchOpportunities(ctx, model.OpportunityFilter{TimingStage: model.TimingEmerging})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 1 || !reflect.DeepEqual(got[0], o) {
		t.Fatalf("opportunities = %+v", got)
	}
	if err := s.UpdateOpportunityStatus(ctx, o.ID, model.OpportunityPursuing); err != nil {
		t.Fatalf("status: %v", err)
	}
	got, _ = s.FetchOpportunities(ctx, model.OpportunityFilter{Status: model.OpportunityNew})
	if len(got) != 0 {
		t.Fatalf("status filter returned %+v", got)
	}
	one, err := s.GetOpportunity(ctx, o.ID)
	if err != nil || one.Status != model.OpportunityPursuing {
		t.Fatalf("get = %+v %v", one, err)
	}
}

func TestRunBookkeeping(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	run, err := s.StartAnalysisRun(ctx, model.RunPatternDetection)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	run.PatternsDetected = 3
	if err := s.FinishAnalysisRun(ctx, run, errors.New("gap detector failed")); err != nil {
		t.Fatalf("finish: %v", err)
	}
	runs, err := s.RecentAnalysisRuns(ctx, 5)
	if err != nil || len(runs) != 1 {
		t.Fatalf("runs = %+v %v", runs, err)
	}
	if runs[0].Status != model.RunFailed || runs[0].PatternsDetected != 3 || runs[0].CompletedAt == nil {
		t.Fatalf("run = %+v", runs[0])
	}

	crun, err := s.StartCollectionRun(ctx, "hacker_news")
	if err != nil {
		t.Fatalf("start collection: %v", err)
	}
	if err := s.FinishCollectionRun(ctx, crun, 42, nil); err != nil {
		t.Fatalf("finish collection: %v", err)
	}
	cruns, _ := s.RecentCollectionRuns(ctx, 5)
	if len(cruns) != 1 || cruns[0].SignalsCollected != 42 || cruns[0].Status != model.RunCompleted {
		t.Fatalf("collection runs = %+v", cruns)
	}
}

func TestInsertRawSignalAssignsDefaults(t *testing.T) {
	s, now := newTestStore(t)
	ctx := context.Background()
	r := model.RawSignal{SourceType: "github", SourceCategory: "builder"}
	if err := s.InsertRawSignal(ctx, &r); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if r.ID != "id-001" || !r.CollectedAt.Equal(*now) {
		t.Fatalf("defaults not applied: %+v", r)
	}
	pending, err := s.FetchUnprocessed(ctx, 10)
	if err != nil || len(pending) != 1 || pending[0].ID != r.ID {
		t.Fatalf("unprocessed = %+v %v", pending, err)
	}
}
