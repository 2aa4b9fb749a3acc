package alerts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/joelkehle/opportunity-radar/internal/model"
)

type fakeStore struct {
	signals  []model.ProcessedSignal
	patterns []model.Pattern
	filter   model.SignalFilter
	err      error
}

func (s *fakeStore) FetchProcessedSignals(_ context.Context, f model.SignalFilter) ([]model.ProcessedSignal, error) {
	s.filter = f
	return s.signals, s.err
}

func (s *fakeStore) FetchPatterns(context.Context, model.PatternFilter) ([]model.Pattern, error) {
	return s.patterns, nil
}

var fixedNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newSystem(store Store) *System {
	s := New(store, nil)
	s.now = func() time.Time { return fixedNow }
	return s
}

func fixture() *fakeStore {
	return &fakeStore{
		signals: []model.ProcessedSignal{
			{ID: "fast", Title: "Groomers flock to booking apps", VelocityScore: 0.97,
				Scores: model.ThesisScores{model.FactorTrendTiming: 9, model.FactorDemandEvidence: 6}},
			{ID: "warm", Title: "warm", VelocityScore: 0.9},
			{ID: "slow", Title: "slow", VelocityScore: 0.89},
			{ID: "shift", Title: "New data portability rules", SignalType: model.SignalMarketShift,
				Scores: model.ThesisScores{model.FactorRegulatorySimplicity: 8}},
			{ID: "weak-shift", SignalType: model.SignalMarketShift,
				Scores: model.ThesisScores{model.FactorRegulatorySimplicity: 7, model.FactorDemandEvidence: 10}},
		},
		patterns: []model.Pattern{
			{ID: "p1", Title: "strong", Status: model.PatternNew, Confidence: 0.85, OpportunityScore: 0.9, Hypothesis: "groomers pay"},
			{ID: "p2", Title: "unsure", Status: model.PatternNew, Confidence: 0.6},
			{ID: "p3", Title: "reviewed", Status: model.PatternReviewed, Confidence: 0.95},
			{ID: "p4", Title: "medium", Status: model.PatternNew, Confidence: 0.8, OpportunityScore: 0.8},
		},
	}
}

func TestCheck(t *testing.T) {
	store := fixture()
	sys := newSystem(store)
	got, err := sys.Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !store.filter.Since.Equal(fixedNow.AddDate(0, 0, -7)) || !store.filter.ExcludeDisqualified {
		t.Fatalf("filter = %+v", store.filter)
	}

	byID := map[string]Alert{}
	for _, a := range got {
		byID[a.ID] = a
	}
	want := map[string]Urgency{
		"velocity_fast":      UrgencyHigh,
		"velocity_warm":      UrgencyMedium,
		"pattern_p1":         UrgencyHigh,
		"pattern_p4":         UrgencyMedium,
		"market_shift_shift": UrgencyMedium,
	}
	if len(got) != len(want) {
		t.Fatalf("got %d alerts: %+v", len(got), got)
	}
	for id, u := range want {
		a, ok := byID[id]
		if !ok {
			t.Fatalf("missing alert %s", id)
		}
		if a.Urgency != u {
			t.Errorf("%s urgency = %s, want %s", id, a.Urgency, u)
		}
	}
	if a := byID["velocity_fast"]; a.Thesis != model.FactorTrendTiming || a.Title != "Velocity Spike: Groomers flock to booking apps" {
		t.Fatalf("velocity alert = %+v", a)
	}
	if byID["velocity_warm"].Thesis != "" {
		t.Fatal("no scores should mean no thesis alignment")
	}
	if byID["pattern_p1"].Description != "groomers pay" || byID["pattern_p4"].Description != "High-confidence pattern detected" {
		t.Fatal("pattern description fallback")
	}
}

func TestCheckDeduplicates(t *testing.T) {
	sys := newSystem(fixture())
	first, _ := sys.Check(context.Background())
	second, err := sys.Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(second) != 0 || len(sys.Pending()) != len(first) {
		t.Fatalf("second=%d pending=%d first=%d", len(second), len(sys.Pending()), len(first))
	}

	if !sys.Dismiss("pattern_p1") || sys.Dismiss("pattern_p1") {
		t.Fatal("dismiss should succeed exactly once")
	}
	third, _ := sys.Check(context.Background())
	if len(third) != 0 || len(sys.Pending()) != len(first)-1 {
		t.Fatal("dismissed alerts must not come back")
	}
}

func TestCheckLoadFailure(t *testing.T) {
	sys := newSystem(&fakeStore{err: errors.New("db gone")})
	if _, err := sys.Check(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(sys.Pending()) != 0 {
		t.Fatal("nothing should be pending")
	}
}

func TestFormat(t *testing.T) {
	n := Format(Alert{Title: "Velocity Spike: x", Description: "d", Urgency: UrgencyHigh, DetectedAt: fixedNow})
	if n.Title != "[!!!] Velocity Spike: x" || n.Thesis != "N/A" || n.Urgency != "high" || n.Timestamp != "2026-03-02T10:00:00Z" {
		t.Fatalf("notification = %+v", n)
	}
	n = Format(Alert{Title: "t", Urgency: UrgencyMedium, Thesis: model.FactorCompetitionGap})
	if n.Title != "[!!] t" || n.Thesis != "competition_gap" {
		t.Fatalf("notification = %+v", n)
	}
}
