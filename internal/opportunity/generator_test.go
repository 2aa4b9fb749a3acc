package opportunity

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/joelkehle/opportunity-radar/internal/llm"
	"github.com/joelkehle/opportunity-radar/internal/llm/llmtest"
	"github.com/joelkehle/opportunity-radar/internal/model"
)

const fullReply = `{
  "business_name": "GroomBook",
  "one_liner": "Online booking for mobile groomers",
  "problem": {"description": "phone tag", "target_customer": "mobile groomers"},
  "build_assessment": {"challenges": ["sms", "calendar sync"], "can_ship_in_4_weeks": true},
  "scoring": {"demand_evidence": 8, "competition_gap": 9, "trend_timing": "soon", "solo_buildability": 14, "overall_score": 8},
  "verdict": "build_now",
  "first_steps": ["interview five groomers"],
  "timing_stage": "Growing",
  "risks": ["seasonality"]
}`

type memStore struct {
	saved []model.Opportunity
	err   error
}

func (s *memStore) InsertOpportunity(_ context.Context, o *model.Opportunity) error {
	if s.err != nil {
		return s.err
	}
	o.ID = "opp-1"
	s.saved = append(s.saved, *o)
	return nil
}

func support() []model.ProcessedSignal {
	return []model.ProcessedSignal{
		{ID: "s1", Title: "groomers", Entities: model.Entities{Industries: []string{"pet services"}, Locations: []string{"UK", "US"}}},
		{ID: "s2", Title: "casino promotions", IsDisqualified: true, Entities: model.Entities{Locations: []string{"DE"}}},
		{ID: "s3", Title: "more", Entities: model.Entities{Industries: []string{"pet services", "scheduling"}, Locations: []string{"UK"}}},
	}
}

func TestGenerateBuildsOpportunity(t *testing.T) {
	q := llmtest.New(fullReply)
	store := &memStore{}
	g := NewGenerator(llm.NewExecutor(q, nil), store, nil)
	p := model.Pattern{ID: "p1", Title: "Groomer tooling", OpportunityScore: 0.7}

	opp, err := g.Generate(context.Background(), p, support())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if strings.Contains(q.Prompts[0], "casino promotions") {
		t.Fatal("disqualified records must not reach the prompt")
	}
	if opp.ID != "opp-1" || opp.PatternID != "p1" || opp.Title != "GroomBook" || len(store.saved) != 1 {
		t.Fatalf("opportunity = %+v", opp)
	}
	if opp.Verdict != model.VerdictBuildNow || opp.TimingStage != model.TimingGrowing || opp.OpportunityType != "micro_saas" {
		t.Fatalf("verdict=%s timing=%s type=%s", opp.Verdict, opp.TimingStage, opp.OpportunityType)
	}
	wantScores := model.ThesisScores{model.FactorDemandEvidence: 8, model.FactorCompetitionGap: 9, model.FactorSoloBuildability: 10}
	if !reflect.DeepEqual(opp.Scoring.Factors, wantScores) || opp.Scoring.Overall != 8 {
		t.Fatalf("scoring = %+v", opp.Scoring)
	}
	if opp.PrimaryThesis != model.FactorSoloBuildability || opp.BuildComplexity != model.ComplexityMedium || !opp.Build.CanShipIn4Weeks {
		t.Fatalf("primary=%s complexity=%s", opp.PrimaryThesis, opp.BuildComplexity)
	}
	if !reflect.DeepEqual(opp.Industries, []string{"pet services", "scheduling"}) || !reflect.DeepEqual(opp.Geographies, []string{"UK", "US"}) {
		t.Fatalf("industries=%v geographies=%v", opp.Industries, opp.Geographies)
	}
}

func TestGenerateShortCircuitsWithoutSupport(t *testing.T) {
	q := llmtest.New(fullReply)
	g := NewGenerator(llm.NewExecutor(q, nil), nil, nil)
	_, err := g.Generate(context.Background(), model.Pattern{ID: "p"}, []model.ProcessedSignal{{ID: "x", IsDisqualified: true}})
	if !errors.Is(err, ErrNoSupport) || q.Calls() != 0 {
		t.Fatalf("err=%v calls=%d", err, q.Calls())
	}
}

func TestGenerateDefaults(t *testing.T) {
	q := llmtest.New(`{"verdict": "maybe"}`)
	opp, err := NewGenerator(llm.NewExecutor(q, nil), nil, nil).Generate(context.Background(), model.Pattern{Title: "Fallback title"}, support()[:1])
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if opp.Title != "Fallback title" || opp.Verdict != model.VerdictMonitor || opp.TimingStage != model.TimingEmerging {
		t.Fatalf("opportunity = %+v", opp)
	}
	if !opp.Build.CanShipIn4Weeks || opp.BuildComplexity != model.ComplexityLow || opp.PrimaryThesis != model.FactorDemandEvidence {
		t.Fatalf("build=%+v complexity=%s", opp.Build, opp.BuildComplexity)
	}
}

func TestComplexity(t *testing.T) {
	cases := []struct {
		ship bool
		n    int
		want model.Complexity
	}{
		{true, 0, model.ComplexityLow},
		{true, 1, model.ComplexityLow},
		{true, 3, model.ComplexityMedium},
		{true, 4, model.ComplexityHigh},
		{false, 0, model.ComplexityHigh},
	}
	for _, tc := range cases {
		if got := Complexity(tc.ship, tc.n); got != tc.want {
			t.Fatalf("Complexity(%v, %d) = %s, want %s", tc.ship, tc.n, got, tc.want)
		}
	}
}

func TestNormalizeVerdict(t *testing.T) {
	for in, want := range map[string]model.Verdict{
		"BUILD NOW":   model.VerdictBuildNow,
		" build-now ": model.VerdictBuildNow,
		"explore":     model.VerdictExplore,
		"Pass":        model.VerdictPass,
		"":            model.VerdictMonitor,
		"ship it":     model.VerdictMonitor,
	} {
		if got := NormalizeVerdict(in); got != want {
			t.Fatalf("NormalizeVerdict(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestGenerateFromPatterns(t *testing.T) {
	q := llmtest.New(fullReply, "not json")
	g := NewGenerator(llm.NewExecutor(q, nil), nil, nil)
	patterns := []model.Pattern{
		{ID: "low", OpportunityScore: 0.2, SignalIDs: []string{"s1"}},
		{ID: "ok", OpportunityScore: 0.9, SignalIDs: []string{"s1", "s3"}},
		{ID: "dq", OpportunityScore: 0.8, SignalIDs: []string{"s2", "missing"}},
		{ID: "bad", OpportunityScore: 0.5, SignalIDs: []string{"s3"}},
	}
	res := g.GenerateFromPatterns(context.Background(), patterns, support(), DefaultMinScore)
	if res.Considered != 3 || len(res.Opportunities) != 1 || res.Opportunities[0].PatternID != "ok" {
		t.Fatalf("result = %+v", res)
	}
	if !reflect.DeepEqual(res.Skipped, []string{"dq"}) {
		t.Fatalf("skipped = %v", res.Skipped)
	}
	if len(res.Errors) != 1 || res.Errors[0].PatternID != "bad" || !llm.IsOutputError(res.Errors[0].Err) {
		t.Fatalf("errors = %+v", res.Errors)
	}
	if q.Calls() != 2 {
		t.Fatalf("calls = %d", q.Calls())
	}
}
