package thesis

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/joelkehle/opportunity-radar/internal/llm"
	"github.com/joelkehle/opportunity-radar/internal/llm/llmtest"
	"github.com/joelkehle/opportunity-radar/internal/model"
	"github.com/joelkehle/opportunity-radar/internal/retry"
)

func newScorer(q *llmtest.QueueCaller) *Scorer {
	r := retry.New(retry.DefaultPolicy, nil)
	r.Sleep = func(context.Context, time.Duration) error { return nil }
	return NewScorer(llm.NewExecutor(q, nil).WithRetrier(r), nil)
}

const fullResponse = `{
	"demand_evidence": {"score": 8, "reasoning": "many requests"},
	"competition_gap": {"score": 14, "reasoning": "nobody"},
	"trend_timing": 6.9,
	"solo_buildability": {"score": -2},
	"clear_monetisation": {"score": "high"},
	"overall_saas_potential": "solid niche",
	"disqualified": false,
	"disqualification_reason": null
}`

func TestDisqualifiedIndustryShortCircuits(t *testing.T) {
	cases := []Input{
		{Industry: "healthcare"},
		{Industry: "Healthcare Staffing"},
		{Industry: "fin"},
		{Entities: model.Entities{Industries: []string{"pet care", "Online GAMBLING"}}},
		{Industry: "  legal  "},
	}
	for _, in := range cases {
		q := llmtest.New(fullResponse)
		out := newScorer(q).Score(context.Background(), in)
		d, ok := IsDisqualified(out)
		if !ok {
			t.Fatalf("%+v: outcome %T, want Disqualified", in, out)
		}
		if q.Calls() != 0 {
			t.Fatalf("%+v: model called %d times", in, q.Calls())
		}
		if d.Source != SourceIndustryList || !strings.Contains(d.Reason, "disqualified list") {
			t.Fatalf("disqualification = %+v", d)
		}
		scores := out.Scores()
		if len(scores) != len(model.Factors) {
			t.Fatalf("scores = %v", scores)
		}
		for _, f := range model.Factors {
			if scores[f] != 1 {
				t.Fatalf("%s = %d, want 1", f, scores[f])
			}
		}
	}
}

func TestDisqualificationReasonNamesIndustry(t *testing.T) {
	out := newScorer(llmtest.New()).Score(context.Background(), Input{Industry: "healthcare"})
	d, _ := IsDisqualified(out)
	if d.Reason != "Industry 'healthcare' is in the disqualified list (regulated)" {
		t.Fatalf("reason = %q", d.Reason)
	}
	if d.Reasoning() != "Automatically disqualified: healthcare is a regulated industry" {
		t.Fatalf("reasoning = %q", d.Reasoning())
	}
}

func TestMatchDisqualified(t *testing.T) {
	for in, want := range map[string]bool{
		"":                        false,
		"   ":                     false,
		"pet grooming software":   false,
		"FinTech":                 true,
		"pharmaceutical":          true,
		"medical devices":         true,
		"government":              true,
		"real estate photography": false,
	} {
		if got := MatchDisqualified(in); got != want {
			t.Fatalf("MatchDisqualified(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestScoreCallsModelForAllowedIndustry(t *testing.T) {
	q := llmtest.New(fullResponse)
	out := newScorer(q).Score(context.Background(), Input{
		SignalType:     model.SignalDemand,
		Industry:       "pet grooming software",
		Summary:        "Groomers want online booking",
		DemandEvidence: model.DemandHigh,
	})
	if q.Calls() != 1 {
		t.Fatalf("calls = %d, want 1", q.Calls())
	}
	if _, ok := IsDisqualified(out); ok {
		t.Fatalf("unexpected disqualification: %+v", out)
	}
	scores := out.Scores()
	want := model.ThesisScores{
		model.FactorDemandEvidence:   8,
		model.FactorCompetitionGap:   10,
		model.FactorTrendTiming:      6,
		model.FactorSoloBuildability: 1,
	}
	if len(scores) != len(want) {
		t.Fatalf("scores = %v, want %v", scores, want)
	}
	for f, v := range want {
		if scores[f] != v {
			t.Fatalf("%s = %d, want %d", f, scores[f], v)
		}
	}
	if _, ok := scores[model.FactorClearMonetisation]; ok {
		t.Fatal("non-numeric factor should be absent")
	}
	if _, ok := scores[model.FactorRegulatorySimplicity]; ok {
		t.Fatal("missing factor should be absent")
	}
	notes := out.Reasoning()
	if !strings.HasPrefix(notes, "Overall: solid niche") || !strings.Contains(notes, "demand_evidence: many requests") {
		t.Fatalf("reasoning = %q", notes)
	}
	prompt := q.Prompts[0]
	for _, want := range []string{"Industry: pet grooming software", "Demand evidence: high", "Content: Groomers want online booking", "Problem: Groomers want online booking"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
}

func TestScorePromptDefaults(t *testing.T) {
	q := llmtest.New(`{}`)
	newScorer(q).Score(context.Background(), Input{Entities: model.Entities{Industries: []string{"pet care", "retail"}}})
	if !strings.Contains(q.Prompts[0], "Industry: pet care, retail") || !strings.Contains(q.Prompts[0], "Demand evidence: Not specified") {
		t.Fatalf("prompt = %s", q.Prompts[0])
	}
	q = llmtest.New(`{}`)
	newScorer(q).Score(context.Background(), Input{})
	if !strings.Contains(q.Prompts[0], "Industry: Unknown") {
		t.Fatalf("prompt = %s", q.Prompts[0])
	}
}

func TestModelAssertedDisqualification(t *testing.T) {
	q := llmtest.New(`{"demand_evidence": 9, "disqualified": true, "disqualification_reason": "needs a license"}`)
	out := newScorer(q).Score(context.Background(), Input{Industry: "drone inspections"})
	d, ok := IsDisqualified(out)
	if !ok || d.Source != SourceModel || d.Reason != "needs a license" {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Scores()[model.FactorDemandEvidence] != 1 {
		t.Fatal("disqualified outcome must carry all ones")
	}

	q = llmtest.New(`{"disqualified": true, "disqualification_reason": null}`)
	d, _ = IsDisqualified(newScorer(q).Score(context.Background(), Input{Industry: "drones"}))
	if d.Reason != modelFlagReason {
		t.Fatalf("reason = %q", d.Reason)
	}
}

func TestScoreDegradesOnFailure(t *testing.T) {
	for name, q := range map[string]*llmtest.QueueCaller{
		"malformed": llmtest.New("sorry"),
		"transport": {Errs: []error{retry.WithStatus(400, errors.New("bad"))}},
	} {
		t.Run(name, func(t *testing.T) {
			out := newScorer(q).Score(context.Background(), Input{Industry: "pet grooming"})
			if _, ok := IsDisqualified(out); ok {
				t.Fatal("failure must not disqualify")
			}
			if len(out.Scores()) != 0 || out.Reasoning() != "" {
				t.Fatalf("outcome = %+v", out)
			}
		})
	}
}

func TestWeightedScore(t *testing.T) {
	if got := WeightedScore(model.ThesisScores{}); got != 0 {
		t.Fatalf("empty = %v", got)
	}
	for v := 1; v <= 10; v++ {
		s := model.ThesisScores{}
		for _, f := range model.Factors {
			s[f] = v
		}
		if got := WeightedScore(s); math.Abs(got-float64(v)) > 1e-9 {
			t.Fatalf("all %d = %v", v, got)
		}
	}
	got := WeightedScore(model.ThesisScores{model.FactorDemandEvidence: 10, model.FactorTrendTiming: 5})
	want := (10*1.0 + 5*0.8) / 1.8
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("got %v want %v", got, want)
	}
}
