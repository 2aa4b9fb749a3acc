package classify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/joelkehle/opportunity-radar/internal/llm"
	"github.com/joelkehle/opportunity-radar/internal/llm/llmtest"
	"github.com/joelkehle/opportunity-radar/internal/model"
	"github.com/joelkehle/opportunity-radar/internal/retry"
)

func newClassifier(q *llmtest.QueueCaller) *Classifier {
	r := retry.New(retry.DefaultPolicy, nil)
	r.Sleep = func(context.Context, time.Duration) error { return nil }
	return New(llm.NewExecutor(q, nil).WithRetrier(r), nil)
}

func rawSignal() model.RawSignal {
	return model.RawSignal{
		ID:             "raw-1",
		SourceType:     "hacker_news",
		SourceCategory: "builder",
		RawContent:     json.RawMessage(`{"title":"Ask HN: how do you schedule pet grooming?"}`),
	}
}

func TestClassifyParsesModelOutput(t *testing.T) {
	q := llmtest.New("```json\n" + `{
		"signal_type": "demand_signal",
		"signal_subtype": "tool_request",
		"industry": "pet grooming software",
		"problem_summary": "Groomers juggle bookings by phone.",
		"demand_evidence_level": "HIGH",
		"summary": "Groomers want online booking",
		"entities": {"companies": ["Acme"], "technologies": [], "industries": ["pet care", " "], "locations": ["Austin"]},
		"keywords": ["pet grooming", "booking", ""]
	}` + "\n```")
	got := newClassifier(q).Classify(context.Background(), rawSignal())
	if got.Fallback {
		t.Fatal("unexpected fallback")
	}
	if got.SignalType != model.SignalDemand || got.DemandEvidenceLevel != model.DemandHigh {
		t.Fatalf("type=%s level=%s", got.SignalType, got.DemandEvidenceLevel)
	}
	if got.Title != "Groomers want online booking" || got.Industry != "pet grooming software" {
		t.Fatalf("title=%q industry=%q", got.Title, got.Industry)
	}
	if len(got.Keywords) != 2 || len(got.Entities.Industries) != 1 {
		t.Fatalf("keywords=%v industries=%v", got.Keywords, got.Entities.Industries)
	}
	if !strings.Contains(q.Prompts[0], "Signal source: hacker_news") || !strings.Contains(q.Prompts[0], "pet grooming?") {
		t.Fatalf("prompt missing fields: %s", q.Prompts[0])
	}
}

func TestClassifyNormalisesUnknownValues(t *testing.T) {
	q := llmtest.New(`{"signal_type": "rumour", "demand_evidence_level": "enormous", "summary": "` + strings.Repeat("s", 300) + `"}`)
	got := newClassifier(q).Classify(context.Background(), rawSignal())
	if got.SignalType != model.SignalTrend {
		t.Fatalf("signal_type = %s, want trend", got.SignalType)
	}
	if got.DemandEvidenceLevel != model.DemandNone {
		t.Fatalf("demand = %s, want none", got.DemandEvidenceLevel)
	}
	if len([]rune(got.Title)) != 200 {
		t.Fatalf("title length = %d", len([]rune(got.Title)))
	}
}

func TestClassifyFallsBack(t *testing.T) {
	cases := map[string]*llmtest.QueueCaller{
		"malformed":   llmtest.New("I cannot help with that"),
		"wrong shape": llmtest.New(`{"keywords": "not-a-list"}`),
		"call error":  {Errs: []error{retry.WithStatus(401, errors.New("unauthorized"))}},
	}
	for name, q := range cases {
		t.Run(name, func(t *testing.T) {
			got := newClassifier(q).Classify(context.Background(), rawSignal())
			want := Fallback(rawSignal())
			if !got.Fallback || got.SignalType != model.SignalTrend || got.Summary != want.Summary {
				t.Fatalf("got %+v", got)
			}
			if got.Title != "Signal from hacker_news" || got.SignalSubtype != "unknown" {
				t.Fatalf("title=%q subtype=%q", got.Title, got.SignalSubtype)
			}
			if len(got.Keywords) != 0 || got.DemandEvidenceLevel != model.DemandNone {
				t.Fatalf("keywords=%v level=%s", got.Keywords, got.DemandEvidenceLevel)
			}
			if q.Calls() != 1 {
				t.Fatalf("calls = %d, want 1", q.Calls())
			}
		})
	}
}

func TestContentForPromptTruncates(t *testing.T) {
	raw := json.RawMessage(`{"body":"` + strings.Repeat("a", 20000) + `"}`)
	got := ContentForPrompt(raw, maxContentChars)
	if len(got) != maxContentChars {
		t.Fatalf("len = %d", len(got))
	}
	if !strings.HasPrefix(got, "{\n  \"body\"") {
		t.Fatalf("expected indented JSON, got %q", got[:20])
	}
	if ContentForPrompt(nil, 10) != "{}" {
		t.Fatal("empty payload should render as {}")
	}
}
