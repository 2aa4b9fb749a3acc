// Package thesis scores classified signals against the six-factor business
// thesis. Signals in regulated industries are disqualified before any model
// call is made.
package thesis

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/joelkehle/opportunity-radar/internal/llm"
	"github.com/joelkehle/opportunity-radar/internal/logging"
	"github.com/joelkehle/opportunity-radar/internal/model"
)

const (
	stageName       = "thesis_score"
	maxContentChars = 5000
	modelFlagReason = "Flagged as disqualified by thesis scoring"
)

// Input is the part of a classified signal the scorer reads.
type Input struct {
	SignalType     model.SignalType
	Summary        string
	ProblemSummary string
	Industry       string
	DemandEvidence model.DemandLevel
	Entities       model.Entities
	Keywords       []string
	// Content is the rendered raw payload; Summary is used when it is empty.
	Content string
}

type Scorer struct {
	exec *llm.Executor
	log  logrus.FieldLogger
}

func NewScorer(exec *llm.Executor, log logrus.FieldLogger) *Scorer {
	return &Scorer{exec: exec, log: logging.OrDiscard(log)}
}

// Score disqualifies in place for a listed industry, otherwise asks the model.
// A failed call degrades to an empty Scored outcome.
func (s *Scorer) Score(ctx context.Context, in Input) Outcome {
	candidates := append(append([]string(nil), in.Entities.Industries...), in.Industry)
	if ind, ok := FirstDisqualified(candidates); ok {
		return Disqualified{
			Reason: fmt.Sprintf("Industry '%s' is in the disqualified list (regulated)", ind),
			Notes:  fmt.Sprintf("Automatically disqualified: %s is a regulated industry", ind),
			Source: SourceIndustryList,
		}
	}

	var raw map[string]json.RawMessage
	if err := s.exec.Run(ctx, stageName, buildPrompt(in, candidates), &raw); err != nil {
		s.log.WithError(err).Warn("thesis scoring degraded")
		return Scored{Vector: model.ThesisScores{}}
	}
	return parseResponse(raw)
}

func buildPrompt(in Input, candidates []string) string {
	content := in.Content
	if strings.TrimSpace(content) == "" {
		content = in.Summary
	}
	content = model.Truncate(content, maxContentChars)

	industry := strings.TrimSpace(in.Industry)
	if industry == "" {
		var nonEmpty []string
		for _, c := range candidates {
			if c = strings.TrimSpace(c); c != "" {
				nonEmpty = append(nonEmpty, c)
			}
		}
		industry = strings.Join(nonEmpty, ", ")
	}
	if industry == "" {
		industry = "Unknown"
	}
	problem := in.ProblemSummary
	if strings.TrimSpace(problem) == "" {
		problem = in.Summary
	}
	demand := string(in.DemandEvidence)
	if demand == "" {
		demand = "Not specified"
	}
	return fmt.Sprintf(scoringPrompt, in.SignalType, industry, problem, demand, content)
}

type factorValue struct {
	Score     *float64 `json:"score"`
	Reasoning string   `json:"reasoning"`
}

// parseResponse reads factor scores that are either {score, reasoning}
// objects or bare numbers. Anything else leaves the factor absent.
func parseResponse(raw map[string]json.RawMessage) Outcome {
	scores := model.ThesisScores{}
	var lines []string
	if overall := stringField(raw, "overall_saas_potential"); overall != "" {
		lines = append(lines, "Overall: "+overall)
	}
	for _, f := range model.Factors {
		v, ok := raw[string(f)]
		if !ok {
			continue
		}
		score, reasoning, ok := readFactor(v)
		if !ok {
			continue
		}
		scores[f] = model.ClampScore(int(math.Max(0, math.Min(score, model.MaxFactorScore+1))))
		if reasoning != "" {
			lines = append(lines, fmt.Sprintf("%s: %s", f, reasoning))
		}
	}
	notes := strings.Join(lines, "\n")

	var flagged bool
	if v, ok := raw["disqualified"]; ok {
		_ = json.Unmarshal(v, &flagged)
	}
	if flagged {
		reason := stringField(raw, "disqualification_reason")
		if reason == "" {
			reason = modelFlagReason
		}
		return Disqualified{Reason: reason, Notes: notes, Source: SourceModel}
	}
	return Scored{Vector: scores, Notes: notes}
}

func readFactor(v json.RawMessage) (float64, string, bool) {
	var n float64
	if err := json.Unmarshal(v, &n); err == nil {
		return n, "", finite(n)
	}
	var fv factorValue
	if err := json.Unmarshal(v, &fv); err != nil || fv.Score == nil {
		return 0, "", false
	}
	return *fv.Score, fv.Reasoning, finite(*fv.Score)
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

func stringField(raw map[string]json.RawMessage, key string) string {
	v, ok := raw[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}
