// Package opportunity turns detected patterns into structured business
// writeups.
package opportunity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/joelkehle/opportunity-radar/internal/llm"
	"github.com/joelkehle/opportunity-radar/internal/logging"
	"github.com/joelkehle/opportunity-radar/internal/model"
)

var tracer = otel.Tracer("github.com/joelkehle/opportunity-radar/internal/opportunity")

const (
	stageName         = "opportunity"
	DefaultMinScore   = 0.5
	maxPromptSignals  = 10
	maxIndustries     = 10
	maxGeographies    = 5
	defaultOppType    = "micro_saas"
	overallScoreField = "overall_score"
)

// ErrNoSupport is returned when every supporting record is disqualified or
// missing. No model call is made in that case.
var ErrNoSupport = errors.New("no qualified supporting signals")

type Store interface {
	InsertOpportunity(ctx context.Context, o *model.Opportunity) error
}

type Generator struct {
	exec  *llm.Executor
	store Store
	log   logrus.FieldLogger
}

// NewGenerator builds a generator. With a nil store opportunities are
// returned but not persisted.
func NewGenerator(exec *llm.Executor, store Store, log logrus.FieldLogger) *Generator {
	return &Generator{exec: exec, store: store, log: logging.OrDiscard(log)}
}

type patternBrief struct {
	Type             model.PatternType `json:"type"`
	Title            string            `json:"title"`
	Description      string            `json:"description"`
	Hypothesis       string            `json:"hypothesis"`
	Confidence       float64           `json:"confidence"`
	OpportunityScore float64           `json:"opportunity_score"`
	PrimaryThesis    model.Factor      `json:"primary_thesis"`
}

type signalBrief struct {
	Type           model.SignalType   `json:"type"`
	Title          string             `json:"title"`
	Summary        string             `json:"summary"`
	ProblemSummary string             `json:"problem_summary"`
	DemandEvidence model.DemandLevel  `json:"demand_evidence_level"`
	Keywords       []string           `json:"keywords"`
	Entities       model.Entities     `json:"entities"`
	ThesisScores   model.ThesisScores `json:"thesis_scores"`
	TimingStage    model.TimingStage  `json:"timing_stage"`
	Velocity       float64            `json:"velocity"`
	Novelty        float64            `json:"novelty"`
}

type response struct {
	BusinessName     string                     `json:"business_name"`
	OneLiner         string                     `json:"one_liner"`
	Problem          model.Problem              `json:"problem"`
	Solution         model.Solution             `json:"solution"`
	DemandEvidence   model.DemandEvidence       `json:"demand_evidence"`
	Competition      model.Competition          `json:"competition"`
	Build            buildResponse              `json:"build_assessment"`
	Monetisation     model.Monetisation         `json:"monetisation"`
	GoToMarket       model.GoToMarket           `json:"go_to_market"`
	Scoring          map[string]json.RawMessage `json:"scoring"`
	Verdict          string                     `json:"verdict"`
	VerdictReasoning string                     `json:"verdict_reasoning"`
	FirstSteps       []string                   `json:"first_steps"`
	OpportunityType  string                     `json:"opportunity_type"`
	Industries       []string                   `json:"industries"`
	TimingStage      string                     `json:"timing_stage"`
	Risks            []string                   `json:"risks"`
}

type buildResponse struct {
	TechStack       string   `json:"tech_stack"`
	EstimatedTime   string   `json:"estimated_time"`
	Challenges      []string `json:"challenges"`
	CanShipIn4Weeks *bool    `json:"can_ship_in_4_weeks"`
	Explanation     string   `json:"explanation"`
}

// Generate writes up p from its supporting records. Disqualified records are
// dropped first; if none remain ErrNoSupport is returned without a model call.
func (g *Generator) Generate(ctx context.Context, p model.Pattern, records []model.ProcessedSignal) (*model.Opportunity, error) {
	qualified := make([]model.ProcessedSignal, 0, len(records))
	for _, r := range records {
		if !r.IsDisqualified {
			qualified = append(qualified, r)
		}
	}
	if len(qualified) == 0 {
		return nil, ErrNoSupport
	}

	prompt := fmt.Sprintf(generationPrompt, indentJSON(patternBrief{
		Type:             p.PatternType,
		Title:            p.Title,
		Description:      p.Description,
		Hypothesis:       p.Hypothesis,
		Confidence:       p.Confidence,
		OpportunityScore: p.OpportunityScore,
		PrimaryThesis:    p.PrimaryThesis,
	}), indentJSON(signalBriefs(qualified)))

	var resp response
	if err := g.exec.Run(ctx, stageName, prompt, &resp); err != nil {
		return nil, err
	}
	opp := build(p, qualified, resp)
	if g.store != nil {
		if err := g.store.InsertOpportunity(ctx, opp); err != nil {
			return nil, fmt.Errorf("persist opportunity: %w", err)
		}
	}
	g.log.WithFields(logrus.Fields{"pattern_id": p.ID, "title": opp.Title, "verdict": opp.Verdict}).Info("opportunity generated")
	return opp, nil
}

func signalBriefs(records []model.ProcessedSignal) []signalBrief {
	records = records[:min(len(records), maxPromptSignals)]
	out := make([]signalBrief, 0, len(records))
	for _, r := range records {
		out = append(out, signalBrief{
			Type:           r.SignalType,
			Title:          r.Title,
			Summary:        r.Summary,
			ProblemSummary: r.ProblemSummary,
			DemandEvidence: r.DemandEvidenceLevel,
			Keywords:       r.Keywords,
			Entities:       r.Entities,
			ThesisScores:   r.Scores,
			TimingStage:    r.TimingStage,
			Velocity:       r.VelocityScore,
			Novelty:        r.NoveltyScore,
		})
	}
	return out
}

func build(p model.Pattern, records []model.ProcessedSignal, r response) *model.Opportunity {
	canShip := true
	if r.Build.CanShipIn4Weeks != nil {
		canShip = *r.Build.CanShipIn4Weeks
	}
	scoring := parseScoring(r.Scoring)
	title := strings.TrimSpace(r.BusinessName)
	if title == "" {
		title = p.Title
	}
	oppType := strings.TrimSpace(r.OpportunityType)
	if oppType == "" {
		oppType = defaultOppType
	}
	timing := model.TimingStage(strings.ToLower(strings.TrimSpace(r.TimingStage)))
	if !timing.Valid() {
		timing = model.TimingEmerging
	}
	industries := r.Industries
	if len(industries) == 0 {
		industries = collect(records, func(s model.ProcessedSignal) []string { return s.Entities.Industries }, maxIndustries)
	}

	return &model.Opportunity{
		PatternID:      p.ID,
		Title:          title,
		OneLiner:       r.OneLiner,
		Problem:        r.Problem,
		Solution:       r.Solution,
		DemandEvidence: r.DemandEvidence,
		Competition:    r.Competition,
		Build: model.BuildAssessment{
			TechStack:       r.Build.TechStack,
			EstimatedTime:   r.Build.EstimatedTime,
			Challenges:      r.Build.Challenges,
			CanShipIn4Weeks: canShip,
			Explanation:     r.Build.Explanation,
		},
		Monetisation:     r.Monetisation,
		GoToMarket:       r.GoToMarket,
		Scoring:          scoring,
		Verdict:          NormalizeVerdict(r.Verdict),
		VerdictReasoning: r.VerdictReasoning,
		FirstSteps:       r.FirstSteps,
		OpportunityType:  oppType,
		Industries:       industries,
		Geographies:      collect(records, func(s model.ProcessedSignal) []string { return s.Entities.Locations }, maxGeographies),
		TimingStage:      timing,
		BuildComplexity:  Complexity(canShip, len(r.Build.Challenges)),
		PrimaryThesis:    scoring.Factors.Primary(),
		Risks:            r.Risks,
		Status:           model.OpportunityNew,
	}
}

func parseScoring(raw map[string]json.RawMessage) model.Scoring {
	s := model.Scoring{Factors: model.ThesisScores{}}
	for _, f := range model.Factors {
		if v, ok := number(raw[string(f)]); ok {
			s.Factors[f] = model.ClampScore(int(math.Max(0, math.Min(v, model.MaxFactorScore+1))))
		}
	}
	if v, ok := number(raw[overallScoreField]); ok {
		s.Overall = model.ClampScore(int(math.Max(0, math.Min(v, model.MaxFactorScore+1))))
	}
	return s
}

func number(v json.RawMessage) (float64, bool) {
	if len(v) == 0 {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(v, &n); err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// NormalizeVerdict maps free-form verdict text onto the four verdicts.
// Anything unrecognised is MONITOR.
func NormalizeVerdict(v string) model.Verdict {
	norm := strings.ToUpper(strings.TrimSpace(v))
	norm = strings.Join(strings.FieldsFunc(norm, func(r rune) bool { return r == '_' || r == '-' || r == ' ' }), " ")
	if verdict := model.Verdict(norm); verdict.Valid() {
		return verdict
	}
	return model.VerdictMonitor
}

// Complexity grades a build from its four-week feasibility and challenge count.
func Complexity(canShip bool, challenges int) model.Complexity {
	switch {
	case canShip && challenges <= 1:
		return model.ComplexityLow
	case canShip && challenges <= 3:
		return model.ComplexityMedium
	default:
		return model.ComplexityHigh
	}
}

func collect(records []model.ProcessedSignal, field func(model.ProcessedSignal) []string, limit int) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range records {
		for _, v := range field(r) {
			v = strings.TrimSpace(v)
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
			if len(out) == limit {
				return out
			}
		}
	}
	return out
}

func indentJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

type PatternError struct {
	PatternID string
	Err       error
}

type BatchResult struct {
	Considered    int
	Opportunities []model.Opportunity
	Skipped       []string
	Errors        []PatternError
}

// GenerateFromPatterns generates for every pattern scoring at least minScore.
// Each pattern is given the records named by its SignalIDs. Patterns without
// qualified support are skipped and failures are collected per pattern.
func (g *Generator) GenerateFromPatterns(ctx context.Context, patterns []model.Pattern, records []model.ProcessedSignal, minScore float64) BatchResult {
	ctx, span := tracer.Start(ctx, "opportunity.generate_batch")
	defer span.End()

	byID := make(map[string]model.ProcessedSignal, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}
	var res BatchResult
	for _, p := range patterns {
		if p.OpportunityScore < minScore {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		res.Considered++
		var support []model.ProcessedSignal
		for _, id := range p.SignalIDs {
			if r, ok := byID[id]; ok {
				support = append(support, r)
			}
		}
		opp, err := g.Generate(ctx, p, support)
		switch {
		case errors.Is(err, ErrNoSupport):
			g.log.WithField("pattern_id", p.ID).Info("opportunity skipped, no qualified signals")
			res.Skipped = append(res.Skipped, p.ID)
		case err != nil:
			g.log.WithField("pattern_id", p.ID).WithError(err).Warn("opportunity generation failed")
			res.Errors = append(res.Errors, PatternError{PatternID: p.ID, Err: err})
		default:
			res.Opportunities = append(res.Opportunities, *opp)
		}
	}
	span.SetAttributes(
		attribute.Int("considered", res.Considered),
		attribute.Int("generated", len(res.Opportunities)),
		attribute.Int("failed", len(res.Errors)),
	)
	return res
}
