package patterns

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/joelkehle/opportunity-radar/internal/llm"
	"github.com/joelkehle/opportunity-radar/internal/logging"
	"github.com/joelkehle/opportunity-radar/internal/model"
	"github.com/joelkehle/opportunity-radar/internal/similarity"
)

const (
	gapStage           = "gap"
	maxGapComplaints   = 5
	maxGapBuilders     = 3
	maxBuilderMatches  = 1
	highDemandEvidence = 7
	demandBoost        = 1.2
)

type GapDetector struct {
	exec      *llm.Executor
	log       logrus.FieldLogger
	Threshold float64
}

func NewGapDetector(exec *llm.Executor, log logrus.FieldLogger) *GapDetector {
	return &GapDetector{
		exec:      exec,
		log:       logging.OrDiscard(log).WithField("detector", gapStage),
		Threshold: similarity.DefaultClusterThreshold,
	}
}

func (d *GapDetector) Name() string { return gapStage }

type gapResponse struct {
	IsRealGap          bool     `json:"is_real_gap"`
	GapTitle           string   `json:"gap_title"`
	GapDescription     string   `json:"gap_description"`
	PainSeverity       *float64 `json:"pain_severity"`
	ExistingSolutions  []string `json:"existing_solutions"`
	SolutionHypothesis string   `json:"solution_hypothesis"`
	WhyGapExists       string   `json:"why_gap_exists"`
	WorthPursuing      bool     `json:"worth_pursuing"`
	Confidence         *float64 `json:"confidence"`
}

// Detect groups complaints by first keyword and asks the model about every
// group that at most one builder record addresses.
func (d *GapDetector) Detect(ctx context.Context, records []model.ProcessedSignal) ([]model.Pattern, error) {
	var (
		builders    []model.ProcessedSignal
		builderVecs [][]float64
		groups      = map[string][]model.ProcessedSignal{}
		order       []string
	)
	for _, r := range records {
		switch r.SignalType {
		case model.SignalComplaint:
			key := "general"
			if len(r.Keywords) > 0 {
				key = strings.ToLower(r.Keywords[0])
			}
			if _, ok := groups[key]; !ok {
				order = append(order, key)
			}
			groups[key] = append(groups[key], r)
		case model.SignalBuilderActivity:
			if r.Embedding != nil {
				builders = append(builders, r)
				builderVecs = append(builderVecs, r.Embedding)
			}
		}
	}

	var out []model.Pattern
	for _, key := range order {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		group := groups[key]
		vecs := make([][]float64, 0, len(group))
		for _, r := range group {
			vecs = append(vecs, r.Embedding)
		}
		var matched []model.ProcessedSignal
		if centre := similarity.Mean(vecs); centre != nil {
			for _, m := range similarity.FindSimilar(centre, builderVecs, d.Threshold, 0) {
				matched = append(matched, builders[m.Index])
			}
		}
		if len(matched) > maxBuilderMatches {
			continue
		}
		if p, ok := d.analyze(ctx, group, matched); ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (d *GapDetector) analyze(ctx context.Context, complaints, builders []model.ProcessedSignal) (model.Pattern, bool) {
	complaintText := indentJSON(briefs(complaints[:min(len(complaints), maxGapComplaints)], false))
	builderText := "None found"
	if len(builders) > 0 {
		builderText = indentJSON(briefs(builders[:min(len(builders), maxGapBuilders)], false))
	}
	var resp gapResponse
	if err := d.exec.Run(ctx, gapStage, fmt.Sprintf(gapPrompt, complaintText, builderText), &resp); err != nil {
		d.log.WithError(err).Warn("gap analysis failed")
		return model.Pattern{}, false
	}
	if !resp.IsRealGap || !resp.WorthPursuing {
		return model.Pattern{}, false
	}
	conf := 0.5
	if resp.Confidence != nil {
		conf = clamp01(*resp.Confidence)
	}
	pain := 5.0
	if resp.PainSeverity != nil {
		pain = float64(int(*resp.PainSeverity))
	}

	p := newCandidate(model.PatternGap, complaints)
	score := conf * pain / 10 * min(1, float64(len(complaints))/3)
	if p.ThesisScores[model.FactorDemandEvidence] >= highDemandEvidence {
		score *= demandBoost
	}
	title := strings.TrimSpace(resp.GapTitle)
	if title == "" {
		title = "Unaddressed Problem"
	}
	p.Title = "Gap: " + title
	p.Description = resp.GapDescription
	p.Hypothesis = resp.SolutionHypothesis
	p.Confidence = conf
	p.OpportunityScore = clamp01(score)
	p.TimingStage = InferTiming(complaints)
	return p, true
}
