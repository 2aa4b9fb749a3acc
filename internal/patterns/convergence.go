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
	convergenceStage    = "convergence"
	minConvergenceTypes = 2
	minGenuineConf      = 0.5
)

var timingMultiplier = map[model.TimingStage]float64{
	model.TimingEarly:    0.9,
	model.TimingEmerging: 1.0,
	model.TimingGrowing:  0.8,
	model.TimingCrowded:  0.5,
}

const unknownTimingMultiplier = 0.7

type ConvergenceDetector struct {
	exec      *llm.Executor
	log       logrus.FieldLogger
	Threshold float64
	MinSize   int
}

func NewConvergenceDetector(exec *llm.Executor, log logrus.FieldLogger) *ConvergenceDetector {
	return &ConvergenceDetector{
		exec:      exec,
		log:       logging.OrDiscard(log).WithField("detector", convergenceStage),
		Threshold: similarity.DefaultClusterThreshold,
		MinSize:   3,
	}
}

func (d *ConvergenceDetector) Name() string { return convergenceStage }

type convergenceResponse struct {
	Title              string   `json:"title"`
	Theme              string   `json:"theme"`
	IsGenuine          bool     `json:"is_genuine"`
	Confidence         *float64 `json:"confidence"`
	Hypothesis         string   `json:"hypothesis"`
	ValidationSignals  []string `json:"validation_signals"`
	Timing             string   `json:"timing"`
	OpportunitySummary string   `json:"opportunity_summary"`
}

// Detect clusters records by embedding, drops clusters drawn from a single
// signal type and asks the model whether each remaining cluster is genuine.
// A failed or rejected cluster is skipped.
func (d *ConvergenceDetector) Detect(ctx context.Context, records []model.ProcessedSignal) ([]model.Pattern, error) {
	var (
		withVec []model.ProcessedSignal
		vectors [][]float64
	)
	for _, r := range records {
		if r.Embedding != nil {
			withVec = append(withVec, r)
			vectors = append(vectors, r.Embedding)
		}
	}
	if len(withVec) < d.MinSize {
		return nil, nil
	}

	var out []model.Pattern
	for _, idx := range similarity.Cluster(vectors, d.Threshold, d.MinSize) {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		cluster := make([]model.ProcessedSignal, 0, len(idx))
		for _, i := range idx {
			cluster = append(cluster, withVec[i])
		}
		types := distinctTypes(cluster)
		if len(types) < minConvergenceTypes {
			d.log.WithField("size", len(cluster)).Debug("cluster has a single signal type")
			continue
		}
		p, ok := d.analyze(ctx, cluster, types)
		if ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (d *ConvergenceDetector) analyze(ctx context.Context, cluster []model.ProcessedSignal, types []string) (model.Pattern, bool) {
	prompt := fmt.Sprintf(convergencePrompt, indentJSON(briefs(cluster, true)), strings.Join(types, ", "))
	var resp convergenceResponse
	if err := d.exec.Run(ctx, convergenceStage, prompt, &resp); err != nil {
		d.log.WithError(err).Warn("convergence analysis failed")
		return model.Pattern{}, false
	}
	if !resp.IsGenuine {
		return model.Pattern{}, false
	}
	conf := 0.5
	if resp.Confidence != nil {
		conf = clamp01(*resp.Confidence)
	}
	if conf < minGenuineConf {
		d.log.WithField("confidence", conf).Debug("convergence confidence too low")
		return model.Pattern{}, false
	}

	stage := model.TimingStage(strings.ToLower(strings.TrimSpace(resp.Timing)))
	if stage == "" {
		stage = model.TimingEmerging
	}
	mult, known := timingMultiplier[stage]
	if !known {
		mult = unknownTimingMultiplier
	}

	p := newCandidate(model.PatternConvergence, cluster)
	p.Title = resp.Title
	if strings.TrimSpace(p.Title) == "" {
		p.Title = "Convergence Pattern"
	}
	p.Description = resp.Theme
	p.Hypothesis = resp.Hypothesis
	p.Confidence = conf
	p.OpportunityScore = clamp01(conf * mult * min(1, float64(len(cluster))/5))
	if known {
		p.TimingStage = stage
	}
	return p, true
}

func distinctTypes(records []model.ProcessedSignal) []string {
	seen := map[model.SignalType]bool{}
	var out []string
	for _, r := range records {
		if !seen[r.SignalType] {
			seen[r.SignalType] = true
			out = append(out, string(r.SignalType))
		}
	}
	return out
}
