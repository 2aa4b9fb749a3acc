package patterns

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/joelkehle/opportunity-radar/internal/llm"
	"github.com/joelkehle/opportunity-radar/internal/logging"
	"github.com/joelkehle/opportunity-radar/internal/model"
)

const (
	timingStage      = "timing"
	maxTimingSignals = 10
)

// Assessment is the model's timing judgement for one pattern.
type Assessment struct {
	Stage             model.TimingStage `json:"timing_stage"`
	Score             float64           `json:"timing_score"`
	Evidence          []string          `json:"evidence"`
	Risks             []string          `json:"timing_risks"`
	RecommendedAction string            `json:"recommended_action"`
	WindowEstimate    string            `json:"window_estimate"`
	Confidence        float64           `json:"confidence"`
}

// DefaultAssessment is used when the timing call fails.
func DefaultAssessment() Assessment {
	return Assessment{
		Stage:             model.TimingEmerging,
		Score:             5,
		Evidence:          []string{},
		Risks:             []string{"Insufficient data for timing analysis"},
		RecommendedAction: "monitor",
		WindowEstimate:    "unknown",
		Confidence:        0.3,
	}
}

// Narrative renders the assessment as the text stored on the pattern.
func (a Assessment) Narrative() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Timing: %s (score %.0f, confidence %.2f). Action: %s. Window: %s.", a.Stage, a.Score, a.Confidence, a.RecommendedAction, a.WindowEstimate)
	if len(a.Evidence) > 0 {
		b.WriteString("\nEvidence: " + strings.Join(a.Evidence, "; "))
	}
	if len(a.Risks) > 0 {
		b.WriteString("\nRisks: " + strings.Join(a.Risks, "; "))
	}
	return b.String()
}

type TimingAnalyzer struct {
	exec *llm.Executor
	log  logrus.FieldLogger
}

func NewTimingAnalyzer(exec *llm.Executor, log logrus.FieldLogger) *TimingAnalyzer {
	return &TimingAnalyzer{exec: exec, log: logging.OrDiscard(log)}
}

type timingBrief struct {
	Type        model.SignalType  `json:"type"`
	Title       string            `json:"title"`
	Summary     string            `json:"summary"`
	TimingStage model.TimingStage `json:"timing_stage"`
	Velocity    float64           `json:"velocity"`
	Novelty     float64           `json:"novelty"`
}

type timingResponse struct {
	Stage             string   `json:"timing_stage"`
	Score             *float64 `json:"timing_score"`
	Evidence          []string `json:"evidence"`
	Risks             []string `json:"timing_risks"`
	RecommendedAction string   `json:"recommended_action"`
	WindowEstimate    string   `json:"window_estimate"`
	Confidence        *float64 `json:"confidence"`
}

// Analyze asks for a timing judgement on p. On failure it returns the default
// assessment together with the error.
func (t *TimingAnalyzer) Analyze(ctx context.Context, p model.Pattern, records []model.ProcessedSignal) (Assessment, error) {
	records = records[:min(len(records), maxTimingSignals)]
	signals := make([]timingBrief, 0, len(records))
	for _, r := range records {
		signals = append(signals, timingBrief{
			Type:        r.SignalType,
			Title:       r.Title,
			Summary:     r.Summary,
			TimingStage: r.TimingStage,
			Velocity:    r.VelocityScore,
			Novelty:     r.NoveltyScore,
		})
	}
	prompt := fmt.Sprintf(timingPrompt, p.Title+": "+p.Description, indentJSON(signals))
	var resp timingResponse
	if err := t.exec.Run(ctx, timingStage, prompt, &resp); err != nil {
		return DefaultAssessment(), err
	}

	a := Assessment{
		Stage:             model.TimingEmerging,
		Score:             5,
		Evidence:          resp.Evidence,
		Risks:             resp.Risks,
		RecommendedAction: "monitor",
		WindowEstimate:    "unknown",
		Confidence:        0.5,
	}
	if st := model.TimingStage(strings.ToLower(strings.TrimSpace(resp.Stage))); st.Valid() {
		a.Stage = st
	}
	if resp.Score != nil {
		a.Score = *resp.Score
	}
	if resp.Confidence != nil {
		a.Confidence = *resp.Confidence
	}
	if s := strings.TrimSpace(resp.RecommendedAction); s != "" {
		a.RecommendedAction = s
	}
	if s := strings.TrimSpace(resp.WindowEstimate); s != "" {
		a.WindowEstimate = s
	}
	if a.Evidence == nil {
		a.Evidence = []string{}
	}
	if a.Risks == nil {
		a.Risks = []string{}
	}
	return a, nil
}

// InferTiming estimates a stage from record makeup alone. More builder than
// demand activity, or more than two competition records, reads as growing;
// otherwise the most common record stage wins, with ties going to emerging.
func InferTiming(records []model.ProcessedSignal) model.TimingStage {
	if len(records) == 0 {
		return model.TimingEmerging
	}
	var demand, builder, competition int
	counts := map[model.TimingStage]int{}
	for _, r := range records {
		switch r.SignalType {
		case model.SignalDemand:
			demand++
		case model.SignalBuilderActivity:
			builder++
		case model.SignalCompetitionIntel:
			competition++
		}
		if r.TimingStage.Valid() {
			counts[r.TimingStage]++
		}
	}
	if builder > demand || competition > 2 {
		return model.TimingGrowing
	}
	best, bestN, tie := model.TimingEmerging, 0, false
	for _, st := range []model.TimingStage{model.TimingEarly, model.TimingEmerging, model.TimingGrowing, model.TimingCrowded} {
		switch n := counts[st]; {
		case n > bestN:
			best, bestN, tie = st, n, false
		case n == bestN && n > 0:
			tie = true
		}
	}
	if bestN == 0 || tie {
		return model.TimingEmerging
	}
	return best
}
