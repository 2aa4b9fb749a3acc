// Package synthesis condenses a window of signals, patterns and
// opportunities into periodic digests and a quarterly review.
package synthesis

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/joelkehle/opportunity-radar/internal/llm"
	"github.com/joelkehle/opportunity-radar/internal/logging"
	"github.com/joelkehle/opportunity-radar/internal/model"
)

const (
	digestStage    = "digest"
	quarterlyStage = "quarterly"

	digestPatterns      = 5
	digestOpportunities = 5
	digestSpikes        = 5
	spikeThreshold      = 0.7
	quarterlyOpps       = 10
	topTitlesPerType    = 3
	highFactorScore     = 7
)

type Synthesizer struct {
	exec *llm.Executor
	log  logrus.FieldLogger
	now  func() time.Time
}

func NewSynthesizer(exec *llm.Executor, log logrus.FieldLogger) *Synthesizer {
	return &Synthesizer{exec: exec, log: logging.OrDiscard(log), now: time.Now}
}

type patternBrief struct {
	Title       string            `json:"title"`
	Type        model.PatternType `json:"type"`
	Description string            `json:"description"`
	Score       float64           `json:"opportunity_score"`
	Confidence  float64           `json:"confidence"`
}

type opportunityBrief struct {
	Title    string        `json:"title"`
	OneLiner string        `json:"one_liner"`
	Verdict  model.Verdict `json:"verdict"`
	Overall  int           `json:"overall_score"`
}

type spikeBrief struct {
	Title    string   `json:"title"`
	Velocity float64  `json:"velocity"`
	Keywords []string `json:"keywords"`
}

type typeSummary struct {
	Count     int      `json:"count"`
	TopTitles []string `json:"top_titles"`
}

// Digest asks the model for a period summary. On any model failure a
// fallback digest carrying the counts is returned together with the error.
func (s *Synthesizer) Digest(ctx context.Context, period Period, in DigestInput) (*Digest, error) {
	signals := qualified(in.Signals)
	d := &Digest{
		Period:                  period,
		GeneratedAt:             s.now().UTC(),
		SignalsProcessed:        len(signals),
		SignalsDisqualified:     len(in.Signals) - len(signals),
		PatternsDetected:        len(in.Patterns),
		OpportunitiesIdentified: len(in.Opportunities),
	}

	prompt := fmt.Sprintf(digestPrompt,
		string(period),
		d.SignalsProcessed,
		d.PatternsDetected,
		d.OpportunitiesIdentified,
		indentJSON(topPatterns(in.Patterns, digestPatterns)),
		indentJSON(opportunityBriefs(in.Opportunities, digestOpportunities)),
		indentJSON(velocitySpikes(signals)),
	)
	if err := s.exec.Run(ctx, digestStage, prompt, d); err != nil {
		s.log.WithError(err).WithField("period", period).Warn("digest generation failed")
		fallbackDigest(d)
		return d, err
	}
	// The model reply may not overwrite the counts.
	d.Period = period
	d.SignalsProcessed = len(signals)
	d.SignalsDisqualified = len(in.Signals) - len(signals)
	d.PatternsDetected = len(in.Patterns)
	d.OpportunitiesIdentified = len(in.Opportunities)
	d.Error = ""
	return d, nil
}

func fallbackDigest(d *Digest) {
	*d = Digest{
		Period:                  d.Period,
		GeneratedAt:             d.GeneratedAt,
		SignalsProcessed:        d.SignalsProcessed,
		SignalsDisqualified:     d.SignalsDisqualified,
		PatternsDetected:        d.PatternsDetected,
		OpportunitiesIdentified: d.OpportunitiesIdentified,
		Error:                   "Digest generation failed",
		Headline:                "Unable to generate headline",
		ThisWeekAction:          "Review data manually",
		KeyInsight:              "Unable to generate insight",
		RecommendedActions:      []string{"Review data manually"},
		OverallAssessment: fmt.Sprintf("%d signals, %d patterns and %d opportunities were collected in this period.",
			d.SignalsProcessed, d.PatternsDetected, d.OpportunitiesIdentified),
	}
}

// Quarterly asks the model for a quarter-level review.
func (s *Synthesizer) Quarterly(ctx context.Context, quarter string, in DigestInput) (*Quarterly, error) {
	signals := qualified(in.Signals)
	q := &Quarterly{
		Quarter:     quarter,
		GeneratedAt: s.now().UTC(),
		Statistics: Statistics{
			Signals:             len(signals),
			SignalsDisqualified: len(in.Signals) - len(signals),
			Patterns:            len(in.Patterns),
			Opportunities:       len(in.Opportunities),
		},
	}
	stats := q.Statistics

	prompt := fmt.Sprintf(quarterlyPrompt,
		quarter,
		stats.Signals,
		stats.Patterns,
		stats.Opportunities,
		indentJSON(patternsByType(in.Patterns)),
		indentJSON(opportunityBriefs(in.Opportunities, quarterlyOpps)),
		indentJSON(ThesisDistribution(signals)),
	)
	if err := s.exec.Run(ctx, quarterlyStage, prompt, q); err != nil {
		s.log.WithError(err).WithField("quarter", quarter).Warn("quarterly synthesis failed")
		*q = Quarterly{
			Quarter:          quarter,
			GeneratedAt:      q.GeneratedAt,
			Statistics:       stats,
			Error:            "Synthesis generation failed",
			RecommendedFocus: RecommendedFocus{NextQuarterFocus: []string{"Review manually"}},
		}
		return q, err
	}
	q.Quarter = quarter
	q.Statistics = stats
	q.Error = ""
	return q, nil
}

// ThesisDistribution summarises every factor present on signals. Averages
// are rounded to two places.
func ThesisDistribution(signals []model.ProcessedSignal) map[model.Factor]FactorStats {
	sums := make(map[model.Factor]int)
	out := make(map[model.Factor]FactorStats)
	for _, sig := range signals {
		for f, v := range sig.Scores {
			st := out[f]
			st.Count++
			if v >= highFactorScore {
				st.HighCount++
			}
			sums[f] += v
			out[f] = st
		}
	}
	for f, st := range out {
		st.Avg = math.Round(float64(sums[f])/float64(st.Count)*100) / 100
		out[f] = st
	}
	return out
}

func qualified(records []model.ProcessedSignal) []model.ProcessedSignal {
	out := make([]model.ProcessedSignal, 0, len(records))
	for _, r := range records {
		if !r.IsDisqualified {
			out = append(out, r)
		}
	}
	return out
}

func topPatterns(patterns []model.Pattern, n int) []patternBrief {
	sorted := append([]model.Pattern(nil), patterns...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OpportunityScore > sorted[j].OpportunityScore
	})
	sorted = sorted[:min(n, len(sorted))]
	out := make([]patternBrief, 0, len(sorted))
	for _, p := range sorted {
		out = append(out, patternBrief{
			Title:       p.Title,
			Type:        p.PatternType,
			Description: model.Truncate(p.Description, 200),
			Score:       p.OpportunityScore,
			Confidence:  p.Confidence,
		})
	}
	return out
}

func opportunityBriefs(opps []model.Opportunity, n int) []opportunityBrief {
	opps = opps[:min(n, len(opps))]
	out := make([]opportunityBrief, 0, len(opps))
	for _, o := range opps {
		out = append(out, opportunityBrief{
			Title:    o.Title,
			OneLiner: o.OneLiner,
			Verdict:  o.Verdict,
			Overall:  o.Scoring.Overall,
		})
	}
	return out
}

func velocitySpikes(signals []model.ProcessedSignal) []spikeBrief {
	var out []spikeBrief
	for _, s := range signals {
		if s.VelocityScore <= spikeThreshold {
			continue
		}
		out = append(out, spikeBrief{
			Title:    s.Title,
			Velocity: s.VelocityScore,
			Keywords: s.Keywords[:min(3, len(s.Keywords))],
		})
		if len(out) == digestSpikes {
			break
		}
	}
	return out
}

func patternsByType(patterns []model.Pattern) map[model.PatternType]typeSummary {
	out := make(map[model.PatternType]typeSummary)
	for _, p := range patterns {
		ts := out[p.PatternType]
		ts.Count++
		if len(ts.TopTitles) < topTitlesPerType {
			ts.TopTitles = append(ts.TopTitles, p.Title)
		}
		out[p.PatternType] = ts
	}
	return out
}

func indentJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil || string(b) == "null" {
		return "[]"
	}
	return string(b)
}

// QuarterLabel names the quarter containing t, e.g. "Q3 2026".
func QuarterLabel(t time.Time) string {
	return fmt.Sprintf("Q%d %d", (int(t.Month())-1)/3+1, t.Year())
}
