// Package patterns finds groups of processed signals that together suggest an
// opportunity: semantic convergence across signal types, keyword velocity
// spikes, and complaints nobody is building for.
package patterns

import (
	"context"
	"encoding/json"

	"github.com/joelkehle/opportunity-radar/internal/model"
)

// Detector proposes pattern candidates from a window of records. Candidates
// are not persisted and carry no ID.
type Detector interface {
	Name() string
	Detect(ctx context.Context, records []model.ProcessedSignal) ([]model.Pattern, error)
}

func newCandidate(kind model.PatternType, records []model.ProcessedSignal) model.Pattern {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	agg := model.AggregateScores(records)
	return model.Pattern{
		PatternType:   kind,
		SignalIDs:     ids,
		ThesisScores:  agg,
		PrimaryThesis: agg.Primary(),
		Status:        model.PatternNew,
	}
}

// signalBrief is the per-record view sent to detector prompts.
type signalBrief struct {
	Type     model.SignalType `json:"type"`
	Title    string           `json:"title"`
	Summary  string           `json:"summary"`
	Keywords []string         `json:"keywords"`
	Entities *model.Entities  `json:"entities,omitempty"`
}

func briefs(records []model.ProcessedSignal, withEntities bool) []signalBrief {
	out := make([]signalBrief, 0, len(records))
	for _, r := range records {
		b := signalBrief{Type: r.SignalType, Title: r.Title, Summary: r.Summary, Keywords: r.Keywords}
		if withEntities {
			e := r.Entities
			b.Entities = &e
		}
		out = append(out, b)
	}
	return out
}

func indentJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(b)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
