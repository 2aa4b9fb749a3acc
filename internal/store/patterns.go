package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/joelkehle/opportunity-radar/internal/model"
)

type patternRow struct {
	ID               string  `db:"id"`
	PatternType      string  `db:"pattern_type"`
	Title            string  `db:"title"`
	Description      string  `db:"description"`
	Hypothesis       string  `db:"hypothesis"`
	SignalIDs        string  `db:"signal_ids"`
	Confidence       float64 `db:"confidence"`
	OpportunityScore float64 `db:"opportunity_score"`
	ThesisScores     string  `db:"thesis_scores"`
	PrimaryThesis    string  `db:"primary_thesis"`
	TimingStage      string  `db:"timing_stage"`
	TimingNarrative  string  `db:"timing_narrative"`
	Status           string  `db:"status"`
	Notes            string  `db:"notes"`
	DetectedAt       string  `db:"detected_at"`
	ReviewedAt       string  `db:"reviewed_at"`
}

func (r patternRow) toModel() model.Pattern {
	p := model.Pattern{
		ID:               r.ID,
		PatternType:      model.PatternType(r.PatternType),
		Title:            r.Title,
		Description:      r.Description,
		Hypothesis:       r.Hypothesis,
		Confidence:       r.Confidence,
		OpportunityScore: r.OpportunityScore,
		PrimaryThesis:    model.Factor(r.PrimaryThesis),
		TimingStage:      model.TimingStage(r.TimingStage),
		TimingNarrative:  r.TimingNarrative,
		Status:           model.PatternStatus(r.Status),
		Notes:            r.Notes,
		DetectedAt:       parseTime(r.DetectedAt),
		ReviewedAt:       parseTimePtr(r.ReviewedAt),
	}
	_ = json.Unmarshal([]byte(r.SignalIDs), &p.SignalIDs)
	_ = json.Unmarshal([]byte(r.ThesisScores), &p.ThesisScores)
	return p
}

// InsertPattern stores p. Empty ID, status and detection time are filled in.
func (s *Store) InsertPattern(ctx context.Context, p *model.Pattern) error {
	if p.ID == "" {
		p.ID = s.newID()
	}
	if p.Status == "" {
		p.Status = model.PatternNew
	}
	if p.DetectedAt.IsZero() {
		p.DetectedAt = s.now()
	}
	_, err := s.exec(ctx, `INSERT INTO patterns (id, pattern_type, title, description, hypothesis, signal_ids, confidence, opportunity_score,
		thesis_scores, primary_thesis, timing_stage, timing_narrative, status, notes, detected_at, reviewed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, string(p.PatternType), p.Title, p.Description, p.Hypothesis, marshalJSON(p.SignalIDs, "[]"),
		p.Confidence, p.OpportunityScore, marshalJSON(p.ThesisScores, "{}"), string(p.PrimaryThesis),
		string(p.TimingStage), p.TimingNarrative, string(p.Status), p.Notes,
		timeToString(p.DetectedAt), timePtrToString(p.ReviewedAt))
	if err != nil {
		return fmt.Errorf("insert pattern: %w", err)
	}
	return nil
}

func (s *Store) GetPattern(ctx context.Context, id string) (model.Pattern, error) {
	var row patternRow
	if err := s.getRow(ctx, &row, `SELECT * FROM patterns WHERE id = ?`, id); err != nil {
		return model.Pattern{}, fmt.Errorf("get pattern %s: %w", id, err)
	}
	return row.toModel(), nil
}

// FetchPatterns returns patterns matching f, highest opportunity score first.
func (s *Store) FetchPatterns(ctx context.Context, f model.PatternFilter) ([]model.Pattern, error) {
	var (
		conds []string
		args  []any
	)
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Type != "" {
		conds = append(conds, "pattern_type = ?")
		args = append(args, string(f.Type))
	}
	if f.MinScore > 0 {
		conds = append(conds, "opportunity_score >= ?")
		args = append(args, f.MinScore)
	}
	if !f.Since.IsZero() {
		conds = append(conds, "detected_at >= ?")
		args = append(args, timeToString(f.Since))
	}
	var rows []patternRow
	query := `SELECT * FROM patterns` + whereClause(conds) + ` ORDER BY opportunity_score DESC, detected_at DESC` + limitClause(f.Limit)
	if err := s.selectRows(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("fetch patterns: %w", err)
	}
	out := make([]model.Pattern, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// UpdatePatternStatus records a human review transition and stamps the
// review time.
func (s *Store) UpdatePatternStatus(ctx context.Context, id string, status model.PatternStatus, notes string) error {
	res, err := s.exec(ctx, `UPDATE patterns SET status = ?, notes = ?, reviewed_at = ? WHERE id = ?`,
		string(status), notes, timeToString(s.now()), id)
	if err != nil {
		return fmt.Errorf("update pattern status: %w", err)
	}
	if err := mustAffect(res); err != nil {
		return fmt.Errorf("update pattern %s: %w", id, err)
	}
	return nil
}

// UpdatePatternTiming stores the refined timing stage and its narrative.
func (s *Store) UpdatePatternTiming(ctx context.Context, id string, stage model.TimingStage, narrative string) error {
	res, err := s.exec(ctx, `UPDATE patterns SET timing_stage = ?, timing_narrative = ? WHERE id = ?`, string(stage), narrative, id)
	if err != nil {
		return fmt.Errorf("update pattern timing: %w", err)
	}
	if err := mustAffect(res); err != nil {
		return fmt.Errorf("update pattern %s: %w", id, err)
	}
	return nil
}
