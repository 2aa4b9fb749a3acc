package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/joelkehle/opportunity-radar/internal/model"
)

// Opportunities are stored as one JSON document with a few columns copied out
// for filtering. The status column is authoritative.
type opportunityRow struct {
	ID          string `db:"id"`
	PatternID   string `db:"pattern_id"`
	Title       string `db:"title"`
	Verdict     string `db:"verdict"`
	TimingStage string `db:"timing_stage"`
	Status      string `db:"status"`
	Document    string `db:"document"`
	CreatedAt   string `db:"created_at"`
}

func (r opportunityRow) toModel() (model.Opportunity, error) {
	var o model.Opportunity
	if err := json.Unmarshal([]byte(r.Document), &o); err != nil {
		return model.Opportunity{}, fmt.Errorf("decode opportunity %s: %w", r.ID, err)
	}
	o.ID = r.ID
	o.Status = model.OpportunityStatus(r.Status)
	o.CreatedAt = parseTime(r.CreatedAt)
	return o, nil
}

func (s *Store) InsertOpportunity(ctx context.Context, o *model.Opportunity) error {
	if o.ID == "" {
		o.ID = s.newID()
	}
	if o.Status == "" {
		o.Status = model.OpportunityNew
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = s.now()
	}
	doc, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("encode opportunity: %w", err)
	}
	_, err = s.exec(ctx, `INSERT INTO opportunities (id, pattern_id, title, verdict, timing_stage, status, document, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.PatternID, o.Title, string(o.Verdict), string(o.TimingStage), string(o.Status), string(doc), timeToString(o.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert opportunity: %w", err)
	}
	return nil
}

func (s *Store) GetOpportunity(ctx context.Context, id string) (model.Opportunity, error) {
	var row opportunityRow
	if err := s.getRow(ctx, &row, `SELECT * FROM opportunities WHERE id = ?`, id); err != nil {
		return model.Opportunity{}, fmt.Errorf("get opportunity %s: %w", id, err)
	}
	return row.toModel()
}

// FetchOpportunities returns opportunities matching f, newest first.
func (s *Store) FetchOpportunities(ctx context.Context, f model.OpportunityFilter) ([]model.Opportunity, error) {
	var (
		conds []string
		args  []any
	)
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.TimingStage != "" {
		conds = append(conds, "timing_stage = ?")
		args = append(args, string(f.TimingStage))
	}
	if !f.Since.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, timeToString(f.Since))
	}
	var rows []opportunityRow
	query := `SELECT * FROM opportunities` + whereClause(conds) + ` ORDER BY created_at DESC` + limitClause(f.Limit)
	if err := s.selectRows(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("fetch opportunities: %w", err)
	}
	out := make([]model.Opportunity, 0, len(rows))
	for _, r := range rows {
		o, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func (s *Store) UpdateOpportunityStatus(ctx context.Context, id string, status model.OpportunityStatus) error {
	res, err := s.exec(ctx, `UPDATE opportunities SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("update opportunity status: %w", err)
	}
	if err := mustAffect(res); err != nil {
		return fmt.Errorf("update opportunity %s: %w", id, err)
	}
	return nil
}
