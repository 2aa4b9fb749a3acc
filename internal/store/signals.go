package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/joelkehle/opportunity-radar/internal/model"
)

type rawSignalRow struct {
	ID             string `db:"id"`
	SourceType     string `db:"source_type"`
	SourceCategory string `db:"source_category"`
	SourceURL      string `db:"source_url"`
	RawContent     string `db:"raw_content"`
	SignalDate     string `db:"signal_date"`
	Geography      string `db:"geography"`
	CollectedAt    string `db:"collected_at"`
}

func (r rawSignalRow) toModel() model.RawSignal {
	content := json.RawMessage(r.RawContent)
	if len(strings.TrimSpace(r.RawContent)) == 0 {
		content = json.RawMessage(`{}`)
	}
	return model.RawSignal{
		ID:             r.ID,
		SourceType:     r.SourceType,
		SourceCategory: r.SourceCategory,
		SourceURL:      r.SourceURL,
		RawContent:     content,
		SignalDate:     parseTimePtr(r.SignalDate),
		Geography:      r.Geography,
		CollectedAt:    parseTime(r.CollectedAt),
	}
}

const insertRawSQL = `INSERT INTO raw_signals (id, source_type, source_category, source_url, raw_content, signal_date, geography, collected_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

func (s *Store) rawArgs(r *model.RawSignal) []any {
	if r.ID == "" {
		r.ID = s.newID()
	}
	if r.CollectedAt.IsZero() {
		r.CollectedAt = s.now()
	}
	content := string(r.RawContent)
	if strings.TrimSpace(content) == "" {
		content = "{}"
	}
	return []any{r.ID, r.SourceType, r.SourceCategory, r.SourceURL, content, timePtrToString(r.SignalDate), r.Geography, timeToString(r.CollectedAt)}
}

// InsertRawSignal stores r, assigning an ID and collection time when unset.
func (s *Store) InsertRawSignal(ctx context.Context, r *model.RawSignal) error {
	if _, err := s.exec(ctx, insertRawSQL, s.rawArgs(r)...); err != nil {
		return fmt.Errorf("insert raw signal: %w", err)
	}
	return nil
}

// InsertRawSignals stores rs in one transaction and returns how many were
// written.
func (s *Store) InsertRawSignals(ctx context.Context, rs []model.RawSignal) (int, error) {
	if len(rs) == 0 {
		return 0, nil
	}
	if err := s.wait(ctx); err != nil {
		return 0, err
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	query := tx.Rebind(insertRawSQL)
	for i := range rs {
		if _, err := tx.ExecContext(ctx, query, s.rawArgs(&rs[i])...); err != nil {
			return 0, fmt.Errorf("insert raw signal %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(rs), nil
}

func (s *Store) GetRawSignal(ctx context.Context, id string) (model.RawSignal, error) {
	var row rawSignalRow
	if err := s.getRow(ctx, &row, `SELECT * FROM raw_signals WHERE id = ?`, id); err != nil {
		return model.RawSignal{}, fmt.Errorf("get raw signal %s: %w", id, err)
	}
	return row.toModel(), nil
}

// FetchUnprocessed returns raw signals without a processed record, oldest
// first.
func (s *Store) FetchUnprocessed(ctx context.Context, limit int) ([]model.RawSignal, error) {
	var rows []rawSignalRow
	err := s.selectRows(ctx, &rows, `SELECT r.* FROM raw_signals r
		LEFT JOIN processed_signals p ON p.raw_signal_id = r.id
		WHERE p.id IS NULL
		ORDER BY r.collected_at`+limitClause(limit))
	if err != nil {
		return nil, fmt.Errorf("fetch unprocessed: %w", err)
	}
	out := make([]model.RawSignal, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

type processedRow struct {
	ID                     string         `db:"id"`
	RawSignalID            string         `db:"raw_signal_id"`
	SignalType             string         `db:"signal_type"`
	SignalSubtype          string         `db:"signal_subtype"`
	Title                  string         `db:"title"`
	Summary                string         `db:"summary"`
	ProblemSummary         string         `db:"problem_summary"`
	Industry               string         `db:"industry"`
	DemandEvidenceLevel    string         `db:"demand_evidence_level"`
	Entities               string         `db:"entities"`
	Keywords               string         `db:"keywords"`
	DemandEvidence         sql.NullInt64  `db:"demand_evidence"`
	CompetitionGap         sql.NullInt64  `db:"competition_gap"`
	TrendTiming            sql.NullInt64  `db:"trend_timing"`
	SoloBuildability       sql.NullInt64  `db:"solo_buildability"`
	ClearMonetisation      sql.NullInt64  `db:"clear_monetisation"`
	RegulatorySimplicity   sql.NullInt64  `db:"regulatory_simplicity"`
	ThesisReasoning        string         `db:"thesis_reasoning"`
	IsDisqualified         int            `db:"is_disqualified"`
	DisqualificationReason string         `db:"disqualification_reason"`
	NoveltyScore           float64        `db:"novelty_score"`
	VelocityScore          float64        `db:"velocity_score"`
	TimingStage            string         `db:"timing_stage"`
	Embedding              sql.NullString `db:"embedding"`
	ProcessedAt            string         `db:"processed_at"`
}

func (r *processedRow) factor(f model.Factor) *sql.NullInt64 {
	switch f {
	case model.FactorDemandEvidence:
		return &r.DemandEvidence
	case model.FactorCompetitionGap:
		return &r.CompetitionGap
	case model.FactorTrendTiming:
		return &r.TrendTiming
	case model.FactorSoloBuildability:
		return &r.SoloBuildability
	case model.FactorClearMonetisation:
		return &r.ClearMonetisation
	case model.FactorRegulatorySimplicity:
		return &r.RegulatorySimplicity
	}
	return nil
}

func (r *processedRow) toModel() model.ProcessedSignal {
	out := model.ProcessedSignal{
		ID:                     r.ID,
		RawSignalID:            r.RawSignalID,
		SignalType:             model.SignalType(r.SignalType),
		SignalSubtype:          r.SignalSubtype,
		Title:                  r.Title,
		Summary:                r.Summary,
		ProblemSummary:         r.ProblemSummary,
		Industry:               r.Industry,
		DemandEvidenceLevel:    model.DemandLevel(r.DemandEvidenceLevel),
		Scores:                 model.ThesisScores{},
		ThesisReasoning:        r.ThesisReasoning,
		IsDisqualified:         r.IsDisqualified != 0,
		DisqualificationReason: r.DisqualificationReason,
		NoveltyScore:           r.NoveltyScore,
		VelocityScore:          r.VelocityScore,
		TimingStage:            model.TimingStage(r.TimingStage),
		ProcessedAt:            parseTime(r.ProcessedAt),
	}
	_ = json.Unmarshal([]byte(r.Entities), &out.Entities)
	_ = json.Unmarshal([]byte(r.Keywords), &out.Keywords)
	for _, f := range model.Factors {
		if v := r.factor(f); v.Valid {
			out.Scores[f] = int(v.Int64)
		}
	}
	if r.Embedding.Valid {
		_ = json.Unmarshal([]byte(r.Embedding.String), &out.Embedding)
	}
	return out
}

func scoreArg(scores model.ThesisScores, f model.Factor) sql.NullInt64 {
	v, ok := scores[f]
	if !ok {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(v), Valid: true}
}

func processedArgs(p *model.ProcessedSignal) []any {
	args := []any{
		p.RawSignalID, string(p.SignalType), p.SignalSubtype, p.Title, p.Summary, p.ProblemSummary, p.Industry,
		string(p.DemandEvidenceLevel), marshalJSON(p.Entities, "{}"), marshalJSON(p.Keywords, "[]"),
	}
	for _, f := range model.Factors {
		args = append(args, scoreArg(p.Scores, f))
	}
	return append(args,
		p.ThesisReasoning, boolToInt(p.IsDisqualified), p.DisqualificationReason,
		p.NoveltyScore, p.VelocityScore, string(p.TimingStage), nullableJSON(p.Embedding), timeToString(p.ProcessedAt),
	)
}

// InsertProcessedSignal writes the whole record, embedding included, in one
// statement.
func (s *Store) InsertProcessedSignal(ctx context.Context, p *model.ProcessedSignal) error {
	if p.ID == "" {
		p.ID = s.newID()
	}
	if p.ProcessedAt.IsZero() {
		p.ProcessedAt = s.now()
	}
	args := append([]any{p.ID}, processedArgs(p)...)
	_, err := s.exec(ctx, `INSERT INTO processed_signals (id, raw_signal_id, signal_type, signal_subtype, title, summary, problem_summary, industry,
		demand_evidence_level, entities, keywords,
		demand_evidence, competition_gap, trend_timing, solo_buildability, clear_monetisation, regulatory_simplicity,
		thesis_reasoning, is_disqualified, disqualification_reason, novelty_score, velocity_score, timing_stage, embedding, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return fmt.Errorf("insert processed signal: %w", err)
	}
	return nil
}

// UpdateProcessedSignal overwrites every derived column of an existing record.
func (s *Store) UpdateProcessedSignal(ctx context.Context, p *model.ProcessedSignal) error {
	args := append(processedArgs(p), p.ID)
	res, err := s.exec(ctx, `UPDATE processed_signals SET raw_signal_id = ?, signal_type = ?, signal_subtype = ?, title = ?, summary = ?,
		problem_summary = ?, industry = ?, demand_evidence_level = ?, entities = ?, keywords = ?,
		demand_evidence = ?, competition_gap = ?, trend_timing = ?, solo_buildability = ?, clear_monetisation = ?, regulatory_simplicity = ?,
		thesis_reasoning = ?, is_disqualified = ?, disqualification_reason = ?, novelty_score = ?, velocity_score = ?, timing_stage = ?,
		embedding = ?, processed_at = ?
		WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update processed signal: %w", err)
	}
	if err := mustAffect(res); err != nil {
		return fmt.Errorf("update processed signal %s: %w", p.ID, err)
	}
	return nil
}

func (s *Store) GetProcessedSignal(ctx context.Context, id string) (model.ProcessedSignal, error) {
	var row processedRow
	if err := s.getRow(ctx, &row, `SELECT * FROM processed_signals WHERE id = ?`, id); err != nil {
		return model.ProcessedSignal{}, fmt.Errorf("get processed signal %s: %w", id, err)
	}
	return row.toModel(), nil
}

// FetchProcessedSignals returns records matching f, newest first.
func (s *Store) FetchProcessedSignals(ctx context.Context, f model.SignalFilter) ([]model.ProcessedSignal, error) {
	var (
		conds []string
		args  []any
	)
	if !f.Since.IsZero() {
		conds = append(conds, "processed_at >= ?")
		args = append(args, timeToString(f.Since))
	}
	if f.SignalType != "" {
		conds = append(conds, "signal_type = ?")
		args = append(args, string(f.SignalType))
	}
	if f.ExcludeDisqualified {
		conds = append(conds, "is_disqualified = 0")
	}
	if f.MinScore > 0 {
		var ors []string
		for _, factor := range model.Factors {
			ors = append(ors, string(factor)+" >= ?")
			args = append(args, f.MinScore)
		}
		conds = append(conds, "("+strings.Join(ors, " OR ")+")")
	}
	var rows []processedRow
	query := `SELECT * FROM processed_signals` + whereClause(conds) + ` ORDER BY processed_at DESC` + limitClause(f.Limit)
	if err := s.selectRows(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("fetch processed signals: %w", err)
	}
	out := make([]model.ProcessedSignal, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

type embeddingRow struct {
	ID        string `db:"id"`
	Embedding string `db:"embedding"`
}

// FetchRecentEmbeddings returns the vectors of records processed since the
// given time, newest first. Records without a vector are skipped.
func (s *Store) FetchRecentEmbeddings(ctx context.Context, since time.Time, limit int) ([]model.SignalEmbedding, error) {
	var rows []embeddingRow
	err := s.selectRows(ctx, &rows, `SELECT id, embedding FROM processed_signals
		WHERE embedding IS NOT NULL AND processed_at >= ?
		ORDER BY processed_at DESC`+limitClause(limit), timeToString(since))
	if err != nil {
		return nil, fmt.Errorf("fetch embeddings: %w", err)
	}
	out := make([]model.SignalEmbedding, 0, len(rows))
	for _, r := range rows {
		var vec []float64
		if err := json.Unmarshal([]byte(r.Embedding), &vec); err != nil || len(vec) == 0 {
			continue
		}
		out = append(out, model.SignalEmbedding{SignalID: r.ID, Vector: vec})
	}
	return out, nil
}
