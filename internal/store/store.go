// Package store persists raw signals, processed signals, patterns,
// opportunities and run bookkeeping through sqlx. SQLite is the default
// driver; PostgreSQL is supported with the same schema.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/joelkehle/opportunity-radar/internal/model"
	"github.com/joelkehle/opportunity-radar/internal/ratelimit"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var ErrNotFound = errors.New("not found")

// timeLayout is fixed width so that stored timestamps compare correctly as
// strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS raw_signals (
	id              TEXT PRIMARY KEY,
	source_type     TEXT NOT NULL,
	source_category TEXT NOT NULL DEFAULT '',
	source_url      TEXT NOT NULL DEFAULT '',
	raw_content     TEXT NOT NULL DEFAULT '{}',
	signal_date     TEXT NOT NULL DEFAULT '',
	geography       TEXT NOT NULL DEFAULT '',
	collected_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS processed_signals (
	id                      TEXT PRIMARY KEY,
	raw_signal_id           TEXT NOT NULL,
	signal_type             TEXT NOT NULL,
	signal_subtype          TEXT NOT NULL DEFAULT '',
	title                   TEXT NOT NULL DEFAULT '',
	summary                 TEXT NOT NULL DEFAULT '',
	problem_summary         TEXT NOT NULL DEFAULT '',
	industry                TEXT NOT NULL DEFAULT '',
	demand_evidence_level   TEXT NOT NULL DEFAULT 'none',
	entities                TEXT NOT NULL DEFAULT '{}',
	keywords                TEXT NOT NULL DEFAULT '[]',
	demand_evidence         INTEGER,
	competition_gap         INTEGER,
	trend_timing            INTEGER,
	solo_buildability       INTEGER,
	clear_monetisation      INTEGER,
	regulatory_simplicity   INTEGER,
	thesis_reasoning        TEXT NOT NULL DEFAULT '',
	is_disqualified         INTEGER NOT NULL DEFAULT 0,
	disqualification_reason TEXT NOT NULL DEFAULT '',
	novelty_score           DOUBLE PRECISION NOT NULL DEFAULT 0,
	velocity_score          DOUBLE PRECISION NOT NULL DEFAULT 0,
	timing_stage            TEXT NOT NULL DEFAULT '',
	embedding               TEXT,
	processed_at            TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_processed_raw ON processed_signals (raw_signal_id);
CREATE INDEX IF NOT EXISTS idx_processed_at ON processed_signals (processed_at);

CREATE TABLE IF NOT EXISTS patterns (
	id                TEXT PRIMARY KEY,
	pattern_type      TEXT NOT NULL,
	title             TEXT NOT NULL DEFAULT '',
	description       TEXT NOT NULL DEFAULT '',
	hypothesis        TEXT NOT NULL DEFAULT '',
	signal_ids        TEXT NOT NULL DEFAULT '[]',
	confidence        DOUBLE PRECISION NOT NULL DEFAULT 0,
	opportunity_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	thesis_scores     TEXT NOT NULL DEFAULT '{}',
	primary_thesis    TEXT NOT NULL DEFAULT '',
	timing_stage      TEXT NOT NULL DEFAULT '',
	timing_narrative  TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL DEFAULT 'new',
	notes             TEXT NOT NULL DEFAULT '',
	detected_at       TEXT NOT NULL,
	reviewed_at       TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS opportunities (
	id           TEXT PRIMARY KEY,
	pattern_id   TEXT NOT NULL DEFAULT '',
	title        TEXT NOT NULL DEFAULT '',
	verdict      TEXT NOT NULL DEFAULT '',
	timing_stage TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'new',
	document     TEXT NOT NULL,
	created_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS collection_runs (
	id                TEXT PRIMARY KEY,
	collector_name    TEXT NOT NULL,
	status            TEXT NOT NULL,
	signals_collected INTEGER NOT NULL DEFAULT 0,
	error             TEXT NOT NULL DEFAULT '',
	started_at        TEXT NOT NULL,
	completed_at      TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS analysis_runs (
	id                  TEXT PRIMARY KEY,
	run_type            TEXT NOT NULL,
	status              TEXT NOT NULL,
	signals_processed   INTEGER NOT NULL DEFAULT 0,
	patterns_detected   INTEGER NOT NULL DEFAULT 0,
	opportunities_found INTEGER NOT NULL DEFAULT 0,
	error               TEXT NOT NULL DEFAULT '',
	started_at          TEXT NOT NULL,
	completed_at        TEXT NOT NULL DEFAULT ''
);
`

type Store struct {
	db      *sqlx.DB
	limiter *ratelimit.Limiter
	now     func() time.Time
	newID   func() string
}

type Option func(*Store)

// WithLimiter throttles every store call through l.
func WithLimiter(l *ratelimit.Limiter) Option { return func(s *Store) { s.limiter = l } }
func WithClock(now func() time.Time) Option   { return func(s *Store) { s.now = now } }
func WithIDs(newID func() string) Option       { return func(s *Store) { s.newID = newID } }

// Open connects with driver ("sqlite" or "postgres") and creates the schema.
// For sqlite the dsn is a file path.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*Store, error) {
	var (
		db  *sqlx.DB
		err error
	)
	switch driver {
	case DriverSQLite, "":
		db, err = sqlx.Open("sqlite", dsn+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
		if err == nil {
			db.SetMaxOpenConns(1)
		}
	case DriverPostgres:
		db, err = sqlx.Open("postgres", dsn)
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	s := &Store{
		db:    db,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) wait(ctx context.Context) error {
	if s.limiter == nil {
		return ctx.Err()
	}
	return s.limiter.Wait(ctx)
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return s.db.ExecContext(ctx, s.db.Rebind(query), args...)
}

func (s *Store) selectRows(ctx context.Context, dest any, query string, args ...any) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	return s.db.SelectContext(ctx, dest, s.db.Rebind(query), args...)
}

func (s *Store) getRow(ctx context.Context, dest any, query string, args ...any) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	err := s.db.GetContext(ctx, dest, s.db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func mustAffect(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- encoding helpers ---

func timeToString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func timePtrToString(t *time.Time) string {
	if t == nil {
		return ""
	}
	return timeToString(*t)
}

func parseTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, v)
	}
	return t.UTC()
}

func parseTimePtr(v string) *time.Time {
	if v == "" {
		return nil
	}
	t := parseTime(v)
	return &t
}

func marshalJSON(v any, empty string) string {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return empty
	}
	return string(b)
}

func nullableJSON(v []float64) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func limitClause(limit int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", limit)
}

// --- runs ---

func (s *Store) StartCollectionRun(ctx context.Context, collector string) (*model.CollectionRun, error) {
	run := &model.CollectionRun{ID: s.newID(), CollectorName: collector, Status: model.RunRunning, StartedAt: s.now()}
	_, err := s.exec(ctx, `INSERT INTO collection_runs (id, collector_name, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.CollectorName, string(run.Status), timeToString(run.StartedAt))
	if err != nil {
		return nil, fmt.Errorf("start collection run: %w", err)
	}
	return run, nil
}

// FinishCollectionRun marks run completed with count, or failed when runErr
// is non-nil.
func (s *Store) FinishCollectionRun(ctx context.Context, run *model.CollectionRun, count int, runErr error) error {
	now := s.now()
	run.CompletedAt = &now
	run.SignalsCollected = count
	run.Status = model.RunCompleted
	if runErr != nil {
		run.Status = model.RunFailed
		run.Error = runErr.Error()
	}
	res, err := s.exec(ctx, `UPDATE collection_runs SET status = ?, signals_collected = ?, error = ?, completed_at = ? WHERE id = ?`,
		string(run.Status), run.SignalsCollected, run.Error, timeToString(now), run.ID)
	if err != nil {
		return fmt.Errorf("finish collection run: %w", err)
	}
	return mustAffect(res)
}

type collectionRunRow struct {
	ID               string `db:"id"`
	CollectorName    string `db:"collector_name"`
	Status           string `db:"status"`
	SignalsCollected int    `db:"signals_collected"`
	Error            string `db:"error"`
	StartedAt        string `db:"started_at"`
	CompletedAt      string `db:"completed_at"`
}

// RecentCollectionRuns returns the latest runs, newest first.
func (s *Store) RecentCollectionRuns(ctx context.Context, limit int) ([]model.CollectionRun, error) {
	var rows []collectionRunRow
	if err := s.selectRows(ctx, &rows, `SELECT * FROM collection_runs ORDER BY started_at DESC`+limitClause(limit)); err != nil {
		return nil, fmt.Errorf("fetch collection runs: %w", err)
	}
	out := make([]model.CollectionRun, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.CollectionRun{
			ID:               r.ID,
			CollectorName:    r.CollectorName,
			Status:           model.RunStatus(r.Status),
			SignalsCollected: r.SignalsCollected,
			Error:            r.Error,
			StartedAt:        parseTime(r.StartedAt),
			CompletedAt:      parseTimePtr(r.CompletedAt),
		})
	}
	return out, nil
}

func (s *Store) StartAnalysisRun(ctx context.Context, runType string) (*model.AnalysisRun, error) {
	run := &model.AnalysisRun{ID: s.newID(), RunType: runType, Status: model.RunRunning, StartedAt: s.now()}
	_, err := s.exec(ctx, `INSERT INTO analysis_runs (id, run_type, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.RunType, string(run.Status), timeToString(run.StartedAt))
	if err != nil {
		return nil, fmt.Errorf("start analysis run: %w", err)
	}
	return run, nil
}

// FinishAnalysisRun writes the counters held in run and its final status.
func (s *Store) FinishAnalysisRun(ctx context.Context, run *model.AnalysisRun, runErr error) error {
	now := s.now()
	run.CompletedAt = &now
	run.Status = model.RunCompleted
	if runErr != nil {
		run.Status = model.RunFailed
		run.Error = runErr.Error()
	}
	res, err := s.exec(ctx, `UPDATE analysis_runs SET status = ?, signals_processed = ?, patterns_detected = ?, opportunities_found = ?, error = ?, completed_at = ? WHERE id = ?`,
		string(run.Status), run.SignalsProcessed, run.PatternsDetected, run.OpportunitiesFound, run.Error, timeToString(now), run.ID)
	if err != nil {
		return fmt.Errorf("finish analysis run: %w", err)
	}
	return mustAffect(res)
}

type analysisRunRow struct {
	ID                 string `db:"id"`
	RunType            string `db:"run_type"`
	Status             string `db:"status"`
	SignalsProcessed   int    `db:"signals_processed"`
	PatternsDetected   int    `db:"patterns_detected"`
	OpportunitiesFound int    `db:"opportunities_found"`
	Error              string `db:"error"`
	StartedAt          string `db:"started_at"`
	CompletedAt        string `db:"completed_at"`
}

// RecentAnalysisRuns returns the latest runs, newest first.
func (s *Store) RecentAnalysisRuns(ctx context.Context, limit int) ([]model.AnalysisRun, error) {
	var rows []analysisRunRow
	if err := s.selectRows(ctx, &rows, `SELECT * FROM analysis_runs ORDER BY started_at DESC`+limitClause(limit)); err != nil {
		return nil, fmt.Errorf("fetch analysis runs: %w", err)
	}
	out := make([]model.AnalysisRun, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.AnalysisRun{
			ID:                 r.ID,
			RunType:            r.RunType,
			Status:             model.RunStatus(r.Status),
			SignalsProcessed:   r.SignalsProcessed,
			PatternsDetected:   r.PatternsDetected,
			OpportunitiesFound: r.OpportunitiesFound,
			Error:              r.Error,
			StartedAt:          parseTime(r.StartedAt),
			CompletedAt:        parseTimePtr(r.CompletedAt),
		})
	}
	return out, nil
}
