package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/joelkehle/opportunity-radar/internal/alerts"
	"github.com/joelkehle/opportunity-radar/internal/collector"
	"github.com/joelkehle/opportunity-radar/internal/model"
	"github.com/joelkehle/opportunity-radar/internal/opportunity"
	"github.com/joelkehle/opportunity-radar/internal/patterns"
	"github.com/joelkehle/opportunity-radar/internal/pipeline"
	"github.com/joelkehle/opportunity-radar/internal/report"
	"github.com/joelkehle/opportunity-radar/internal/scheduler"
	"github.com/joelkehle/opportunity-radar/internal/store"
	"github.com/joelkehle/opportunity-radar/internal/synthesis"
	"github.com/joelkehle/opportunity-radar/internal/telemetry"
)

var tracer = telemetry.Tracer("github.com/joelkehle/opportunity-radar/internal/app")

const (
	OnceProcessLimit = 500
	OnceDetectDays   = 30
)

var ErrAllCollectorsFailed = errors.New("every collector failed")

// Collect runs every collector, or only those of category when it is set.
// The result maps collector name to stored signals, -1 marking a failure.
func (a *App) Collect(ctx context.Context, category string) (map[string]int, error) {
	ctx, span := tracer.Start(ctx, "app.collect")
	defer span.End()
	var counts map[string]int
	if category == "" {
		counts = a.Collectors.RunAll(ctx)
	} else {
		counts = a.Collectors.RunCategory(ctx, category)
	}
	failed := 0
	for name, n := range counts {
		a.Metrics.ObserveCollection(name, n)
		if n < 0 {
			failed++
		}
	}
	if len(counts) > 0 && failed == len(counts) {
		return counts, ErrAllCollectorsFailed
	}
	return counts, nil
}

// CollectOne runs a single collector by name.
func (a *App) CollectOne(ctx context.Context, name string) (int, error) {
	n, err := a.Collectors.Run(ctx, name)
	if errors.Is(err, collector.ErrUnknownCollector) {
		return 0, fmt.Errorf("%w (registered: %s)", err, strings.Join(a.Collectors.Names(), ", "))
	}
	if err != nil {
		return 0, err
	}
	a.Metrics.ObserveCollection(name, n)
	return n, nil
}

func (a *App) progress(done, total int, id string, err error) {
	if err != nil {
		return
	}
	if done == total || done%25 == 0 {
		a.log.WithFields(logrus.Fields{"done": done, "total": total, "raw_signal_id": id}).Info("processing progress")
	}
}

// Process enriches up to limit unprocessed raw signals. A non-positive
// limit uses the configured default.
func (a *App) Process(ctx context.Context, limit int) (pipeline.BatchSummary, error) {
	if limit <= 0 {
		limit = a.cfg.Pipeline.ProcessLimit
	}
	a.WarmVelocity(ctx)
	return a.Pipeline.ProcessUnprocessed(ctx, limit, a.progress)
}

func (a *App) Reprocess(ctx context.Context, days int) (pipeline.BatchSummary, error) {
	a.WarmVelocity(ctx)
	return a.Pipeline.Reprocess(ctx, days, a.progress)
}

// Detect runs every detector over the trailing days, defaulting to the
// configured window.
func (a *App) Detect(ctx context.Context, days int) (patterns.DetectionResult, error) {
	if days <= 0 {
		days = a.cfg.Patterns.WindowDays
	}
	res, err := a.Patterns.DetectAll(ctx, days)
	a.logDetection("detection", res)
	return res, err
}

// Anomalies runs the tight velocity pass and refreshes pending alerts.
func (a *App) Anomalies(ctx context.Context) (patterns.DetectionResult, error) {
	res, err := a.Patterns.DetectAnomalies(ctx)
	a.logDetection("anomaly detection", res)
	if err != nil {
		return res, err
	}
	if _, err := a.Alerts.Check(ctx); err != nil {
		return res, fmt.Errorf("check alerts: %w", err)
	}
	return res, nil
}

func (a *App) logDetection(what string, res patterns.DetectionResult) {
	for name, err := range res.DetectorErrors {
		a.log.WithField("detector", name).WithError(err).Warn(what + " detector failed")
	}
	a.log.WithFields(logrus.Fields{
		"signals":        res.Signals,
		"patterns":       len(res.Patterns),
		"persist_errors": len(res.PersistErrors),
	}).Info(what + " complete")
}

// Generate turns patterns still in review state new into opportunities.
// Each pattern is supported by the records its SignalIDs name.
func (a *App) Generate(ctx context.Context, minScore float64) (opportunity.BatchResult, error) {
	if minScore <= 0 {
		minScore = a.cfg.Opportunity.MinScore
	}
	ctx, span := tracer.Start(ctx, "app.generate")
	defer span.End()
	pats, err := a.Store.FetchPatterns(ctx, model.PatternFilter{Status: model.PatternNew, MinScore: minScore})
	if err != nil {
		return opportunity.BatchResult{}, fmt.Errorf("load patterns: %w", err)
	}
	records, err := a.supportingRecords(ctx, pats)
	if err != nil {
		return opportunity.BatchResult{}, err
	}
	span.SetAttributes(attribute.Int("patterns", len(pats)), attribute.Int("records", len(records)))
	res := a.Generator.GenerateFromPatterns(ctx, pats, records, minScore)
	a.log.WithFields(logrus.Fields{
		"considered":    res.Considered,
		"opportunities": len(res.Opportunities),
		"skipped":       len(res.Skipped),
		"failed":        len(res.Errors),
	}).Info("opportunity generation complete")
	return res, nil
}

func (a *App) supportingRecords(ctx context.Context, pats []model.Pattern) ([]model.ProcessedSignal, error) {
	seen := map[string]bool{}
	var out []model.ProcessedSignal
	for _, p := range pats {
		for _, id := range p.SignalIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			rec, err := a.Store.GetProcessedSignal(ctx, id)
			if errors.Is(err, store.ErrNotFound) {
				a.log.WithFields(logrus.Fields{"pattern_id": p.ID, "signal_id": id}).Warn("pattern signal missing")
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("load signal %s: %w", id, err)
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

// Output names optional report files. Empty paths are skipped.
type Output struct {
	Markdown string
	PDF      string
}

// Digest builds the periodic digest and writes the requested reports. When
// the model step fails the fallback digest is still written and returned
// with the error.
func (a *App) Digest(ctx context.Context, period synthesis.Period, out Output) (*synthesis.Digest, error) {
	d, err := a.Synthesis.Digest(ctx, period)
	if d == nil {
		return nil, err
	}
	title := "Weekly Digest"
	if period == synthesis.Monthly {
		title = "Monthly Digest"
	}
	if werr := a.writeReports(ctx, report.KindDigest, title, report.Digest(d), out); werr != nil {
		return d, errors.Join(err, werr)
	}
	return d, err
}

func (a *App) Quarterly(ctx context.Context, out Output) (*synthesis.Quarterly, error) {
	q, err := a.Synthesis.Quarterly(ctx)
	if q == nil {
		return nil, err
	}
	if werr := a.writeReports(ctx, report.KindQuarterly, "Quarterly Synthesis "+q.Quarter, report.Quarterly(q), out); werr != nil {
		return q, errors.Join(err, werr)
	}
	return q, err
}

func (a *App) writeReports(ctx context.Context, kind report.Kind, title, markdown string, out Output) error {
	if out.Markdown != "" {
		if err := writeFile(out.Markdown, []byte(markdown)); err != nil {
			return err
		}
		a.log.WithField("path", out.Markdown).Info("report written")
	}
	if out.PDF != "" {
		pdf, err := a.PDF.Render(ctx, kind, title, markdown)
		if err != nil {
			return fmt.Errorf("render pdf: %w", err)
		}
		if err := writeFile(out.PDF, pdf); err != nil {
			return err
		}
		a.log.WithField("path", out.PDF).Info("report written")
	}
	return nil
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func (a *App) CheckAlerts(ctx context.Context) ([]alerts.Alert, error) {
	return a.Alerts.Check(ctx)
}

// OnceSummary reports one full collect, process, detect and generate pass.
type OnceSummary struct {
	Collected     map[string]int
	Processing    pipeline.BatchSummary
	Patterns      int
	Opportunities int
}

// Once runs the whole batch chain. A failed collection does not stop
// processing of signals already stored.
func (a *App) Once(ctx context.Context) (OnceSummary, error) {
	var sum OnceSummary
	counts, err := a.Collect(ctx, "")
	sum.Collected = counts
	if err != nil {
		a.log.WithError(err).Warn("collection failed, processing stored signals")
	}
	if sum.Processing, err = a.Process(ctx, OnceProcessLimit); err != nil {
		return sum, fmt.Errorf("process: %w", err)
	}
	det, err := a.Detect(ctx, OnceDetectDays)
	if err != nil {
		return sum, fmt.Errorf("detect: %w", err)
	}
	sum.Patterns = len(det.Patterns)
	gen, err := a.Generate(ctx, a.cfg.Opportunity.MinScore)
	if err != nil {
		return sum, fmt.Errorf("generate: %w", err)
	}
	sum.Opportunities = len(gen.Opportunities)
	return sum, nil
}

// Jobs maps every scheduled job name to its run function.
func (a *App) Jobs() map[string]scheduler.Job {
	return map[string]scheduler.Job{
		scheduler.JobWeeklyCollection: func(ctx context.Context) error {
			_, err := a.Collect(ctx, collector.CategoryBuilder)
			return err
		},
		scheduler.JobMonthlyCollection: func(ctx context.Context) error {
			_, err := a.Collect(ctx, collector.CategoryDemand)
			return err
		},
		scheduler.JobDailyProcessing: func(ctx context.Context) error {
			_, err := a.Process(ctx, 0)
			return err
		},
		scheduler.JobWeeklyAnalysis: func(ctx context.Context) error {
			if _, err := a.Detect(ctx, 0); err != nil {
				return err
			}
			_, err := a.Generate(ctx, 0)
			return err
		},
		scheduler.JobWeeklyDigest: func(ctx context.Context) error {
			_, err := a.Digest(ctx, synthesis.Weekly, a.reportOutput("weekly"))
			return err
		},
		scheduler.JobMonthlyDigest: func(ctx context.Context) error {
			_, err := a.Digest(ctx, synthesis.Monthly, a.reportOutput("monthly"))
			return err
		},
		scheduler.JobAnomalyCheck: func(ctx context.Context) error {
			_, err := a.Anomalies(ctx)
			return err
		},
		scheduler.JobQuarterlySynthesis: func(ctx context.Context) error {
			_, err := a.Quarterly(ctx, a.reportOutput("quarterly"))
			return err
		},
	}
}

// reportOutput names the markdown file a scheduled run writes under the
// configured report directory.
func (a *App) reportOutput(kind string) Output {
	if a.cfg.Report.Dir == "" {
		return Output{}
	}
	name := fmt.Sprintf("%s-%s.md", kind, a.now().Format("2006-01-02"))
	return Output{Markdown: filepath.Join(a.cfg.Report.Dir, name)}
}

// Schedule registers Jobs on s with the configured expressions.
func (a *App) Schedule(s *scheduler.Scheduler) error {
	return s.AddAll(a.cfg.Schedule.WithDefaults(), a.Jobs())
}
