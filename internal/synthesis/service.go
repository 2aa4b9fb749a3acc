package synthesis

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/joelkehle/opportunity-radar/internal/logging"
	"github.com/joelkehle/opportunity-radar/internal/model"
)

const QuarterDays = 90

type Store interface {
	FetchProcessedSignals(ctx context.Context, f model.SignalFilter) ([]model.ProcessedSignal, error)
	FetchPatterns(ctx context.Context, f model.PatternFilter) ([]model.Pattern, error)
	FetchOpportunities(ctx context.Context, f model.OpportunityFilter) ([]model.Opportunity, error)
	StartAnalysisRun(ctx context.Context, runType string) (*model.AnalysisRun, error)
	FinishAnalysisRun(ctx context.Context, run *model.AnalysisRun, runErr error) error
}

// Service loads a trailing window from the store and synthesises it.
type Service struct {
	store Store
	synth *Synthesizer
	log   logrus.FieldLogger
	now   func() time.Time
}

func NewService(store Store, synth *Synthesizer, log logrus.FieldLogger) *Service {
	return &Service{store: store, synth: synth, log: logging.OrDiscard(log), now: time.Now}
}

func (s *Service) load(ctx context.Context, days int) (DigestInput, error) {
	since := s.now().Add(-time.Duration(days) * 24 * time.Hour)
	var in DigestInput
	var err error
	if in.Signals, err = s.store.FetchProcessedSignals(ctx, model.SignalFilter{Since: since}); err != nil {
		return in, fmt.Errorf("load signals: %w", err)
	}
	if in.Patterns, err = s.store.FetchPatterns(ctx, model.PatternFilter{Since: since}); err != nil {
		return in, fmt.Errorf("load patterns: %w", err)
	}
	if in.Opportunities, err = s.store.FetchOpportunities(ctx, model.OpportunityFilter{Since: since}); err != nil {
		return in, fmt.Errorf("load opportunities: %w", err)
	}
	return in, nil
}

// Digest builds the weekly or monthly digest. A model failure still returns
// the fallback digest along with the error.
func (s *Service) Digest(ctx context.Context, period Period) (*Digest, error) {
	run, err := s.store.StartAnalysisRun(ctx, model.RunDigest)
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	in, err := s.load(ctx, period.Days())
	var d *Digest
	if err == nil {
		d, err = s.synth.Digest(ctx, period, in)
	}
	run.SignalsProcessed = len(in.Signals)
	run.PatternsDetected = len(in.Patterns)
	run.OpportunitiesFound = len(in.Opportunities)
	s.finish(ctx, run, err)
	return d, err
}

// Quarterly reviews the trailing 90 days, labelled with the current quarter.
func (s *Service) Quarterly(ctx context.Context) (*Quarterly, error) {
	run, err := s.store.StartAnalysisRun(ctx, model.RunQuarterly)
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	in, err := s.load(ctx, QuarterDays)
	var q *Quarterly
	if err == nil {
		q, err = s.synth.Quarterly(ctx, QuarterLabel(s.now()), in)
	}
	run.SignalsProcessed = len(in.Signals)
	run.PatternsDetected = len(in.Patterns)
	run.OpportunitiesFound = len(in.Opportunities)
	s.finish(ctx, run, err)
	return q, err
}

func (s *Service) finish(ctx context.Context, run *model.AnalysisRun, err error) {
	if ferr := s.store.FinishAnalysisRun(ctx, run, err); ferr != nil {
		s.log.WithError(ferr).Warn("finish analysis run")
	}
}
