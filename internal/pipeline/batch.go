package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/joelkehle/opportunity-radar/internal/model"
	"github.com/joelkehle/opportunity-radar/internal/velocity"
)

const DefaultProcessLimit = 100

type Failure struct {
	RawSignalID string `json:"raw_signal_id"`
	SignalID    string `json:"signal_id,omitempty"`
	Stage       string `json:"stage"`
	Err         error  `json:"-"`
	Message     string `json:"error"`
}

// BatchSummary counts the outcome of one batch. Disqualified records are also
// counted as processed.
type BatchSummary struct {
	Processed    int                     `json:"processed"`
	Disqualified int                     `json:"disqualified"`
	Failed       int                     `json:"failed"`
	Records      []model.ProcessedSignal `json:"-"`
	Failures     []Failure               `json:"failures,omitempty"`
}

func (s *BatchSummary) add(rec *model.ProcessedSignal) {
	s.Processed++
	if rec.IsDisqualified {
		s.Disqualified++
	}
	s.Records = append(s.Records, *rec)
}

func (s *BatchSummary) fail(rawID, signalID string, err error) {
	s.Failed++
	s.Failures = append(s.Failures, Failure{
		RawSignalID: rawID,
		SignalID:    signalID,
		Stage:       StageNameFromError(err),
		Err:         err,
		Message:     err.Error(),
	})
}

// ProcessBatch processes raws one at a time with a fixed delay between
// records. A failing record is logged and skipped. When ctx is cancelled no
// further records are started.
func (p *Pipeline) ProcessBatch(ctx context.Context, raws []model.RawSignal, progress ProgressFn) BatchSummary {
	var sum BatchSummary
	for i, raw := range raws {
		if ctx.Err() != nil {
			p.log.WithField("remaining", len(raws)-i).Warn("pipeline batch_cancelled")
			break
		}
		if i > 0 {
			if err := p.sleep(ctx, p.cfg.BatchDelay); err != nil {
				break
			}
		}
		rec, err := p.ProcessSignal(ctx, raw)
		if err != nil {
			p.log.WithFields(logrus.Fields{"raw_signal_id": raw.ID, "stage": StageNameFromError(err)}).WithError(err).Error("pipeline record_failed")
			p.record("failed")
			sum.fail(raw.ID, "", err)
		} else {
			if rec.IsDisqualified {
				p.record("disqualified")
			} else {
				p.record("processed")
			}
			sum.add(rec)
		}
		if progress != nil {
			progress(i+1, len(raws), raw.ID, err)
		}
	}
	p.log.WithFields(logrus.Fields{
		"processed":    sum.Processed,
		"disqualified": sum.Disqualified,
		"failed":       sum.Failed,
	}).Info("pipeline batch_complete")
	return sum
}

// ProcessUnprocessed loads up to limit raw signals without a processed record
// and runs them as a batch under an analysis run.
func (p *Pipeline) ProcessUnprocessed(ctx context.Context, limit int, progress ProgressFn) (BatchSummary, error) {
	if limit <= 0 {
		limit = DefaultProcessLimit
	}
	run, err := p.store.StartAnalysisRun(ctx, model.RunSignalProcessing)
	if err != nil {
		return BatchSummary{}, fmt.Errorf("start run: %w", err)
	}
	raws, err := p.store.FetchUnprocessed(ctx, limit)
	if err != nil {
		err = &StageError{Stage: StageLoad, Err: err}
		_ = p.store.FinishAnalysisRun(ctx, run, err)
		return BatchSummary{}, err
	}
	p.log.WithField("count", len(raws)).Info("pipeline batch_start")
	sum := p.ProcessBatch(ctx, raws, progress)
	run.SignalsProcessed = sum.Processed
	if err := p.store.FinishAnalysisRun(ctx, run, nil); err != nil {
		p.log.WithError(err).Warn("finish analysis run")
	}
	return sum, nil
}

// Reprocess re-runs enrichment for signals processed in the trailing days and
// overwrites them in place, keeping their IDs and raw signal links. Keyword
// mentions are not recorded again.
func (p *Pipeline) Reprocess(ctx context.Context, days int, progress ProgressFn) (BatchSummary, error) {
	signals, err := p.store.FetchProcessedSignals(ctx, model.SignalFilter{Since: p.since(days)})
	if err != nil {
		return BatchSummary{}, &StageError{Stage: StageLoad, Err: err}
	}
	var sum BatchSummary
	for i, sig := range signals {
		if ctx.Err() != nil {
			break
		}
		if i > 0 {
			if err := p.sleep(ctx, p.cfg.BatchDelay); err != nil {
				break
			}
		}
		rec, err := p.reprocessOne(ctx, sig)
		if err != nil {
			p.log.WithFields(logrus.Fields{"signal_id": sig.ID, "stage": StageNameFromError(err)}).WithError(err).Error("pipeline reprocess_failed")
			sum.fail(sig.RawSignalID, sig.ID, err)
		} else {
			sum.add(rec)
		}
		if progress != nil {
			progress(i+1, len(signals), sig.RawSignalID, err)
		}
	}
	return sum, nil
}

func (p *Pipeline) reprocessOne(ctx context.Context, sig model.ProcessedSignal) (rec *model.ProcessedSignal, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec, err = nil, &StageError{Stage: "panic", Err: fmt.Errorf("%v", r)}
		}
	}()
	raw, err := p.store.GetRawSignal(ctx, sig.RawSignalID)
	if err != nil {
		return nil, &StageError{Stage: StageLoad, Err: err}
	}
	enriched, err := p.enrich(ctx, raw, enrichOptions{id: sig.ID})
	if err != nil {
		return nil, err
	}
	if err := p.store.UpdateProcessedSignal(ctx, &enriched); err != nil {
		return nil, &StageError{Stage: StagePersist, Err: err}
	}
	return &enriched, nil
}

// WarmVelocity seeds the keyword tracker from signals stored in the trailing
// velocity window, so that separate runs share mention history.
func (p *Pipeline) WarmVelocity(ctx context.Context) (int, error) {
	signals, err := p.store.FetchProcessedSignals(ctx, model.SignalFilter{Since: p.now().Add(-velocity.Window)})
	if err != nil {
		return 0, err
	}
	var mentions []velocity.Mention
	for _, s := range signals {
		for _, kw := range s.Keywords {
			mentions = append(mentions, velocity.Mention{Keyword: kw, At: s.ProcessedAt})
		}
	}
	p.tracker.Seed(mentions)
	return len(mentions), nil
}

func (p *Pipeline) since(days int) time.Time {
	if days <= 0 {
		days = 30
	}
	return p.now().Add(-time.Duration(days) * 24 * time.Hour)
}

func (p *Pipeline) record(outcome string) {
	if p.observer != nil {
		p.observer.ObserveRecord(outcome)
	}
}
