package patterns

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/joelkehle/opportunity-radar/internal/logging"
	"github.com/joelkehle/opportunity-radar/internal/model"
)

var tracer = otel.Tracer("github.com/joelkehle/opportunity-radar/internal/patterns")

const (
	DefaultWindowDays  = 30
	DefaultAnomalyDays = 7
)

type Store interface {
	FetchProcessedSignals(ctx context.Context, f model.SignalFilter) ([]model.ProcessedSignal, error)
	InsertPattern(ctx context.Context, p *model.Pattern) error
	UpdatePatternTiming(ctx context.Context, id string, stage model.TimingStage, narrative string) error
	StartAnalysisRun(ctx context.Context, runType string) (*model.AnalysisRun, error)
	FinishAnalysisRun(ctx context.Context, run *model.AnalysisRun, runErr error) error
}

type OrchestratorConfig struct {
	AnomalyDays      int
	AnomalyThreshold float64
}

// Orchestrator runs every detector over one window and persists the results.
type Orchestrator struct {
	store     Store
	detectors []Detector
	timing    *TimingAnalyzer
	cfg       OrchestratorConfig
	log       logrus.FieldLogger
	now       func() time.Time
}

// NewOrchestrator wires the detectors. A nil timing analyzer disables the
// timing refinement pass.
func NewOrchestrator(store Store, detectors []Detector, timing *TimingAnalyzer, cfg OrchestratorConfig, log logrus.FieldLogger) *Orchestrator {
	if cfg.AnomalyDays <= 0 {
		cfg.AnomalyDays = DefaultAnomalyDays
	}
	if cfg.AnomalyThreshold <= 0 {
		cfg.AnomalyThreshold = DefaultAnomalyThreshold
	}
	return &Orchestrator{
		store:     store,
		detectors: detectors,
		timing:    timing,
		cfg:       cfg,
		log:       logging.OrDiscard(log),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type PersistError struct {
	Title string
	Err   error
}

type DetectionResult struct {
	Signals        int
	Patterns       []model.Pattern
	DetectorErrors map[string]error
	PersistErrors  []PersistError
}

// DetectAll detects over the trailing days of records. One detector failing
// does not stop the others, and a failed insert does not stop the rest.
func (o *Orchestrator) DetectAll(ctx context.Context, days int) (DetectionResult, error) {
	if days <= 0 {
		days = DefaultWindowDays
	}
	ctx, span := tracer.Start(ctx, "patterns.detect_all")
	defer span.End()

	run, err := o.store.StartAnalysisRun(ctx, model.RunPatternDetection)
	if err != nil {
		return DetectionResult{}, fmt.Errorf("start run: %w", err)
	}
	res, err := o.detectWindow(ctx, days, o.detectors, true)
	run.SignalsProcessed = res.Signals
	run.PatternsDetected = len(res.Patterns)
	if ferr := o.store.FinishAnalysisRun(ctx, run, err); ferr != nil {
		o.log.WithError(ferr).Warn("finish analysis run")
	}
	span.SetAttributes(attribute.Int("signals", res.Signals), attribute.Int("patterns", len(res.Patterns)))
	return res, err
}

// DetectAnomalies runs a tighter velocity spike pass over the recent window.
func (o *Orchestrator) DetectAnomalies(ctx context.Context) (DetectionResult, error) {
	ctx, span := tracer.Start(ctx, "patterns.detect_anomalies")
	defer span.End()
	run, err := o.store.StartAnalysisRun(ctx, model.RunAnomalyDetection)
	if err != nil {
		return DetectionResult{}, fmt.Errorf("start run: %w", err)
	}
	spikes := NewVelocitySpikeDetector(o.cfg.AnomalyThreshold)
	res, err := o.detectWindow(ctx, o.cfg.AnomalyDays, []Detector{spikes}, false)
	run.SignalsProcessed = res.Signals
	run.PatternsDetected = len(res.Patterns)
	if ferr := o.store.FinishAnalysisRun(ctx, run, err); ferr != nil {
		o.log.WithError(ferr).Warn("finish analysis run")
	}
	return res, err
}

func (o *Orchestrator) detectWindow(ctx context.Context, days int, detectors []Detector, refine bool) (DetectionResult, error) {
	res := DetectionResult{DetectorErrors: map[string]error{}}
	records, err := o.store.FetchProcessedSignals(ctx, model.SignalFilter{
		Since: o.now().Add(-time.Duration(days) * 24 * time.Hour),
	})
	if err != nil {
		return res, fmt.Errorf("load signals: %w", err)
	}
	res.Signals = len(records)
	if len(records) == 0 {
		o.log.Info("patterns no_signals")
		return res, nil
	}
	byID := make(map[string]model.ProcessedSignal, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}

	var candidates []model.Pattern
	for _, d := range detectors {
		found, err := runDetector(ctx, d, records)
		if err != nil {
			o.log.WithField("detector", d.Name()).WithError(err).Error("detector failed")
			res.DetectorErrors[d.Name()] = err
		}
		o.log.WithFields(logrus.Fields{"detector": d.Name(), "patterns": len(found)}).Info("detector complete")
		candidates = append(candidates, found...)
	}

	for i := range candidates {
		p := candidates[i]
		if err := o.store.InsertPattern(ctx, &p); err != nil {
			o.log.WithField("title", p.Title).WithError(err).Error("pattern persist_failed")
			res.PersistErrors = append(res.PersistErrors, PersistError{Title: p.Title, Err: err})
			continue
		}
		if refine && o.timing != nil {
			o.refine(ctx, &p, related(p, byID))
		}
		res.Patterns = append(res.Patterns, p)
	}
	o.log.WithFields(logrus.Fields{
		"signals":  res.Signals,
		"patterns": len(res.Patterns),
		"failed":   len(res.DetectorErrors) + len(res.PersistErrors),
	}).Info("patterns detection_complete")
	return res, nil
}

// refine stores the timing assessment as narrative. It never fails the pattern.
func (o *Orchestrator) refine(ctx context.Context, p *model.Pattern, records []model.ProcessedSignal) {
	a, err := o.timing.Analyze(ctx, *p, records)
	if err != nil {
		o.log.WithField("pattern_id", p.ID).WithError(err).Warn("timing analysis failed")
		return
	}
	narrative := a.Narrative()
	if err := o.store.UpdatePatternTiming(ctx, p.ID, p.TimingStage, narrative); err != nil {
		o.log.WithField("pattern_id", p.ID).WithError(err).Warn("timing persist failed")
		return
	}
	p.TimingNarrative = narrative
}

func runDetector(ctx context.Context, d Detector, records []model.ProcessedSignal) (found []model.Pattern, err error) {
	defer func() {
		if r := recover(); r != nil {
			found, err = nil, fmt.Errorf("detector %s panicked: %v", d.Name(), r)
		}
	}()
	return d.Detect(ctx, records)
}

func related(p model.Pattern, byID map[string]model.ProcessedSignal) []model.ProcessedSignal {
	out := make([]model.ProcessedSignal, 0, len(p.SignalIDs))
	for _, id := range p.SignalIDs {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out
}
