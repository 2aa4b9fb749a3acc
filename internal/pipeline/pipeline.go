// Package pipeline turns raw signals into processed signals: classify, score,
// embed, measure novelty and velocity, infer a timing stage and persist.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/joelkehle/opportunity-radar/internal/classify"
	"github.com/joelkehle/opportunity-radar/internal/logging"
	"github.com/joelkehle/opportunity-radar/internal/model"
	"github.com/joelkehle/opportunity-radar/internal/retry"
	"github.com/joelkehle/opportunity-radar/internal/similarity"
	"github.com/joelkehle/opportunity-radar/internal/thesis"
	"github.com/joelkehle/opportunity-radar/internal/velocity"
)

var tracer = otel.Tracer("github.com/joelkehle/opportunity-radar/internal/pipeline")

const (
	StageClassify = "classify"
	StageScore    = "score"
	StageEmbed    = "embed"
	StageNovelty  = "novelty"
	StageVelocity = "velocity"
	StagePersist  = "persist"
	StageLoad     = "load"
)

type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// StageNameFromError returns the failing stage, or "" when err carries none.
func StageNameFromError(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

type Store interface {
	FetchUnprocessed(ctx context.Context, limit int) ([]model.RawSignal, error)
	GetRawSignal(ctx context.Context, id string) (model.RawSignal, error)
	FetchRecentEmbeddings(ctx context.Context, since time.Time, limit int) ([]model.SignalEmbedding, error)
	FetchProcessedSignals(ctx context.Context, f model.SignalFilter) ([]model.ProcessedSignal, error)
	InsertProcessedSignal(ctx context.Context, s *model.ProcessedSignal) error
	UpdateProcessedSignal(ctx context.Context, s *model.ProcessedSignal) error
	StartAnalysisRun(ctx context.Context, runType string) (*model.AnalysisRun, error)
	FinishAnalysisRun(ctx context.Context, run *model.AnalysisRun, runErr error) error
}

type Classifier interface {
	Classify(ctx context.Context, raw model.RawSignal) classify.Classification
}

type Scorer interface {
	Score(ctx context.Context, in thesis.Input) thesis.Outcome
}

type Embedder interface {
	Embed(ctx context.Context, text string) []float64
}

// Observer receives per-record outcomes and stage timings.
type Observer interface {
	ObserveRecord(outcome string)
	ObserveStage(stage string, elapsed time.Duration)
}

type Config struct {
	BatchDelay       time.Duration
	NoveltyWindow    time.Duration
	NoveltyLimit     int
	NoveltyThreshold float64
}

func DefaultConfig() Config {
	return Config{
		BatchDelay:       500 * time.Millisecond,
		NoveltyWindow:    7 * 24 * time.Hour,
		NoveltyLimit:     1000,
		NoveltyThreshold: similarity.DefaultNoveltyThreshold,
	}
}

type Deps struct {
	Store      Store
	Classifier Classifier
	Scorer     Scorer
	Embedder   Embedder
	Tracker    *velocity.Tracker
	Log        logrus.FieldLogger
	Observer   Observer
}

type ProgressFn func(done, total int, rawSignalID string, err error)

type Pipeline struct {
	cfg        Config
	store      Store
	classifier Classifier
	scorer     Scorer
	embedder   Embedder
	tracker    *velocity.Tracker
	log        logrus.FieldLogger
	observer   Observer

	now   func() time.Time
	newID func() string
	sleep retry.Sleeper
}

type Option func(*Pipeline)

func WithClock(now func() time.Time) Option { return func(p *Pipeline) { p.now = now } }
func WithIDs(newID func() string) Option     { return func(p *Pipeline) { p.newID = newID } }
func WithSleeper(s retry.Sleeper) Option     { return func(p *Pipeline) { p.sleep = s } }

func New(deps Deps, cfg Config, opts ...Option) *Pipeline {
	def := DefaultConfig()
	if cfg.NoveltyWindow <= 0 {
		cfg.NoveltyWindow = def.NoveltyWindow
	}
	if cfg.NoveltyLimit <= 0 {
		cfg.NoveltyLimit = def.NoveltyLimit
	}
	if cfg.NoveltyThreshold <= 0 {
		cfg.NoveltyThreshold = def.NoveltyThreshold
	}
	if cfg.BatchDelay < 0 {
		cfg.BatchDelay = 0
	}
	tracker := deps.Tracker
	if tracker == nil {
		tracker = velocity.NewTracker()
	}
	p := &Pipeline{
		cfg:        cfg,
		store:      deps.Store,
		classifier: deps.Classifier,
		scorer:     deps.Scorer,
		embedder:   deps.Embedder,
		tracker:    tracker,
		log:        logging.OrDiscard(deps.Log),
		observer:   deps.Observer,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
		sleep:      retry.Sleep,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// InferTimingStage is the fixed 2x2 table over novelty and velocity.
func InferTimingStage(novelty, velocity float64) model.TimingStage {
	highNovelty := novelty > 0.7
	highVelocity := velocity > 0.5
	switch {
	case highNovelty && highVelocity:
		return model.TimingEmerging
	case highNovelty:
		return model.TimingEarly
	case highVelocity:
		return model.TimingGrowing
	default:
		return model.TimingCrowded
	}
}

// EmbeddingText joins the classified fields used for similarity.
func EmbeddingText(c classify.Classification) string {
	parts := []string{c.Title, c.Summary, c.ProblemSummary, strings.Join(c.Keywords, " ")}
	var b strings.Builder
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(part)
	}
	return b.String()
}

type enrichOptions struct {
	id             string
	recordMentions bool
}

func (p *Pipeline) enrich(ctx context.Context, raw model.RawSignal, opts enrichOptions) (model.ProcessedSignal, error) {
	now := p.now()

	start := time.Now()
	cls := p.classifier.Classify(ctx, raw)
	p.stageDone(StageClassify, start)

	start = time.Now()
	outcome := p.scorer.Score(ctx, thesis.Input{
		SignalType:     cls.SignalType,
		Summary:        cls.Summary,
		ProblemSummary: cls.ProblemSummary,
		Industry:       cls.Industry,
		DemandEvidence: cls.DemandEvidenceLevel,
		Entities:       cls.Entities,
		Keywords:       cls.Keywords,
		Content:        string(raw.RawContent),
	})
	p.stageDone(StageScore, start)

	start = time.Now()
	vec := p.embedder.Embed(ctx, EmbeddingText(cls))
	p.stageDone(StageEmbed, start)

	start = time.Now()
	recent, err := p.store.FetchRecentEmbeddings(ctx, now.Add(-p.cfg.NoveltyWindow), p.cfg.NoveltyLimit)
	if err != nil {
		return model.ProcessedSignal{}, &StageError{Stage: StageNovelty, Err: err}
	}
	history := make([][]float64, 0, len(recent))
	for _, r := range recent {
		if opts.id != "" && r.SignalID == opts.id {
			continue
		}
		history = append(history, r.Vector)
	}
	novelty := similarity.Novelty(vec, history, p.cfg.NoveltyThreshold)
	p.stageDone(StageNovelty, start)

	if opts.recordMentions {
		for _, kw := range cls.Keywords {
			p.tracker.Record(kw, now)
		}
	}
	vel := 0.0
	if len(cls.Keywords) > 0 {
		for _, kw := range cls.Keywords {
			vel += p.tracker.Score(kw)
		}
		vel /= float64(len(cls.Keywords))
	}

	id := opts.id
	if id == "" {
		id = p.newID()
	}
	out := model.ProcessedSignal{
		ID:                  id,
		RawSignalID:         raw.ID,
		SignalType:          cls.SignalType,
		SignalSubtype:       cls.SignalSubtype,
		Title:               cls.Title,
		Summary:             cls.Summary,
		ProblemSummary:      cls.ProblemSummary,
		Industry:            cls.Industry,
		DemandEvidenceLevel: cls.DemandEvidenceLevel,
		Entities:            cls.Entities,
		Keywords:            cls.Keywords,
		Scores:              outcome.Scores(),
		ThesisReasoning:     outcome.Reasoning(),
		NoveltyScore:        novelty,
		VelocityScore:       vel,
		TimingStage:         InferTimingStage(novelty, vel),
		Embedding:           vec,
		ProcessedAt:         now,
	}
	if d, ok := thesis.IsDisqualified(outcome); ok {
		out.IsDisqualified = true
		out.DisqualificationReason = d.Reason
	}
	return out, nil
}

// ProcessSignal enriches raw and persists the result in one write.
func (p *Pipeline) ProcessSignal(ctx context.Context, raw model.RawSignal) (rec *model.ProcessedSignal, err error) {
	ctx, span := tracer.Start(ctx, "pipeline.process_signal")
	span.SetAttributes(attribute.String("raw_signal_id", raw.ID), attribute.String("source_type", raw.SourceType))
	defer func() {
		if r := recover(); r != nil {
			rec, err = nil, &StageError{Stage: "panic", Err: fmt.Errorf("%v", r)}
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	enriched, err := p.enrich(ctx, raw, enrichOptions{recordMentions: true})
	if err != nil {
		return nil, err
	}
	start := time.Now()
	if err := p.store.InsertProcessedSignal(ctx, &enriched); err != nil {
		return nil, &StageError{Stage: StagePersist, Err: err}
	}
	p.stageDone(StagePersist, start)
	span.SetAttributes(attribute.Bool("disqualified", enriched.IsDisqualified))
	return &enriched, nil
}

func (p *Pipeline) stageDone(stage string, start time.Time) {
	if p.observer != nil {
		p.observer.ObserveStage(stage, time.Since(start))
	}
}
