// Package app builds every radar component once from configuration and
// exposes the batch jobs the CLI and the scheduler run.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	einoembed "github.com/cloudwego/eino/components/embedding"
	"github.com/sirupsen/logrus"

	"github.com/joelkehle/opportunity-radar/internal/alerts"
	"github.com/joelkehle/opportunity-radar/internal/classify"
	"github.com/joelkehle/opportunity-radar/internal/collector"
	"github.com/joelkehle/opportunity-radar/internal/config"
	"github.com/joelkehle/opportunity-radar/internal/embedding"
	"github.com/joelkehle/opportunity-radar/internal/httpapi"
	"github.com/joelkehle/opportunity-radar/internal/llm"
	"github.com/joelkehle/opportunity-radar/internal/logging"
	"github.com/joelkehle/opportunity-radar/internal/opportunity"
	"github.com/joelkehle/opportunity-radar/internal/patterns"
	"github.com/joelkehle/opportunity-radar/internal/pipeline"
	"github.com/joelkehle/opportunity-radar/internal/ratelimit"
	"github.com/joelkehle/opportunity-radar/internal/report"
	"github.com/joelkehle/opportunity-radar/internal/store"
	"github.com/joelkehle/opportunity-radar/internal/synthesis"
	"github.com/joelkehle/opportunity-radar/internal/telemetry"
	"github.com/joelkehle/opportunity-radar/internal/thesis"
	"github.com/joelkehle/opportunity-radar/internal/velocity"
)

// App owns the long-lived components.
type App struct {
	cfg config.Config
	log logrus.FieldLogger

	Store      *store.Store
	Metrics    *telemetry.Metrics
	Limits     *ratelimit.Registry
	Tracker    *velocity.Tracker
	Pipeline   *pipeline.Pipeline
	Patterns   *patterns.Orchestrator
	Generator  *opportunity.Generator
	Synthesis  *synthesis.Service
	Alerts     *alerts.System
	Collectors *collector.Registry
	PDF        *report.PDFRenderer

	shutdownTracing telemetry.ShutdownFunc
	warmOnce        sync.Once
	now             func() time.Time
}

type options struct {
	caller     llm.Caller
	embedder   einoembed.Embedder
	collectors []collector.Collector
	custom     bool
	storeOpts  []store.Option
}

type Option func(*options)

// WithCaller replaces the configured model provider.
func WithCaller(c llm.Caller) Option { return func(o *options) { o.caller = c } }

// WithEmbedder replaces the configured embedding provider.
func WithEmbedder(e einoembed.Embedder) Option { return func(o *options) { o.embedder = e } }

// WithCollectors replaces the configured collectors.
func WithCollectors(cs ...collector.Collector) Option {
	return func(o *options) { o.collectors, o.custom = cs, true }
}

func WithStoreOptions(opts ...store.Option) Option {
	return func(o *options) { o.storeOpts = append(o.storeOpts, opts...) }
}

// New opens the store and wires the components. Close releases them.
func New(ctx context.Context, cfg config.Config, log logrus.FieldLogger, opts ...Option) (*App, error) {
	log = logging.OrDiscard(log)
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	shutdown, err := telemetry.SetupTracing(ctx, cfg.Telemetry)
	if err != nil {
		return nil, err
	}
	limits := ratelimit.NewRegistry(cfg.Limits)
	paper, _ := report.LookupPaper(cfg.Report.Paper)
	metrics := telemetry.NewMetrics()

	if cfg.Database.Driver == store.DriverSQLite {
		if dir := filepath.Dir(cfg.Database.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
	}
	storeOpts := append([]store.Option{store.WithLimiter(limits.Get(ratelimit.ClassStore))}, o.storeOpts...)
	st, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, storeOpts...)
	if err != nil {
		return nil, err
	}

	caller := o.caller
	if caller == nil {
		caller, err = newCaller(ctx, cfg.LLM, limits)
		if err != nil {
			st.Close()
			return nil, err
		}
	}
	exec := llm.NewExecutor(caller, log.WithField("component", "llm")).WithObserver(metrics)

	emb := o.embedder
	if emb == nil && cfg.Embedding.APIKey != "" {
		oe, err := embedding.NewOpenAIEmbedder(cfg.Embedding.APIKey, cfg.Embedding.BaseURL, cfg.Embedding.Model)
		if err != nil {
			st.Close()
			return nil, err
		}
		emb = oe
	}
	if emb == nil {
		log.Warn("embedding disabled, no api key configured")
	}
	embedder := embedding.NewService(emb, log.WithField("component", "embedding"),
		embedding.WithLimiter(limits.Get(ratelimit.ClassOpenAI)),
		embedding.WithMaxChars(cfg.Embedding.MaxChars),
		embedding.WithBatchSize(cfg.Embedding.BatchSize),
	)

	tracker := velocity.NewTracker(velocity.WithBaseline(cfg.Pipeline.VelocityBaseline))
	pipe := pipeline.New(pipeline.Deps{
		Store:      st,
		Classifier: classify.New(exec, log.WithField("component", "classify")),
		Scorer:     thesis.NewScorer(exec, log.WithField("component", "thesis")),
		Embedder:   embedder,
		Tracker:    tracker,
		Log:        log.WithField("component", "pipeline"),
		Observer:   metrics,
	}, pipeline.Config{
		BatchDelay:    cfg.Pipeline.BatchDelay,
		NoveltyWindow: time.Duration(cfg.Pipeline.NoveltyWindowDays) * 24 * time.Hour,
		NoveltyLimit:  cfg.Pipeline.NoveltyLimit,
	})

	plog := log.WithField("component", "patterns")
	var timing *patterns.TimingAnalyzer
	if cfg.Patterns.Refine() {
		timing = patterns.NewTimingAnalyzer(exec, plog)
	}
	orch := patterns.NewOrchestrator(st, []patterns.Detector{
		patterns.NewConvergenceDetector(exec, plog),
		patterns.NewVelocitySpikeDetector(patterns.DefaultSpikeThreshold),
		patterns.NewGapDetector(exec, plog),
	}, timing, patterns.OrchestratorConfig{
		AnomalyDays:      cfg.Patterns.AnomalyDays,
		AnomalyThreshold: cfg.Patterns.AnomalyThreshold,
	}, plog)

	a := &App{
		cfg:             cfg,
		log:             log,
		Store:           st,
		Metrics:         metrics,
		Limits:          limits,
		Tracker:         tracker,
		Pipeline:        pipe,
		Patterns:        orch,
		Generator:       opportunity.NewGenerator(exec, st, log.WithField("component", "opportunity")),
		Synthesis:       synthesis.NewService(st, synthesis.NewSynthesizer(exec, log.WithField("component", "synthesis")), log),
		Alerts:          alerts.New(st, log.WithField("component", "alerts")),
		Collectors:      collector.NewRegistry(st, log.WithField("component", "collector")),
		PDF:             report.NewPDFRenderer(cfg.Report.ChromePath, paper),
		shutdownTracing: shutdown,
		now:             time.Now,
	}
	cs := o.collectors
	if !o.custom {
		cs = configuredCollectors(cfg.Collectors, &http.Client{Timeout: 30 * time.Second}, limits, log)
	}
	for _, c := range cs {
		a.Collectors.Register(c)
	}
	return a, nil
}

func newCaller(ctx context.Context, cfg config.LLM, limits *ratelimit.Registry) (llm.Caller, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		c, err := llm.NewChatModelCaller(ctx, llm.ChatModelConfig{
			APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model, MaxTokens: cfg.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		return llm.Limited{Caller: c, Limiter: limits.Get(ratelimit.ClassOpenAI)}, nil
	default:
		c, err := llm.NewAnthropicCaller(cfg.APIKey, cfg.Model, cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
		return llm.Limited{Caller: c, Limiter: limits.Get(ratelimit.ClassAnthropic)}, nil
	}
}

func configuredCollectors(cfg config.Collectors, client *http.Client, limits *ratelimit.Registry, log logrus.FieldLogger) []collector.Collector {
	clog := log.WithField("component", "collector")
	var cs []collector.Collector
	if cfg.HackerNews.Enabled {
		cs = append(cs, collector.NewHackerNews(client, limits.Get(ratelimit.ClassHackerNews), clog))
	}
	if cfg.GitHub.Enabled {
		cs = append(cs, collector.NewGitHub(collector.GitHubConfig{
			Token:      cfg.GitHub.Token,
			Languages:  cfg.GitHub.Languages,
			MinStars:   cfg.GitHub.MinStars,
			WindowDays: cfg.GitHub.WindowDays,
		}, limits.Get(ratelimit.ClassGitHub), clog))
	}
	if cfg.Articles.Enabled && len(cfg.Articles.URLs) > 0 {
		cs = append(cs, collector.NewArticles(client, cfg.Articles.URLs, limits.Get(ratelimit.ClassArticles), clog))
	}
	return cs
}

// Handler is the HTTP API including /metrics.
func (a *App) Handler() http.Handler {
	return httpapi.NewServer(httpapi.Deps{
		Store:    a.Store,
		Alerts:   a.Alerts,
		Keywords: a.Tracker,
		Metrics:  a.Metrics.Handler(),
		Log:      a.log.WithField("component", "httpapi"),
	})
}

// Close flushes traces and closes the store.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.shutdownTracing != nil {
		errs = append(errs, a.shutdownTracing(ctx))
	}
	errs = append(errs, a.Store.Close())
	return errors.Join(errs...)
}

func (a *App) Config() config.Config { return a.cfg }

// WarmVelocity seeds the keyword tracker from stored signals once per
// process.
func (a *App) WarmVelocity(ctx context.Context) {
	a.warmOnce.Do(func() {
		n, err := a.Pipeline.WarmVelocity(ctx)
		if err != nil {
			a.log.WithError(err).Warn("velocity warmup failed")
			return
		}
		a.log.WithField("records", n).Debug("velocity tracker warmed")
	})
}
