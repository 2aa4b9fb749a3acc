// Package collector gathers raw signals from external sources and records
// a collection run for each attempt.
package collector

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/joelkehle/opportunity-radar/internal/logging"
	"github.com/joelkehle/opportunity-radar/internal/model"
)

// Source categories describe what a collector tends to observe.
const (
	CategoryBuilder    = "builder"
	CategoryDemand     = "demand"
	CategoryTrend      = "trend"
	CategoryCompetitor = "competition"
)

const geographyGlobal = "global"

type Collector interface {
	Name() string
	Category() string
	Collect(ctx context.Context) ([]model.RawSignal, error)
}

type Store interface {
	InsertRawSignals(ctx context.Context, rs []model.RawSignal) (int, error)
	StartCollectionRun(ctx context.Context, collector string) (*model.CollectionRun, error)
	FinishCollectionRun(ctx context.Context, run *model.CollectionRun, count int, runErr error) error
}

var ErrUnknownCollector = errors.New("unknown collector")

// Registry runs the registered collectors and stores what they return.
type Registry struct {
	store      Store
	log        logrus.FieldLogger
	collectors map[string]Collector
}

func NewRegistry(store Store, log logrus.FieldLogger) *Registry {
	return &Registry{store: store, log: logging.OrDiscard(log), collectors: map[string]Collector{}}
}

// Register adds c, replacing any collector with the same name.
func (r *Registry) Register(c Collector) {
	r.collectors[c.Name()] = c
}

// Names returns the registered collector names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.collectors))
	for n := range r.collectors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Run collects from the named collector and stores the signals.
func (r *Registry) Run(ctx context.Context, name string) (int, error) {
	c, ok := r.collectors[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCollector, name)
	}
	log := r.log.WithFields(logrus.Fields{"collector": name, "category": c.Category()})
	run, err := r.store.StartCollectionRun(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("start collection run: %w", err)
	}
	log.Info("collection started")

	n, err := r.collect(ctx, c)
	if ferr := r.store.FinishCollectionRun(ctx, run, n, err); ferr != nil {
		log.WithError(ferr).Warn("finish collection run")
	}
	if err != nil {
		log.WithError(err).Error("collection failed")
		return 0, err
	}
	log.WithField("signals", n).Info("collection complete")
	return n, nil
}

func (r *Registry) collect(ctx context.Context, c Collector) (int, error) {
	signals, err := c.Collect(ctx)
	if err != nil {
		return 0, err
	}
	for i := range signals {
		if signals[i].SourceCategory == "" {
			signals[i].SourceCategory = c.Category()
		}
	}
	n, err := r.store.InsertRawSignals(ctx, signals)
	if err != nil {
		return 0, fmt.Errorf("store signals: %w", err)
	}
	return n, nil
}

// RunAll runs every collector. A failed collector maps to -1 and does not
// stop the others.
func (r *Registry) RunAll(ctx context.Context) map[string]int {
	return r.runWhere(ctx, func(Collector) bool { return true })
}

func (r *Registry) RunCategory(ctx context.Context, category string) map[string]int {
	return r.runWhere(ctx, func(c Collector) bool { return c.Category() == category })
}

func (r *Registry) runWhere(ctx context.Context, keep func(Collector) bool) map[string]int {
	out := map[string]int{}
	for _, name := range r.Names() {
		if ctx.Err() != nil {
			break
		}
		if !keep(r.collectors[name]) {
			continue
		}
		n, err := r.Run(ctx, name)
		if err != nil {
			n = -1
		}
		out[name] = n
	}
	return out
}
