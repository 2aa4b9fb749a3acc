// Package scheduler runs the radar's recurring jobs on cron expressions.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/joelkehle/opportunity-radar/internal/logging"
)

// Job names double as metric labels.
const (
	JobWeeklyCollection   = "weekly_collection"
	JobMonthlyCollection  = "monthly_collection"
	JobDailyProcessing    = "daily_processing"
	JobWeeklyAnalysis     = "weekly_analysis"
	JobWeeklyDigest       = "weekly_digest"
	JobMonthlyDigest      = "monthly_digest"
	JobAnomalyCheck       = "anomaly_check"
	JobQuarterlySynthesis = "quarterly_synthesis"
)

// Specs holds one standard five-field cron expression per job. An empty
// expression disables the job.
type Specs struct {
	WeeklyCollection   string `yaml:"weekly_collection"`
	MonthlyCollection  string `yaml:"monthly_collection"`
	DailyProcessing    string `yaml:"daily_processing"`
	WeeklyAnalysis     string `yaml:"weekly_analysis"`
	WeeklyDigest       string `yaml:"weekly_digest"`
	MonthlyDigest      string `yaml:"monthly_digest"`
	AnomalyCheck       string `yaml:"anomaly_check"`
	QuarterlySynthesis string `yaml:"quarterly_synthesis"`
}

func DefaultSpecs() Specs {
	return Specs{
		WeeklyCollection:   "0 6 * * 1",
		MonthlyCollection:  "0 6 1 * *",
		DailyProcessing:    "0 7 * * *",
		WeeklyAnalysis:     "0 8 * * 1",
		WeeklyDigest:       "0 9 * * 1",
		MonthlyDigest:      "0 9 1 * *",
		AnomalyCheck:       "0 10 * * *",
		QuarterlySynthesis: "0 8 15 1,4,7,10 *",
	}
}

// WithDefaults returns s with every empty expression replaced by its
// default. Use "-" in config to disable a job.
func (s Specs) WithDefaults() Specs {
	def := DefaultSpecs()
	pick := func(v, d string) string {
		if v == "" {
			return d
		}
		return v
	}
	return Specs{
		WeeklyCollection:   pick(s.WeeklyCollection, def.WeeklyCollection),
		MonthlyCollection:  pick(s.MonthlyCollection, def.MonthlyCollection),
		DailyProcessing:    pick(s.DailyProcessing, def.DailyProcessing),
		WeeklyAnalysis:     pick(s.WeeklyAnalysis, def.WeeklyAnalysis),
		WeeklyDigest:       pick(s.WeeklyDigest, def.WeeklyDigest),
		MonthlyDigest:      pick(s.MonthlyDigest, def.MonthlyDigest),
		AnomalyCheck:       pick(s.AnomalyCheck, def.AnomalyCheck),
		QuarterlySynthesis: pick(s.QuarterlySynthesis, def.QuarterlySynthesis),
	}
}

// ByJob maps job names to their expressions.
func (s Specs) ByJob() map[string]string {
	return map[string]string{
		JobWeeklyCollection:   s.WeeklyCollection,
		JobMonthlyCollection:  s.MonthlyCollection,
		JobDailyProcessing:    s.DailyProcessing,
		JobWeeklyAnalysis:     s.WeeklyAnalysis,
		JobWeeklyDigest:       s.WeeklyDigest,
		JobMonthlyDigest:      s.MonthlyDigest,
		JobAnomalyCheck:       s.AnomalyCheck,
		JobQuarterlySynthesis: s.QuarterlySynthesis,
	}
}

const disabled = "-"

type Job func(ctx context.Context) error

// ResultFn is told the outcome of every job run.
type ResultFn func(job string, err error)

type Scheduler struct {
	cron     *cron.Cron
	log      logrus.FieldLogger
	timeout  time.Duration
	onResult ResultFn
	base     context.Context
	names    map[cron.EntryID]string
}

type Option func(*Scheduler)

// WithJobTimeout bounds every job run.
func WithJobTimeout(d time.Duration) Option { return func(s *Scheduler) { s.timeout = d } }

func WithResult(fn ResultFn) Option { return func(s *Scheduler) { s.onResult = fn } }

// WithLocation evaluates expressions in loc instead of local time.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) { s.cron = newCron(s.log, loc) }
}

func New(log logrus.FieldLogger, opts ...Option) *Scheduler {
	log = logging.OrDiscard(log)
	s := &Scheduler{log: log, timeout: 2 * time.Hour, base: context.Background(), names: map[cron.EntryID]string{}}
	s.cron = newCron(log, time.Local)
	for _, o := range opts {
		o(s)
	}
	return s
}

func newCron(log logrus.FieldLogger, loc *time.Location) *cron.Cron {
	cl := cronLogger{log}
	return cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
}

// Add schedules job under name. A spec of "-" skips the job.
func (s *Scheduler) Add(name, spec string, job Job) error {
	if spec == disabled {
		s.log.WithField("job", name).Info("job disabled")
		return nil
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("job %s: invalid cron spec %q: %w", name, spec, err)
	}
	id, err := s.cron.AddFunc(spec, func() { s.runJob(name, job) })
	if err != nil {
		return err
	}
	s.names[id] = name
	return nil
}

// AddAll schedules every job in jobs with its expression from specs.
// Jobs without an expression are reported.
func (s *Scheduler) AddAll(specs Specs, jobs map[string]Job) error {
	byJob := specs.ByJob()
	for name, job := range jobs {
		spec, ok := byJob[name]
		if !ok || spec == "" {
			return fmt.Errorf("job %s: no schedule", name)
		}
		if err := s.Add(name, spec, job); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) runJob(name string, job Job) {
	ctx, cancel := context.WithTimeout(s.base, s.timeout)
	defer cancel()
	log := s.log.WithField("job", name)
	start := time.Now()
	log.Info("job started")
	err := job(ctx)
	if s.onResult != nil {
		s.onResult(name, err)
	}
	if err != nil {
		log.WithError(err).Error("job failed")
		return
	}
	log.WithField("elapsed_ms", time.Since(start).Milliseconds()).Info("job complete")
}

// Len is the number of scheduled jobs.
func (s *Scheduler) Len() int { return len(s.cron.Entries()) }

type Upcoming struct {
	Job  string
	Next time.Time
}

// Upcoming lists the next activation of every job, soonest first. Next is
// zero until the scheduler has started.
func (s *Scheduler) Upcoming() []Upcoming {
	var out []Upcoming
	for _, e := range s.cron.Entries() {
		out = append(out, Upcoming{Job: s.names[e.ID], Next: e.Next})
	}
	return out
}

// Run starts the scheduler and blocks until ctx is done, then waits for
// running jobs to return. Job contexts derive from ctx.
func (s *Scheduler) Run(ctx context.Context) {
	s.base = ctx
	s.cron.Start()
	s.log.WithField("jobs", s.Len()).Info("scheduler started")
	for _, u := range s.Upcoming() {
		s.log.WithFields(logrus.Fields{"job": u.Job, "next": u.Next.Format(time.RFC3339)}).Info("job scheduled")
	}
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

type cronLogger struct{ log logrus.FieldLogger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.WithFields(fields(kv)).Debug("cron " + msg)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.WithError(err).WithFields(fields(kv)).Error("cron " + msg)
}

func fields(kv []any) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return f
}
