package retry

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/joelkehle/opportunity-radar/internal/logging"
)

// Policy bounds the attempts of one operation. Delays[i] is the pause after
// attempt i+1; the last delay repeats when there are more attempts than delays.
type Policy struct {
	MaxAttempts int
	Delays      []time.Duration
}

var DefaultPolicy = Policy{
	MaxAttempts: 3,
	Delays:      []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second},
}

func (p Policy) delay(attempt int) time.Duration {
	if len(p.Delays) == 0 {
		return 0
	}
	if attempt-1 < len(p.Delays) {
		return p.Delays[attempt-1]
	}
	return p.Delays[len(p.Delays)-1]
}

// Sleeper pauses for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Retrier runs operations under a Policy.
type Retrier struct {
	Policy Policy
	Sleep  Sleeper
	Log    logrus.FieldLogger
}

func New(policy Policy, log logrus.FieldLogger) *Retrier {
	return &Retrier{Policy: policy, Sleep: Sleep, Log: logging.OrDiscard(log)}
}

// Do calls fn until it succeeds, returns a non-retryable error, or the
// attempts run out. The last error is returned.
func (r *Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := r.Policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		class := Classify(err)
		r.logger().WithFields(logrus.Fields{
			"op":      op,
			"attempt": attempt,
			"class":   class.String(),
		}).WithError(err).Warn("transport attempt failed")
		if !class.Retryable() || attempt == attempts {
			return err
		}
		if serr := sleep(ctx, r.Policy.delay(attempt)); serr != nil {
			return err
		}
	}
	return err
}

func (r *Retrier) logger() logrus.FieldLogger {
	return logging.OrDiscard(r.Log)
}
