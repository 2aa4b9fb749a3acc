package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/joelkehle/opportunity-radar/internal/logging"
	"github.com/joelkehle/opportunity-radar/internal/retry"
)

var ErrEmptyResponse = errors.New("empty response")

// OutputError reports model output that could not be decoded. It is never
// retried.
type OutputError struct {
	Stage string
	Raw   string
	Err   error
}

func (e *OutputError) Error() string {
	return fmt.Sprintf("%s: malformed model output: %v", e.Stage, e.Err)
}

func (e *OutputError) Unwrap() error { return e.Err }

// IsOutputError reports whether err came from undecodable model output.
func IsOutputError(err error) bool {
	var oe *OutputError
	return errors.As(err, &oe)
}

// Observer receives one event per stage run.
type Observer interface {
	ObserveLLMCall(stage, outcome string, elapsed time.Duration)
}

// Executor runs a prompt as a named stage: transport failures are retried
// under the retry policy, the reply is unwrapped from any markdown fence and
// decoded into out.
type Executor struct {
	caller   Caller
	retrier  *retry.Retrier
	log      logrus.FieldLogger
	observer Observer
}

func NewExecutor(caller Caller, log logrus.FieldLogger) *Executor {
	log = logging.OrDiscard(log)
	return &Executor{caller: caller, retrier: retry.New(retry.DefaultPolicy, log), log: log}
}

// WithObserver sets the stage observer and returns e.
func (e *Executor) WithObserver(o Observer) *Executor {
	e.observer = o
	return e
}

// WithRetrier replaces the transport retrier and returns e.
func (e *Executor) WithRetrier(r *retry.Retrier) *Executor {
	e.retrier = r
	return e
}

func (e *Executor) ModelName() string {
	if e == nil || e.caller == nil {
		return ""
	}
	return e.caller.ModelName()
}

// Run sends prompt and decodes the JSON object reply into out.
func (e *Executor) Run(ctx context.Context, stage, prompt string, out any) error {
	start := time.Now()
	log := e.log.WithField("stage", stage)
	log.WithField("prompt_chars", len(prompt)).Debug("llm call_start")

	var raw string
	err := e.retrier.Do(ctx, stage, func(ctx context.Context) error {
		var cerr error
		raw, cerr = e.caller.GenerateJSON(ctx, prompt)
		return cerr
	})
	if err != nil {
		e.observe(stage, "transport_error", start)
		log.WithError(err).Warn("llm transport_failure")
		return fmt.Errorf("%s transport failure: %w", stage, err)
	}

	if err := decodeJSON(raw, out); err != nil {
		e.observe(stage, "malformed", start)
		log.WithError(err).WithField("raw", truncateRaw(raw)).Warn("llm malformed_output")
		return &OutputError{Stage: stage, Raw: raw, Err: err}
	}
	e.observe(stage, "ok", start)
	log.WithFields(logrus.Fields{
		"elapsed_ms":     time.Since(start).Milliseconds(),
		"response_chars": len(raw),
	}).Debug("llm call_success")
	return nil
}

func (e *Executor) observe(stage, outcome string, start time.Time) {
	if e.observer != nil {
		e.observer.ObserveLLMCall(stage, outcome, time.Since(start))
	}
}

func decodeJSON(raw string, out any) error {
	clean := extractJSONObject(raw)
	if clean == "" {
		return ErrEmptyResponse
	}
	if !strings.HasPrefix(clean, "{") {
		return errors.New("expected a JSON object")
	}
	return json.Unmarshal([]byte(clean), out)
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		parts := strings.SplitN(s, "\n", 2)
		if len(parts) == 2 {
			s = parts[1]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
	}
	return s
}

// extractJSONObject strips a fence and, when prose surrounds the object,
// keeps the outermost braces.
func extractJSONObject(s string) string {
	s = stripCodeFences(s)
	if s == "" || strings.HasPrefix(s, "{") {
		return s
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

func truncateRaw(s string) string {
	const max = 500
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
