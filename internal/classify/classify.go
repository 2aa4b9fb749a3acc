// Package classify labels raw signals with a type, industry, problem
// statement and demand level. Classification never fails: when the model
// call or its output is unusable a deterministic fallback is returned.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/joelkehle/opportunity-radar/internal/llm"
	"github.com/joelkehle/opportunity-radar/internal/logging"
	"github.com/joelkehle/opportunity-radar/internal/model"
)

const (
	stageName       = "classify"
	maxContentChars = 10000
	maxTitleRunes   = 200
)

type Classification struct {
	SignalType          model.SignalType
	SignalSubtype       string
	Title               string
	Summary             string
	ProblemSummary      string
	Industry            string
	DemandEvidenceLevel model.DemandLevel
	Entities            model.Entities
	Keywords            []string
	// Fallback is set when the result did not come from the model.
	Fallback bool
}

type Classifier struct {
	exec *llm.Executor
	log  logrus.FieldLogger
}

func New(exec *llm.Executor, log logrus.FieldLogger) *Classifier {
	return &Classifier{exec: exec, log: logging.OrDiscard(log)}
}

type response struct {
	SignalType          string         `json:"signal_type"`
	SignalSubtype       string         `json:"signal_subtype"`
	Industry            string         `json:"industry"`
	ProblemSummary      string         `json:"problem_summary"`
	DemandEvidenceLevel string         `json:"demand_evidence_level"`
	Summary             string         `json:"summary"`
	Entities            model.Entities `json:"entities"`
	Keywords            []string       `json:"keywords"`
}

func (c *Classifier) Classify(ctx context.Context, raw model.RawSignal) Classification {
	prompt := fmt.Sprintf(classificationPrompt, raw.SourceType, raw.SourceCategory, ContentForPrompt(raw.RawContent, maxContentChars))
	var resp response
	if err := c.exec.Run(ctx, stageName, prompt, &resp); err != nil {
		c.log.WithError(err).WithField("raw_signal_id", raw.ID).Warn("classification fallback")
		return Fallback(raw)
	}
	return normalize(resp, c.log)
}

func normalize(r response, log logrus.FieldLogger) Classification {
	st := model.SignalType(strings.TrimSpace(r.SignalType))
	if !st.Valid() {
		if st != "" {
			log.WithField("signal_type", st).Warn("invalid signal type, using trend")
		}
		st = model.SignalTrend
	}
	level := model.DemandLevel(strings.ToLower(strings.TrimSpace(r.DemandEvidenceLevel)))
	if !level.Valid() {
		level = model.DemandNone
	}
	return Classification{
		SignalType:          st,
		SignalSubtype:       strings.TrimSpace(r.SignalSubtype),
		Title:               model.Truncate(r.Summary, maxTitleRunes),
		Summary:             r.Summary,
		ProblemSummary:      r.ProblemSummary,
		Industry:            strings.TrimSpace(r.Industry),
		DemandEvidenceLevel: level,
		Entities: model.Entities{
			Companies:    cleanList(r.Entities.Companies),
			Technologies: cleanList(r.Entities.Technologies),
			Industries:   cleanList(r.Entities.Industries),
			Locations:    cleanList(r.Entities.Locations),
		},
		Keywords: cleanList(r.Keywords),
	}
}

// Fallback is the classification used when the model cannot be used.
func Fallback(raw model.RawSignal) Classification {
	return Classification{
		SignalType:          model.SignalTrend,
		SignalSubtype:       "unknown",
		Title:               "Signal from " + raw.SourceType,
		Summary:             "Unclassified signal from " + raw.SourceType,
		DemandEvidenceLevel: model.DemandNone,
		Entities:            model.Entities{Companies: []string{}, Technologies: []string{}, Industries: []string{}, Locations: []string{}},
		Keywords:            []string{},
		Fallback:            true,
	}
}

// ContentForPrompt renders a payload as indented JSON cut to max runes.
func ContentForPrompt(raw json.RawMessage, max int) string {
	if len(raw) == 0 {
		return "{}"
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return model.Truncate(string(raw), max)
	}
	return model.Truncate(buf.String(), max)
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
