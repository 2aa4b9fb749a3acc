package thesis

import "github.com/joelkehle/opportunity-radar/internal/model"

// Outcome is the result of scoring one signal: either Scored or Disqualified.
type Outcome interface {
	Scores() model.ThesisScores
	Reasoning() string
	outcome()
}

// Scored carries the factor scores the model returned. Missing factors are
// absent; a degraded call yields an empty vector.
type Scored struct {
	Vector model.ThesisScores
	Notes  string
}

func (s Scored) Scores() model.ThesisScores { return s.Vector.Clone() }
func (s Scored) Reasoning() string          { return s.Notes }
func (Scored) outcome()                     {}

type Source string

const (
	SourceIndustryList Source = "industry_list"
	SourceModel        Source = "model"
)

// Disqualified rejects a signal. Its score vector is always all ones.
type Disqualified struct {
	Reason string
	Notes  string
	Source Source
}

func (Disqualified) Scores() model.ThesisScores { return model.AllOnes() }
func (d Disqualified) Reasoning() string        { return d.Notes }
func (Disqualified) outcome()                   {}

// IsDisqualified returns the disqualification, if o is one.
func IsDisqualified(o Outcome) (Disqualified, bool) {
	d, ok := o.(Disqualified)
	return d, ok
}
