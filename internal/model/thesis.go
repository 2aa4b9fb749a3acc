package model

// Factor is one of the six fixed thesis dimensions.
type Factor string

const (
	FactorDemandEvidence       Factor = "demand_evidence"
	FactorCompetitionGap       Factor = "competition_gap"
	FactorTrendTiming          Factor = "trend_timing"
	FactorSoloBuildability     Factor = "solo_buildability"
	FactorClearMonetisation    Factor = "clear_monetisation"
	FactorRegulatorySimplicity Factor = "regulatory_simplicity"
)

// Factors is the canonical factor order. Ties and rendering follow it.
var Factors = []Factor{
	FactorDemandEvidence,
	FactorCompetitionGap,
	FactorTrendTiming,
	FactorSoloBuildability,
	FactorClearMonetisation,
	FactorRegulatorySimplicity,
}

const (
	MinFactorScore = 1
	MaxFactorScore = 10
)

// ThesisScores maps a factor to its 1-10 score. A missing key is an absent
// score, never zero.
type ThesisScores map[Factor]int

func (s ThesisScores) Get(f Factor) (int, bool) {
	v, ok := s[f]
	return v, ok
}

func (s ThesisScores) Present() int { return len(s) }

// AnyAtLeast reports whether any present score is at least min.
func (s ThesisScores) AnyAtLeast(min int) bool {
	for _, v := range s {
		if v >= min {
			return true
		}
	}
	return false
}

func (s ThesisScores) Clone() ThesisScores {
	if s == nil {
		return nil
	}
	out := make(ThesisScores, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// AllOnes is the score vector carried by disqualified records.
func AllOnes() ThesisScores {
	out := make(ThesisScores, len(Factors))
	for _, f := range Factors {
		out[f] = MinFactorScore
	}
	return out
}

// ClampScore bounds a factor score to [1,10].
func ClampScore(v int) int {
	if v < MinFactorScore {
		return MinFactorScore
	}
	if v > MaxFactorScore {
		return MaxFactorScore
	}
	return v
}

// AggregatedScores is the per-factor mean across a group of records.
type AggregatedScores map[Factor]float64

// AggregateScores averages each factor over the records that carry it.
// Factors no record carries are left out.
func AggregateScores(signals []ProcessedSignal) AggregatedScores {
	sums := map[Factor]int{}
	counts := map[Factor]int{}
	for _, s := range signals {
		for f, v := range s.Scores {
			sums[f] += v
			counts[f]++
		}
	}
	out := AggregatedScores{}
	for _, f := range Factors {
		if n := counts[f]; n > 0 {
			out[f] = float64(sums[f]) / float64(n)
		}
	}
	return out
}

// Primary returns the strongest factor. Absent factors compare as 0 and ties
// go to the earliest factor in canonical order.
func (a AggregatedScores) Primary() Factor {
	best := Factors[0]
	bestVal := a[best]
	for _, f := range Factors[1:] {
		if v := a[f]; v > bestVal {
			best, bestVal = f, v
		}
	}
	return best
}

// Primary returns the strongest factor of a single score vector, with the same
// tie rules as AggregatedScores.Primary.
func (s ThesisScores) Primary() Factor {
	agg := make(AggregatedScores, len(s))
	for f, v := range s {
		agg[f] = float64(v)
	}
	return agg.Primary()
}
