package thesis

import "github.com/joelkehle/opportunity-radar/internal/model"

// Weights are fixed per factor.
var Weights = map[model.Factor]float64{
	model.FactorDemandEvidence:       1.0,
	model.FactorCompetitionGap:       1.0,
	model.FactorTrendTiming:          0.8,
	model.FactorSoloBuildability:     1.0,
	model.FactorClearMonetisation:    1.0,
	model.FactorRegulatorySimplicity: 1.0,
}

// WeightedScore is sum(score*weight)/sum(weight) over present factors, and 0
// when none are present.
func WeightedScore(scores model.ThesisScores) float64 {
	var sum, weight float64
	for _, f := range model.Factors {
		v, ok := scores[f]
		if !ok {
			continue
		}
		w := Weights[f]
		sum += float64(v) * w
		weight += w
	}
	if weight == 0 {
		return 0
	}
	return sum / weight
}
