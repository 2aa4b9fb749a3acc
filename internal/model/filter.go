package model

import "time"

// SignalFilter selects processed signals. Zero fields do not filter.
type SignalFilter struct {
	Since      time.Time
	SignalType SignalType
	// MinScore keeps signals with at least one thesis factor >= MinScore.
	MinScore            int
	ExcludeDisqualified bool
	Limit               int
}

type PatternFilter struct {
	Status   PatternStatus
	Type     PatternType
	MinScore float64
	Since    time.Time
	Limit    int
}

type OpportunityFilter struct {
	Status      OpportunityStatus
	TimingStage TimingStage
	Since       time.Time
	Limit       int
}

// SignalEmbedding is a stored vector with the signal it belongs to.
type SignalEmbedding struct {
	SignalID string
	Vector   []float64
}
