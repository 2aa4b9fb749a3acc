// Package model holds the records that flow through the radar: raw signals
// from collectors, processed signals from the pipeline, the patterns detected
// across them and the opportunities generated from patterns.
//
// References between records are by ID only.
package model

import (
	"encoding/json"
	"time"
)

type SignalType string

const (
	SignalDemand           SignalType = "demand_signal"
	SignalComplaint        SignalType = "complaint"
	SignalTrend            SignalType = "trend"
	SignalCompetitionIntel SignalType = "competition_intel"
	SignalMarketShift      SignalType = "market_shift"
	SignalBuilderActivity  SignalType = "builder_activity"
)

var SignalTypes = []SignalType{
	SignalDemand, SignalComplaint, SignalTrend,
	SignalCompetitionIntel, SignalMarketShift, SignalBuilderActivity,
}

func (t SignalType) Valid() bool {
	for _, v := range SignalTypes {
		if v == t {
			return true
		}
	}
	return false
}

type DemandLevel string

const (
	DemandHigh   DemandLevel = "high"
	DemandMedium DemandLevel = "medium"
	DemandLow    DemandLevel = "low"
	DemandNone   DemandLevel = "none"
)

func (d DemandLevel) Valid() bool {
	switch d {
	case DemandHigh, DemandMedium, DemandLow, DemandNone:
		return true
	}
	return false
}

type TimingStage string

const (
	TimingEarly    TimingStage = "early"
	TimingEmerging TimingStage = "emerging"
	TimingGrowing  TimingStage = "growing"
	TimingCrowded  TimingStage = "crowded"
)

func (t TimingStage) Valid() bool {
	switch t {
	case TimingEarly, TimingEmerging, TimingGrowing, TimingCrowded:
		return true
	}
	return false
}

type PatternType string

const (
	PatternConvergence   PatternType = "convergence"
	PatternVelocitySpike PatternType = "velocity_spike"
	PatternGap           PatternType = "gap"
)

type PatternStatus string

const (
	PatternNew           PatternStatus = "new"
	PatternReviewed      PatternStatus = "reviewed"
	PatternInvestigating PatternStatus = "investigating"
	PatternArchived      PatternStatus = "archived"
)

func (s PatternStatus) Valid() bool {
	switch s {
	case PatternNew, PatternReviewed, PatternInvestigating, PatternArchived:
		return true
	}
	return false
}

type OpportunityStatus string

const (
	OpportunityNew           OpportunityStatus = "new"
	OpportunityReviewing     OpportunityStatus = "reviewing"
	OpportunityInvestigating OpportunityStatus = "investigating"
	OpportunityPursuing      OpportunityStatus = "pursuing"
	OpportunityArchived      OpportunityStatus = "archived"
)

func (s OpportunityStatus) Valid() bool {
	switch s {
	case OpportunityNew, OpportunityReviewing, OpportunityInvestigating, OpportunityPursuing, OpportunityArchived:
		return true
	}
	return false
}

type Verdict string

const (
	VerdictBuildNow Verdict = "BUILD NOW"
	VerdictExplore  Verdict = "EXPLORE"
	VerdictMonitor  Verdict = "MONITOR"
	VerdictPass     Verdict = "PASS"
)

func (v Verdict) Valid() bool {
	switch v {
	case VerdictBuildNow, VerdictExplore, VerdictMonitor, VerdictPass:
		return true
	}
	return false
}

type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RawSignal is an immutable record produced by a collector. RawContent is the
// source specific payload.
type RawSignal struct {
	ID             string          `json:"id"`
	SourceType     string          `json:"source_type"`
	SourceCategory string          `json:"source_category"`
	SourceURL      string          `json:"source_url,omitempty"`
	RawContent     json.RawMessage `json:"raw_content"`
	SignalDate     *time.Time      `json:"signal_date,omitempty"`
	Geography      string          `json:"geography,omitempty"`
	CollectedAt    time.Time       `json:"collected_at"`
}

type Entities struct {
	Companies    []string `json:"companies"`
	Technologies []string `json:"technologies"`
	Industries   []string `json:"industries"`
	Locations    []string `json:"locations"`
}

// ProcessedSignal is derived from exactly one RawSignal by the pipeline.
// Disqualified signals always carry all six thesis scores set to 1.
type ProcessedSignal struct {
	ID          string `json:"id"`
	RawSignalID string `json:"raw_signal_id"`

	SignalType          SignalType  `json:"signal_type"`
	SignalSubtype       string      `json:"signal_subtype"`
	Title               string      `json:"title"`
	Summary             string      `json:"summary"`
	ProblemSummary      string      `json:"problem_summary"`
	Industry            string      `json:"industry"`
	DemandEvidenceLevel DemandLevel `json:"demand_evidence_level"`
	Entities            Entities    `json:"entities"`
	Keywords            []string    `json:"keywords"`

	Scores                 ThesisScores `json:"thesis_scores"`
	ThesisReasoning        string       `json:"thesis_reasoning"`
	IsDisqualified         bool         `json:"is_disqualified"`
	DisqualificationReason string       `json:"disqualification_reason,omitempty"`

	NoveltyScore  float64     `json:"novelty_score"`
	VelocityScore float64     `json:"velocity_score"`
	TimingStage   TimingStage `json:"timing_stage"`

	Embedding   []float64 `json:"-"`
	ProcessedAt time.Time `json:"processed_at"`
}

type Pattern struct {
	ID               string           `json:"id"`
	PatternType      PatternType      `json:"pattern_type"`
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	Hypothesis       string           `json:"hypothesis"`
	SignalIDs        []string         `json:"signal_ids"`
	Confidence       float64          `json:"confidence"`
	OpportunityScore float64          `json:"opportunity_score"`
	ThesisScores     AggregatedScores `json:"thesis_scores"`
	PrimaryThesis    Factor           `json:"primary_thesis_alignment"`
	TimingStage      TimingStage      `json:"timing_stage,omitempty"`
	TimingNarrative  string           `json:"timing_narrative,omitempty"`
	Status           PatternStatus    `json:"status"`
	Notes            string           `json:"notes,omitempty"`
	DetectedAt       time.Time        `json:"detected_at"`
	ReviewedAt       *time.Time       `json:"reviewed_at,omitempty"`
}

type Problem struct {
	Description      string `json:"description"`
	TargetCustomer   string `json:"target_customer"`
	CurrentSolutions string `json:"current_solutions"`
}

type Solution struct {
	Description     string   `json:"description"`
	CoreFeatures    []string `json:"core_features"`
	Differentiation string   `json:"differentiation"`
}

type DemandEvidence struct {
	Signals      []string `json:"signals"`
	QuotesOrData []string `json:"quotes_or_data"`
	Strength     string   `json:"strength"`
}

type Competition struct {
	Competitors []string `json:"competitors"`
	WhyBeatable string   `json:"why_beatable"`
	IfNoneWhy   string   `json:"if_none_why"`
}

type BuildAssessment struct {
	TechStack       string   `json:"tech_stack"`
	EstimatedTime   string   `json:"estimated_time"`
	Challenges      []string `json:"challenges"`
	CanShipIn4Weeks bool     `json:"can_ship_in_4_weeks"`
	Explanation     string   `json:"explanation"`
}

type Monetisation struct {
	Model       string `json:"model"`
	PricePoints string `json:"price_points"`
	WhoPays     string `json:"who_pays"`
}

type GoToMarket struct {
	CustomerChannels   []string `json:"customer_channels"`
	FirstTenCustomers  string   `json:"first_10_customers"`
	SEOPotential       string   `json:"seo_potential"`
	CommunityPotential string   `json:"community_potential"`
}

// Scoring is the opportunity level score table written by the generator.
type Scoring struct {
	Factors ThesisScores `json:"factors"`
	Overall int          `json:"overall_score"`
}

type Opportunity struct {
	ID        string `json:"id"`
	PatternID string `json:"pattern_id"`
	Title     string `json:"title"`
	OneLiner  string `json:"one_liner"`

	Problem        Problem         `json:"problem"`
	Solution       Solution        `json:"solution"`
	DemandEvidence DemandEvidence  `json:"demand_evidence"`
	Competition    Competition     `json:"competition"`
	Build          BuildAssessment `json:"build_assessment"`
	Monetisation   Monetisation    `json:"monetisation"`
	GoToMarket     GoToMarket      `json:"go_to_market"`
	Scoring        Scoring         `json:"scoring"`

	Verdict          Verdict     `json:"verdict"`
	VerdictReasoning string      `json:"verdict_reasoning"`
	FirstSteps       []string    `json:"first_steps"`
	OpportunityType  string      `json:"opportunity_type"`
	Industries       []string    `json:"industries"`
	Geographies      []string    `json:"geographies"`
	TimingStage      TimingStage `json:"timing_stage"`
	BuildComplexity  Complexity  `json:"build_complexity"`
	PrimaryThesis    Factor      `json:"primary_thesis_alignment"`
	Risks            []string    `json:"risks"`

	Status    OpportunityStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
}

type CollectionRun struct {
	ID               string     `json:"id"`
	CollectorName    string     `json:"collector_name"`
	Status           RunStatus  `json:"status"`
	SignalsCollected int        `json:"signals_collected"`
	Error            string     `json:"error,omitempty"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

type AnalysisRun struct {
	ID                 string     `json:"id"`
	RunType            string     `json:"run_type"`
	Status             RunStatus  `json:"status"`
	SignalsProcessed   int        `json:"signals_processed"`
	PatternsDetected   int        `json:"patterns_detected"`
	OpportunitiesFound int        `json:"opportunities_generated"`
	Error              string     `json:"error,omitempty"`
	StartedAt          time.Time  `json:"started_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

const (
	RunSignalProcessing = "signal_processing"
	RunPatternDetection = "pattern_detection"
	RunOpportunityGen   = "opportunity_generation"
	RunAnomalyDetection = "anomaly_detection"
	RunDigest           = "digest"
	RunQuarterly        = "quarterly_synthesis"
)
