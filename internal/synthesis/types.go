package synthesis

import (
	"time"

	"github.com/joelkehle/opportunity-radar/internal/model"
)

type Period string

const (
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
)

// Days is the trailing window a period covers.
func (p Period) Days() int {
	if p == Monthly {
		return 30
	}
	return 7
}

type DigestInput struct {
	Signals       []model.ProcessedSignal
	Patterns      []model.Pattern
	Opportunities []model.Opportunity
}

type BuildReadyIdea struct {
	Name           string `json:"name"`
	OneLiner       string `json:"one_liner"`
	WhyHighScore   string `json:"why_high_score"`
	DemandEvidence string `json:"demand_evidence"`
	BuildTime      string `json:"build_time"`
	FirstStep      string `json:"first_step"`
}

type Trend struct {
	Trend    string `json:"trend"`
	Niche    string `json:"niche"`
	Timeline string `json:"timeline"`
}

type PassItem struct {
	Idea   string `json:"idea"`
	Reason string `json:"reason"`
}

type PatternSummary struct {
	Title     string `json:"title"`
	Summary   string `json:"summary"`
	Relevance string `json:"relevance"`
}

type OpportunitySummary struct {
	Title   string `json:"title"`
	Verdict string `json:"verdict"`
	Summary string `json:"summary"`
	Action  string `json:"action"`
}

type VelocityAlert struct {
	Topic       string  `json:"topic"`
	Velocity    float64 `json:"velocity"`
	Implication string  `json:"implication"`
}

type Digest struct {
	Period                  Period    `json:"period"`
	GeneratedAt             time.Time `json:"generated_at"`
	SignalsProcessed        int       `json:"signals_processed"`
	SignalsDisqualified     int       `json:"signals_disqualified"`
	PatternsDetected        int       `json:"patterns_detected"`
	OpportunitiesIdentified int       `json:"opportunities_identified"`
	Error                   string    `json:"error,omitempty"`

	Headline             string               `json:"headline"`
	TopBuildReadyIdeas   []BuildReadyIdea     `json:"top_build_ready_ideas"`
	EmergingTrends       []Trend              `json:"emerging_trends"`
	PassList             []PassItem           `json:"pass_list"`
	ThisWeekAction       string               `json:"this_week_action"`
	KeyInsight           string               `json:"key_insight"`
	RecommendedActions   []string             `json:"recommended_actions"`
	PatternSummaries     []PatternSummary     `json:"pattern_summaries"`
	OpportunitySummaries []OpportunitySummary `json:"opportunity_summaries"`
	VelocityAlerts       []VelocityAlert      `json:"velocity_alerts"`
	OverallAssessment    string               `json:"overall_assessment"`
}

type Statistics struct {
	Signals             int `json:"signals"`
	SignalsDisqualified int `json:"signals_disqualified"`
	Patterns            int `json:"patterns"`
	Opportunities       int `json:"opportunities"`
}

type MacroTrends struct {
	BigShifts             []string `json:"big_shifts"`
	GrowingNiches         []string `json:"growing_niches"`
	DecliningAreas        []string `json:"declining_areas"`
	EmergingOpportunities []string `json:"emerging_opportunities"`
}

type ThesisValidation struct {
	BestPerformingFactor string `json:"best_performing_factor"`
	WeakestFactor        string `json:"weakest_factor"`
	SuggestedFocus       string `json:"suggested_focus"`
}

type RankedOpportunity struct {
	Rank              int    `json:"rank"`
	Title             string `json:"title"`
	Verdict           string `json:"verdict"`
	WhyTop            string `json:"why_top"`
	RecommendedAction string `json:"recommended_action"`
}

type BuildNowCandidates struct {
	ReadyToBuild        []string `json:"ready_to_build"`
	NeedsMoreValidation []string `json:"needs_more_validation"`
}

type NichesToWatch struct {
	HeatingUp   []string `json:"heating_up"`
	CoolingDown []string `json:"cooling_down"`
	StayAway    []string `json:"stay_away"`
}

type BlindSpots struct {
	MightBeMissing      []string `json:"might_be_missing"`
	SourcesToAdd        []string `json:"sources_to_add"`
	NichesUnderexplored []string `json:"niches_underexplored"`
}

type RecommendedFocus struct {
	NextQuarterFocus []string `json:"next_quarter_focus"`
	IdeasToValidate  []string `json:"ideas_to_validate"`
	SignalsToTrack   []string `json:"signals_to_track"`
}

type Quarterly struct {
	Quarter     string     `json:"quarter"`
	GeneratedAt time.Time  `json:"generated_at"`
	Statistics  Statistics `json:"statistics"`
	Error       string     `json:"error,omitempty"`

	MacroTrends        MacroTrends         `json:"macro_trends"`
	ThesisValidation   ThesisValidation    `json:"thesis_validation"`
	TopOpportunities   []RankedOpportunity `json:"top_opportunities"`
	BuildNowCandidates BuildNowCandidates  `json:"build_now_candidates"`
	NichesToWatch      NichesToWatch       `json:"niches_to_watch"`
	BlindSpots         BlindSpots          `json:"blind_spots"`
	RecommendedFocus   RecommendedFocus    `json:"recommended_focus"`
}

// FactorStats summarises one thesis factor over a set of signals.
type FactorStats struct {
	Count     int     `json:"count"`
	Avg       float64 `json:"avg"`
	HighCount int     `json:"high_count"`
}
