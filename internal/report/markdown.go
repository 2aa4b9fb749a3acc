// Package report renders digests, quarterly reviews and opportunities as
// markdown, HTML and PDF.
package report

import (
	"fmt"
	"strings"

	"github.com/joelkehle/opportunity-radar/internal/model"
	"github.com/joelkehle/opportunity-radar/internal/synthesis"
)

const dateLayout = "January 2, 2006"

func Digest(d *synthesis.Digest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s Digest\n\n", titleCase(string(d.Period)))
	fmt.Fprintf(&b, "_Generated %s_\n\n", d.GeneratedAt.Format(dateLayout))
	if d.Error != "" {
		fmt.Fprintf(&b, "> **%s.** The figures below come straight from the store.\n\n", d.Error)
	}
	fmt.Fprintf(&b, "## %s\n\n", d.Headline)

	b.WriteString("| Signals | Disqualified | Patterns | Opportunities |\n|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d |\n\n", d.SignalsProcessed, d.SignalsDisqualified, d.PatternsDetected, d.OpportunitiesIdentified)

	if len(d.TopBuildReadyIdeas) > 0 {
		b.WriteString("## Build-Ready Ideas\n\n")
		for i, idea := range d.TopBuildReadyIdeas {
			fmt.Fprintf(&b, "### %d. %s\n\n", i+1, idea.Name)
			if idea.OneLiner != "" {
				fmt.Fprintf(&b, "%s\n\n", idea.OneLiner)
			}
			field(&b, "Why it scores", idea.WhyHighScore)
			field(&b, "Demand evidence", idea.DemandEvidence)
			field(&b, "Build time", idea.BuildTime)
			field(&b, "First step", idea.FirstStep)
			b.WriteString("\n")
		}
	}

	if len(d.EmergingTrends) > 0 {
		b.WriteString("## Emerging Trends\n\n| Trend | Niche | Timeline |\n|---|---|---|\n")
		for _, t := range d.EmergingTrends {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", cell(t.Trend), cell(t.Niche), cell(t.Timeline))
		}
		b.WriteString("\n")
	}

	if len(d.VelocityAlerts) > 0 {
		b.WriteString("## Velocity Alerts\n\n")
		for _, v := range d.VelocityAlerts {
			fmt.Fprintf(&b, "- **%s** (%.2f): %s\n", v.Topic, v.Velocity, v.Implication)
		}
		b.WriteString("\n")
	}

	if len(d.PassList) > 0 {
		b.WriteString("## Pass List\n\n")
		for _, p := range d.PassList {
			fmt.Fprintf(&b, "- **%s**: %s\n", p.Idea, p.Reason)
		}
		b.WriteString("\n")
	}

	if d.ThisWeekAction != "" {
		fmt.Fprintf(&b, "## This Week\n\n%s\n\n", d.ThisWeekAction)
	}
	if d.KeyInsight != "" {
		fmt.Fprintf(&b, "## Key Insight\n\n%s\n\n", d.KeyInsight)
	}
	list(&b, "## Recommended Actions", d.RecommendedActions)
	if d.OverallAssessment != "" {
		fmt.Fprintf(&b, "## Assessment\n\n%s\n", d.OverallAssessment)
	}
	return b.String()
}

func Quarterly(q *synthesis.Quarterly) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Quarterly Review: %s\n\n", q.Quarter)
	fmt.Fprintf(&b, "_Generated %s_\n\n", q.GeneratedAt.Format(dateLayout))
	if q.Error != "" {
		fmt.Fprintf(&b, "> **%s.**\n\n", q.Error)
	}
	s := q.Statistics
	b.WriteString("| Signals | Disqualified | Patterns | Opportunities |\n|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d |\n\n", s.Signals, s.SignalsDisqualified, s.Patterns, s.Opportunities)

	b.WriteString("## Macro Trends\n\n")
	list(&b, "### Big Shifts", q.MacroTrends.BigShifts)
	list(&b, "### Growing Niches", q.MacroTrends.GrowingNiches)
	list(&b, "### Declining Areas", q.MacroTrends.DecliningAreas)
	list(&b, "### Emerging Opportunities", q.MacroTrends.EmergingOpportunities)

	tv := q.ThesisValidation
	if tv.BestPerformingFactor != "" || tv.WeakestFactor != "" || tv.SuggestedFocus != "" {
		b.WriteString("## Thesis Validation\n\n")
		field(&b, "Best performing factor", tv.BestPerformingFactor)
		field(&b, "Weakest factor", tv.WeakestFactor)
		field(&b, "Suggested focus", tv.SuggestedFocus)
		b.WriteString("\n")
	}

	if len(q.TopOpportunities) > 0 {
		b.WriteString("## Top Opportunities\n\n| # | Title | Verdict | Why | Next |\n|---|---|---|---|---|\n")
		for _, o := range q.TopOpportunities {
			fmt.Fprintf(&b, "| %d | %s | %s | %s | %s |\n", o.Rank, cell(o.Title), cell(o.Verdict), cell(o.WhyTop), cell(o.RecommendedAction))
		}
		b.WriteString("\n")
	}

	list(&b, "## Ready to Build", q.BuildNowCandidates.ReadyToBuild)
	list(&b, "## Needs More Validation", q.BuildNowCandidates.NeedsMoreValidation)
	list(&b, "## Heating Up", q.NichesToWatch.HeatingUp)
	list(&b, "## Cooling Down", q.NichesToWatch.CoolingDown)
	list(&b, "## Stay Away", q.NichesToWatch.StayAway)
	list(&b, "## Blind Spots", q.BlindSpots.MightBeMissing)
	list(&b, "## Sources to Add", q.BlindSpots.SourcesToAdd)
	list(&b, "## Underexplored Niches", q.BlindSpots.NichesUnderexplored)
	list(&b, "## Next Quarter Focus", q.RecommendedFocus.NextQuarterFocus)
	list(&b, "## Ideas to Validate", q.RecommendedFocus.IdeasToValidate)
	list(&b, "## Signals to Track", q.RecommendedFocus.SignalsToTrack)
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func Opportunity(o model.Opportunity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", o.Title)
	if o.OneLiner != "" {
		fmt.Fprintf(&b, "_%s_\n\n", o.OneLiner)
	}
	fmt.Fprintf(&b, "**Verdict: %s**", o.Verdict)
	if o.VerdictReasoning != "" {
		fmt.Fprintf(&b, " %s", o.VerdictReasoning)
	}
	b.WriteString("\n\n")

	b.WriteString("| Timing | Complexity | Primary thesis | Overall |\n|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %s | %s | %s | %d |\n\n", o.TimingStage, o.BuildComplexity, o.PrimaryThesis, o.Scoring.Overall)

	b.WriteString("## Problem\n\n")
	para(&b, o.Problem.Description)
	field(&b, "Target customer", o.Problem.TargetCustomer)
	field(&b, "Current solutions", o.Problem.CurrentSolutions)
	b.WriteString("\n## Solution\n\n")
	para(&b, o.Solution.Description)
	list(&b, "### Core features", o.Solution.CoreFeatures)
	field(&b, "Differentiation", o.Solution.Differentiation)

	b.WriteString("\n## Demand\n\n")
	field(&b, "Strength", o.DemandEvidence.Strength)
	list(&b, "### Signals", o.DemandEvidence.Signals)
	list(&b, "### Quotes and data", o.DemandEvidence.QuotesOrData)

	b.WriteString("\n## Competition\n\n")
	list(&b, "### Competitors", o.Competition.Competitors)
	field(&b, "Why beatable", o.Competition.WhyBeatable)
	field(&b, "If none, why", o.Competition.IfNoneWhy)

	b.WriteString("\n## Build\n\n")
	para(&b, o.Build.Explanation)
	field(&b, "Stack", o.Build.TechStack)
	field(&b, "Estimate", o.Build.EstimatedTime)
	ship := "no"
	if o.Build.CanShipIn4Weeks {
		ship = "yes"
	}
	field(&b, "Ships in 4 weeks", ship)
	list(&b, "### Challenges", o.Build.Challenges)

	b.WriteString("\n## Monetisation\n\n")
	field(&b, "Model", o.Monetisation.Model)
	field(&b, "Price points", o.Monetisation.PricePoints)
	field(&b, "Who pays", o.Monetisation.WhoPays)

	b.WriteString("\n## Go to Market\n\n")
	list(&b, "### Channels", o.GoToMarket.CustomerChannels)
	field(&b, "First 10 customers", o.GoToMarket.FirstTenCustomers)
	field(&b, "SEO potential", o.GoToMarket.SEOPotential)
	field(&b, "Community potential", o.GoToMarket.CommunityPotential)

	if len(o.Scoring.Factors) > 0 {
		b.WriteString("\n## Scores\n\n| Factor | Score |\n|---|---|\n")
		for _, f := range model.Factors {
			if v, ok := o.Scoring.Factors.Get(f); ok {
				fmt.Fprintf(&b, "| %s | %d |\n", f, v)
			}
		}
	}
	b.WriteString("\n")
	list(&b, "## First Steps", o.FirstSteps)
	list(&b, "## Risks", o.Risks)
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func field(b *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	fmt.Fprintf(b, "- **%s:** %s\n", label, value)
}

func para(b *strings.Builder, text string) {
	if strings.TrimSpace(text) != "" {
		fmt.Fprintf(b, "%s\n\n", text)
	}
}

// list writes heading and one bullet per non-empty item. Nothing is written
// when no item is left.
func list(b *strings.Builder, heading string, items []string) {
	var kept []string
	for _, it := range items {
		if strings.TrimSpace(it) != "" {
			kept = append(kept, it)
		}
	}
	if len(kept) == 0 {
		return
	}
	fmt.Fprintf(b, "%s\n\n", heading)
	for _, it := range kept {
		fmt.Fprintf(b, "- %s\n", it)
	}
	b.WriteString("\n")
}

func cell(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "|", `\|`), "\n", " ")
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
