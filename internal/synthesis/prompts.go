package synthesis

const digestPrompt = `You are writing the %[1]s digest for a solo SaaS operator hunting for business ideas.

SIGNALS: %[2]d
PATTERNS: %[3]d
OPPORTUNITIES: %[4]d

TOP PATTERNS:
%[5]s

NEW OPPORTUNITIES:
%[6]s

VELOCITY SPIKES:
%[7]s

Focus on SaaS and directory ideas that can be acted on. Respond ONLY with valid JSON:
{
  "headline": "the most interesting finding this %[1]s period",
  "top_build_ready_ideas": [
    {"name": "", "one_liner": "", "why_high_score": "", "demand_evidence": "", "build_time": "", "first_step": ""}
  ],
  "emerging_trends": [
    {"trend": "", "niche": "", "timeline": ""}
  ],
  "pass_list": [
    {"idea": "", "reason": ""}
  ],
  "this_week_action": "the one thing to build and why",
  "key_insight": "the most important takeaway",
  "recommended_actions": ["action"],
  "pattern_summaries": [
    {"title": "", "summary": "", "relevance": ""}
  ],
  "opportunity_summaries": [
    {"title": "", "verdict": "BUILD NOW|EXPLORE|MONITOR|PASS", "summary": "", "action": ""}
  ],
  "velocity_alerts": [
    {"topic": "", "velocity": 0.0, "implication": ""}
  ],
  "overall_assessment": "short assessment of the period"
}`

const quarterlyPrompt = `You are running the quarterly review of SaaS opportunity research.

PERIOD: %s

STATISTICS:
- Signals: %d
- Patterns: %d
- Opportunities: %d

PATTERNS BY TYPE:
%s

OPPORTUNITIES:
%s

THESIS SCORE DISTRIBUTION:
%s

Respond ONLY with valid JSON:
{
  "macro_trends": {"big_shifts": [], "growing_niches": [], "declining_areas": [], "emerging_opportunities": []},
  "thesis_validation": {"best_performing_factor": "", "weakest_factor": "", "suggested_focus": ""},
  "top_opportunities": [
    {"rank": 1, "title": "", "verdict": "BUILD NOW|EXPLORE|MONITOR|PASS", "why_top": "", "recommended_action": ""}
  ],
  "build_now_candidates": {"ready_to_build": [], "needs_more_validation": []},
  "niches_to_watch": {"heating_up": [], "cooling_down": [], "stay_away": []},
  "blind_spots": {"might_be_missing": [], "sources_to_add": [], "niches_underexplored": []},
  "recommended_focus": {"next_quarter_focus": [], "ideas_to_validate": [], "signals_to_track": []}
}`
