package patterns

const convergencePrompt = `You are reviewing a convergence: several unrelated signals that cluster together semantically and may point at the same SaaS opportunity for a solo operator.

SIGNALS:
%s

They come from these signal types: %s.

Decide:
1. What common theme connects them?
2. Is this a genuine pattern or coincidental clustering?
3. What does it suggest about where the market is heading?
4. Which further signals would confirm or refute that?
5. If it is real, what is the timing: early, emerging, growing or crowded?

Respond ONLY with valid JSON:
{
  "title": "short pattern title",
  "theme": "the theme connecting the signals",
  "is_genuine": true,
  "confidence": 0.0,
  "hypothesis": "what this suggests about the market",
  "validation_signals": ["signal"],
  "timing": "early|emerging|growing|crowded",
  "opportunity_summary": "one paragraph, if genuine"
}`

const gapPrompt = `You are reviewing a possible market gap: complaints or problems that nobody appears to be building a solution for.

COMPLAINTS:
%s

RELATED BUILDER ACTIVITY:
%s

Decide:
1. Is the gap real, or do solutions already exist?
2. Why does the gap exist?
3. What would a solution look like?
4. How painful is the problem, from 1 to 10?
5. Is it worth pursuing for a solo founder?

Respond ONLY with valid JSON:
{
  "is_real_gap": true,
  "gap_title": "short title",
  "gap_description": "what is missing",
  "pain_severity": 5,
  "existing_solutions": ["solution"],
  "solution_hypothesis": "what a solution might look like",
  "why_gap_exists": "explanation",
  "worth_pursuing": true,
  "confidence": 0.0
}`

const timingPrompt = `You are judging the market timing of an opportunity.

OPPORTUNITY: %s

SIGNALS:
%s

Stages:
- EARLY (1-3): only builders and developers talk about it, no mainstream coverage, 12-24 months out.
- EMERGING (4-6): startup press and seed rounds are appearing, search interest is rising, 6-12 months out.
- GROWING (7-8): mainstream awareness, several funded startups, incumbents are noticing.
- CROWDED (9-10): everyone is talking about it, well funded players and big tech compete.

Respond ONLY with valid JSON:
{
  "timing_stage": "early|emerging|growing|crowded",
  "timing_score": 5,
  "evidence": ["point"],
  "timing_risks": ["risk"],
  "recommended_action": "act now|prepare|monitor|avoid",
  "window_estimate": "time until the window closes",
  "confidence": 0.0
}`
