package thesis

const scoringPrompt = `You are evaluating a signal for SaaS or directory business potential.

The goal is ideas that:
- a solo operator can build in 2-4 weeks
- have clear evidence people will pay
- have little or weak competition
- avoid heavily regulated industries
- can earn subscription or listing revenue

SIGNAL:
Type: %s
Industry: %s
Problem: %s
Demand evidence: %s
Content: %s

Score each factor from 1 to 10:

1. demand_evidence: proof people want this and would pay
2. competition_gap: the space is empty or poorly served
3. trend_timing: the timing is right, growing and early enough
4. solo_buildability: one person can ship it in 2-4 weeks
5. clear_monetisation: people will pay monthly
6. regulatory_simplicity: free of regulation

Disqualify (score every factor 1) for financial services, healthcare, legal,
insurance, gambling, anything needing professional licenses, government
contracting, or ideas needing significant capital.

Respond ONLY with JSON:
{
  "demand_evidence": {"score": 1-10, "reasoning": "..."},
  "competition_gap": {"score": 1-10, "reasoning": "..."},
  "trend_timing": {"score": 1-10, "reasoning": "..."},
  "solo_buildability": {"score": 1-10, "reasoning": "..."},
  "clear_monetisation": {"score": 1-10, "reasoning": "..."},
  "regulatory_simplicity": {"score": 1-10, "reasoning": "..."},
  "overall_saas_potential": "why this is or is not a good SaaS opportunity",
  "disqualified": true/false,
  "disqualification_reason": "reason, or null"
}`
