package opportunity

const generationPrompt = `You analyse SaaS opportunities for a solo operator who can build full-stack software alone, without funding, wants an MVP in 2-4 weeks, needs clear subscription or listing revenue and avoids regulated industries.

PATTERN:
%s

SUPPORTING SIGNALS:
%s

Write up one SaaS or directory business for this pattern. Respond ONLY with valid JSON:
{
  "business_name": "memorable product name",
  "one_liner": "one sentence on what it does",
  "problem": {
    "description": "the specific pain",
    "target_customer": "who has it, specifically",
    "current_solutions": "how they cope today"
  },
  "solution": {
    "description": "what the product does",
    "core_features": ["at most four features"],
    "differentiation": "why it beats the alternatives"
  },
  "demand_evidence": {
    "signals": ["evidence that people want this"],
    "quotes_or_data": ["quotes or numbers, if any"],
    "strength": "strong|moderate|weak"
  },
  "competition": {
    "competitors": ["named competitors"],
    "why_beatable": "why they can be beaten",
    "if_none_why": "if nobody competes, why not"
  },
  "build_assessment": {
    "tech_stack": "recommended stack",
    "estimated_time": "time to MVP",
    "challenges": ["technical challenges"],
    "can_ship_in_4_weeks": true,
    "explanation": "why the timeline holds or not"
  },
  "monetisation": {
    "model": "pricing model",
    "price_points": "suggested prices",
    "who_pays": "who pays and why"
  },
  "go_to_market": {
    "customer_channels": ["where the customers are"],
    "first_10_customers": "how to land the first ten",
    "seo_potential": "assessment",
    "community_potential": "assessment"
  },
  "scoring": {
    "demand_evidence": 1,
    "competition_gap": 1,
    "trend_timing": 1,
    "solo_buildability": 1,
    "clear_monetisation": 1,
    "regulatory_simplicity": 1,
    "overall_score": 1
  },
  "verdict": "BUILD NOW|EXPLORE|MONITOR|PASS",
  "verdict_reasoning": "one sentence",
  "first_steps": ["this week's steps"],
  "opportunity_type": "vertical_saas|directory|micro_saas|productised_service|internal_tools|workflow_automation|data_product|marketplace|platform",
  "industries": ["industry"],
  "timing_stage": "early|emerging|growing|crowded",
  "risks": ["risk"]
}`
