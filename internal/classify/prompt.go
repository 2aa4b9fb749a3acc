package classify

const classificationPrompt = `You are classifying a signal for a SaaS business opportunity discovery system.

Signal source: %s
Signal category: %s
Signal content: %s

Classify this signal:

1. signal_type, one of:
   - demand_signal: people asking for solutions, searching, expressing needs
   - complaint: frustration with existing tools or a lack of tools
   - trend: rising interest in a topic, technology or industry
   - competition_intel: information about existing players and their weaknesses
   - market_shift: industry changes creating new needs
   - builder_activity: others building solutions (competition or validation)
2. signal_subtype: be specific for the chosen type
3. industry: a specific niche ("real estate photography", not "technology")
4. problem_summary: one sentence describing the problem people have
5. demand_evidence_level, one of high, medium, low, none:
   - high: several people with the same need who are willing to pay
   - medium: some interest, unclear willingness to pay
   - low: a theoretical problem
   - none: no evidence of demand
6. entities: companies, technologies, industries and locations mentioned
7. keywords: 5 to 10 search keywords

Respond ONLY with JSON in this shape:
{
  "signal_type": "string",
  "signal_subtype": "string",
  "industry": "string",
  "problem_summary": "string",
  "demand_evidence_level": "high|medium|low|none",
  "summary": "string",
  "entities": {
    "companies": ["string"],
    "technologies": ["string"],
    "industries": ["string"],
    "locations": ["string"]
  },
  "keywords": ["string"]
}`
