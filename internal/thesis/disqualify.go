package thesis

import "strings"

// DisqualifiedIndustries are regulated markets that are rejected without a
// model call.
var DisqualifiedIndustries = []string{
	"financial services",
	"fintech",
	"banking",
	"lending",
	"payments",
	"investing",
	"healthcare",
	"healthtech",
	"medical",
	"telehealth",
	"legal",
	"insurance",
	"gambling",
	"betting",
	"pharma",
	"pharmaceutical",
	"cannabis",
	"firearms",
	"government contracting",
}

// MatchDisqualified reports whether industry matches a disqualified entry,
// case-insensitively, with either string containing the other. Blank input
// never matches.
func MatchDisqualified(industry string) bool {
	ind := strings.ToLower(strings.TrimSpace(industry))
	if ind == "" {
		return false
	}
	for _, d := range DisqualifiedIndustries {
		if strings.Contains(ind, d) || strings.Contains(d, ind) {
			return true
		}
	}
	return false
}

// FirstDisqualified returns the first candidate that matches the list.
func FirstDisqualified(candidates []string) (string, bool) {
	for _, c := range candidates {
		if MatchDisqualified(c) {
			return c, true
		}
	}
	return "", false
}
