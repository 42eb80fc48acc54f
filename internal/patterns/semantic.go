package patterns

import "regexp"

// SemanticFlagGroup is a named alternation that boosts a set of
// categories when its pattern matches the message.
type SemanticFlagGroup struct {
	Name            string
	Pattern         *regexp.Regexp
	BoostCategories []string
	BoostAmount     int
}

// semanticFlagGroups are evaluated independently; every matching group
// contributes its boost.
var semanticFlagGroups = []SemanticFlagGroup{
	{
		Name:            "testing",
		Pattern:         regexp.MustCompile(`(?i)\b(test|tests|testing|unit tests?|coverage|regression)\b`),
		BoostCategories: []string{"development_standards", "quality"},
		BoostAmount:     10,
	},
	{
		Name:            "security",
		Pattern:         regexp.MustCompile(`(?i)\b(security|secure|vulnerab\w*|credentials?|secrets?|injection|auth\w*)\b`),
		BoostCategories: []string{"safety_prevention"},
		BoostAmount:     15,
	},
	{
		Name:            "git_workflow",
		Pattern:         regexp.MustCompile(`(?i)\b(commit|branch|merge|rebase|push|pull request|pr)\b`),
		BoostCategories: []string{"development_standards"},
		BoostAmount:     8,
	},
	{
		Name:            "documentation",
		Pattern:         regexp.MustCompile(`(?i)\b(documentation|document|docs|readme|changelog|comments?)\b`),
		BoostCategories: []string{"documentation"},
		BoostAmount:     8,
	},
	{
		Name:            "performance",
		Pattern:         regexp.MustCompile(`(?i)\b(performance|profil\w*|benchmark\w*|slow|latency|optimi[sz]\w*)\b`),
		BoostCategories: []string{"development_standards"},
		BoostAmount:     8,
	},
	{
		Name:            "refactoring",
		Pattern:         regexp.MustCompile(`(?i)\b(refactor\w*|clean ?up|restructure|simplify|tech(nical)? debt)\b`),
		BoostCategories: []string{"development_standards", "learning"},
		BoostAmount:     8,
	},
}

// SemanticFlagHit records one matched group.
type SemanticFlagHit struct {
	Group           string
	BoostCategories []string
	BoostAmount     int
}

// DetectSemanticFlags evaluates all groups against the message.
func DetectSemanticFlags(message string) []SemanticFlagHit {
	var hits []SemanticFlagHit
	for _, g := range semanticFlagGroups {
		if g.Pattern.MatchString(message) {
			hits = append(hits, SemanticFlagHit{
				Group:           g.Name,
				BoostCategories: g.BoostCategories,
				BoostAmount:     g.BoostAmount,
			})
		}
	}
	return hits
}
