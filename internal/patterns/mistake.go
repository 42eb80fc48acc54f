package patterns

import "regexp"

// MistakeGroup maps a recognizable mistake narrative to the instruction
// files that would have prevented it. File names are instruction stems
// (without the .instructions.md suffix).
type MistakeGroup struct {
	Name            string
	Pattern         *regexp.Regexp
	PreventiveFiles []string
}

// mistakeGroups are checked in order; the first match wins.
var mistakeGroups = []MistakeGroup{
	{
		Name:            "skipped_verification",
		Pattern:         regexp.MustCompile(`(?i)(didn'?t\s+(test|verify|check)|without\s+(testing|verifying|running)|broke\s+the\s+build|tests?\s+(are|were)\s+failing)`),
		PreventiveFiles: []string{"development_workflow_essentials"},
	},
	{
		Name:            "destructive_without_confirmation",
		Pattern:         regexp.MustCompile(`(?i)(deleted?\s+\S+\s+without|force[- ]?push\w*|dropped\s+the|wiped|overwrote\s+my)`),
		PreventiveFiles: []string{"destructive_operation_gates"},
	},
	{
		Name:            "assumed_context",
		Pattern:         regexp.MustCompile(`(?i)(you\s+(assumed|guessed|made\s+up)|didn'?t\s+(read|look\s+at)|hallucinat\w*)`),
		PreventiveFiles: []string{"base", "development_workflow_essentials"},
	},
	{
		Name:            "scope_creep",
		Pattern:         regexp.MustCompile(`(?i)(didn'?t\s+ask\s+(for|you)|more\s+than\s+i\s+asked|out\s+of\s+scope|why\s+did\s+you\s+(change|touch))`),
		PreventiveFiles: []string{"trust_based_task_execution"},
	},
}

// OutcomeBoost is added to loaded instructions whose filename matches a
// preventive file when the engine's outcome flag is on.
const OutcomeBoost = 5

// DetectMistake returns the first matching mistake type and its
// preventive instruction file stems, or ("", nil).
func DetectMistake(message string) (string, []string) {
	for _, g := range mistakeGroups {
		if g.Pattern.MatchString(message) {
			return g.Name, g.PreventiveFiles
		}
	}
	return "", nil
}
