package patterns

import "regexp"

// Friction types, highest priority first: a rejection outranks a retry,
// a retry outranks a correction.
const (
	FrictionRejection  = "rejection"
	FrictionRetry      = "retry"
	FrictionCorrection = "correction"
)

var frictionRejection = regexp.MustCompile(
	`(?i)(\bno[,.!]?\s+(stop|don'?t|not)\b|that'?s\s+(wrong|not\s+right|not\s+what)|\brevert\b|\bundo\b|\breject\w*\b|stop\s+doing)`)

var frictionRetry = regexp.MustCompile(
	`(?i)(try\s+again|\bretry\b|once\s+more|one\s+more\s+time|still\s+(not|doesn'?t|broken|failing))`)

var frictionCorrection = regexp.MustCompile(
	`(?i)(\bactually[, ]|i\s+meant|\binstead\b|rather\s+than|that'?s\s+incorrect|correction:|not\s+quite)`)

// FrictionBoostCategories receive the friction boost once per instruction.
var FrictionBoostCategories = map[string]bool{
	"trust_execution":       true,
	"learning":              true,
	"safety_prevention":     true,
	"development_standards": true,
}

// FrictionBoost is added to instructions in FrictionBoostCategories when
// friction is detected and the engine's friction flag is on.
const FrictionBoost = 20

// DetectFriction returns the highest-priority friction type present in
// the message, or "" when none match.
func DetectFriction(message string) string {
	switch {
	case frictionRejection.MatchString(message):
		return FrictionRejection
	case frictionRetry.MatchString(message):
		return FrictionRetry
	case frictionCorrection.MatchString(message):
		return FrictionCorrection
	default:
		return ""
	}
}
