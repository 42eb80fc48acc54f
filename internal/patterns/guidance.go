package patterns

import "regexp"

// Guidance types attached to guidance_action directives.
const (
	GuidanceExplicit = "explicit"
	GuidanceImplicit = "implicit"
)

// explicitGuidance catches standing directives the user states outright.
var explicitGuidance = regexp.MustCompile(
	`(?i)\b(always|never|from\s+now\s+on|going\s+forward|remember\s+(to|that)|make\s+sure\s+(to|you)|you\s+(must|should)\s+always|do\s+not\s+ever)\b`)

// implicitGuidance catches softer preference statements.
var implicitGuidance = regexp.MustCompile(
	`(?i)\b(i\s+prefer|i'?d\s+rather|please\s+(use|avoid|stick\s+to)|next\s+time|in\s+the\s+future|can\s+you\s+always)\b`)

// DetectGuidance classifies the message: explicit outranks implicit;
// returns "" when neither pattern matches.
func DetectGuidance(message string) string {
	if explicitGuidance.MatchString(message) {
		return GuidanceExplicit
	}
	if implicitGuidance.MatchString(message) {
		return GuidanceImplicit
	}
	return ""
}
