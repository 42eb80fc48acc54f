package patterns

import (
	"regexp"
	"strings"
)

// ComplianceGatePhrase marks an instruction body as a hard procedural
// gate.
const ComplianceGatePhrase = "compliance gate"

// proceduralContent recognizes instruction bodies that prescribe ordered
// steps rather than background knowledge.
var proceduralContent = regexp.MustCompile(
	`(?i)(follow\s+(these|the)\s+steps|step\s+\d|checklist|before\s+(running|executing|starting)|must\s+(first|read)|in\s+this\s+exact\s+order)`)

// readDocPattern extracts a referenced document path from a
// "Read <path>" directive inside an instruction body.
var readDocPattern = regexp.MustCompile(`Read\s+([\w./\\-]+\.md)`)

// proceduralKeywords flag procedural instructions via their description.
var proceduralKeywords = []string{"procedure", "checklist", "steps", "protocol", "gate", "workflow"}

// IsProceduralBody reports whether the body text looks procedural.
func IsProceduralBody(body string) bool {
	return strings.Contains(strings.ToLower(body), ComplianceGatePhrase) ||
		proceduralContent.MatchString(body)
}

// IsProceduralDescription reports whether a description carries a
// procedural keyword.
func IsProceduralDescription(description string) bool {
	lower := strings.ToLower(description)
	for _, kw := range proceduralKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// ReferencedDoc extracts the document path named by a Read directive in
// the body, or "".
func ReferencedDoc(body string) string {
	if m := readDocPattern.FindStringSubmatch(body); m != nil {
		return m[1]
	}
	return ""
}
