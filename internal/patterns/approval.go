// Package patterns holds the compiled pattern libraries the routing
// engines consult: approval and commencement phrases, violation and
// emphasis rules, semantic flag groups, friction and mistake detectors,
// procedural content markers, guidance triggers, and instruction bundles.
// Everything here is compiled once at package init and immutable after,
// so no synchronization is required.
package patterns

import "strings"

// approvalPhrases match an entire trimmed, case-folded message with
// trailing punctuation stripped.
var approvalPhrases = map[string]bool{
	"thanks": true, "thank you": true, "thanks a lot": true,
	"great": true, "great work": true, "perfect": true, "awesome": true,
	"nice": true, "nice work": true, "well done": true, "excellent": true,
	"sounds good": true, "looks good": true, "looks good to me": true,
	"lgtm": true, "ok": true, "okay": true, "got it": true,
	"approved": true, "ship it": true, "yes": true, "yep": true,
	"sure": true, "cool": true, "that works": true, "works for me": true,
}

// approvalWords drive the short-message suppression rules.
var approvalWords = map[string]bool{
	"thanks": true, "thank": true, "great": true, "perfect": true,
	"awesome": true, "good": true, "nice": true, "ok": true, "okay": true,
	"yes": true, "yep": true, "sure": true, "approved": true, "lgtm": true,
	"cool": true, "excellent": true, "wonderful": true, "done": true,
}

// commencementPhrases indicate work continuation and override approval
// suppression. Matched as a prefix of, or space-preceded substring of,
// the folded trimmed message.
var commencementPhrases = []string{
	"let's continue", "lets continue", "let's proceed", "lets proceed",
	"let's move on", "lets move on", "continue with", "proceed with",
	"go ahead", "keep going", "carry on", "next step", "resume", "continue",
	"start with", "begin with", "now do", "now implement",
}

// Suppression reasons reported in the routing analysis.
const (
	ReasonExactApproval     = "exact_approval_match"
	ReasonShortApproval     = "short_approval_message"
	ReasonApprovalDominated = "approval_dominated_message"
)

// ApprovalDecision is the outcome of the suppression gate.
type ApprovalDecision struct {
	Suppress     bool
	Reason       string
	Commencement bool
}

// EvaluateApproval applies the suppression gate to a message:
// commencement phrases override; otherwise an exact approval phrase, a
// short message containing an approval word, or a message at least half
// made of approval words suppresses routing.
func EvaluateApproval(message string) ApprovalDecision {
	folded := strings.ToLower(strings.TrimSpace(message))

	for _, phrase := range commencementPhrases {
		if strings.HasPrefix(folded, phrase) || strings.Contains(folded, " "+phrase) {
			return ApprovalDecision{Commencement: true}
		}
	}

	stripped := strings.TrimRight(folded, ".!?,;: ")
	if approvalPhrases[stripped] {
		return ApprovalDecision{Suppress: true, Reason: ReasonExactApproval}
	}

	words := strings.Fields(stripped)
	if len(words) == 0 {
		return ApprovalDecision{}
	}

	approvals := 0
	for _, w := range words {
		if approvalWords[strings.TrimRight(w, ".!?,")] {
			approvals++
		}
	}

	if len(words) <= 3 && approvals > 0 {
		return ApprovalDecision{Suppress: true, Reason: ReasonShortApproval}
	}
	if len(words) <= 5 && approvals*2 >= len(words) {
		return ApprovalDecision{Suppress: true, Reason: ReasonApprovalDominated}
	}
	return ApprovalDecision{}
}
