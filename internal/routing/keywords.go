package routing

import (
	"regexp"
	"strings"
)

// Intent buckets, decided by phrase presence in order.
const (
	IntentHowTo           = "how_to"
	IntentExplanation     = "explanation"
	IntentCreation        = "creation"
	IntentTroubleshooting = "troubleshooting"
	IntentValidation      = "validation"
	IntentDocumentation   = "documentation"
	IntentGeneral         = "general"
)

// stopWords are dropped from keyword extraction.
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "had": true,
	"her": true, "was": true, "one": true, "our": true, "out": true,
	"his": true, "has": true, "have": true, "this": true, "that": true,
	"with": true, "from": true, "they": true, "will": true, "would": true,
	"there": true, "their": true, "what": true, "about": true, "which": true,
	"when": true, "make": true, "like": true, "into": true, "your": true,
	"some": true, "could": true, "them": true, "than": true, "then": true,
	"these": true, "want": true, "just": true, "also": true, "please": true,
	"need": true, "should": true, "does": true, "how": true, "why": true,
	"where": true, "who": true, "did": true, "been": true, "being": true,
}

var nonWordChars = regexp.MustCompile(`[^\w\s]`)

// ExtractKeywords lowercases the message, strips non-word characters,
// splits on whitespace, and drops stop words and words of two characters
// or fewer.
func ExtractKeywords(message string) []string {
	cleaned := nonWordChars.ReplaceAllString(strings.ToLower(message), " ")
	var keywords []string
	seen := make(map[string]bool)
	for _, w := range strings.Fields(cleaned) {
		if len(w) <= 2 || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		keywords = append(keywords, w)
	}
	return keywords
}

// intentPhrases maps each bucket to its marker phrases, checked in
// declaration order; first hit wins.
var intentPhrases = []struct {
	intent  string
	phrases []string
}{
	{IntentHowTo, []string{"how to", "how do i", "how can i", "how should"}},
	{IntentExplanation, []string{"what is", "what are", "explain", "why does", "why is", "understand"}},
	{IntentCreation, []string{"create", "add", "implement", "build", "write", "generate", "new "}},
	{IntentTroubleshooting, []string{"fix", "bug", "error", "broken", "fail", "crash", "doesn't work", "not working", "debug"}},
	{IntentValidation, []string{"test", "verify", "validate", "check", "confirm", "review"}},
	{IntentDocumentation, []string{"document", "docs", "readme", "comment", "describe"}},
}

// ClassifyIntent buckets a message into one of seven intents.
func ClassifyIntent(message string) string {
	folded := strings.ToLower(message)
	for _, group := range intentPhrases {
		for _, phrase := range group.phrases {
			if strings.Contains(folded, phrase) {
				return group.intent
			}
		}
	}
	return IntentGeneral
}
