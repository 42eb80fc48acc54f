package patterns

import "strings"

// violationWords flag compliance problems wherever they appear.
var violationWords = map[string]bool{
	"violation": true, "violated": true, "ignored": true, "disregarded": true,
	"skipped": true, "bypassed": true, "disobeyed": true, "unauthorized": true,
	"forbidden": true, "prohibited": true, "noncompliant": true,
}

// emphasisViolationWords only count when emphasized: all-caps, trailing
// exclamation, or sentence-start position.
var emphasisViolationWords = map[string]bool{
	"never": true, "stop": true, "no": true, "don't": true, "dont": true,
	"wrong": true, "always": true, "must": true, "not": true,
}

// ViolationCategories are the instruction categories boosted when
// violation signals fire.
var ViolationCategories = map[string]bool{
	"trust_execution":   true,
	"safety_prevention": true,
}

// ViolationBoostPerSignal is added per detected signal to instructions in
// ViolationCategories.
const ViolationBoostPerSignal = 20

// DetectViolationSignals returns the distinct violation signals present
// in the message: plain violation words, emphasized violation words,
// exclamation density of three or more, and two or more all-caps words.
func DetectViolationSignals(message string) []string {
	var signals []string
	folded := strings.ToLower(message)

	for w := range violationWords {
		if containsWord(folded, w) {
			signals = append(signals, "violation_word:"+w)
		}
	}

	sentenceStart := true
	capsWords := 0
	for _, raw := range strings.Fields(message) {
		word := strings.TrimRight(raw, ".!?,;:")
		lower := strings.ToLower(word)
		emphatic := isAllCaps(word) || strings.HasSuffix(raw, "!") || sentenceStart

		if emphasisViolationWords[lower] && emphatic {
			signals = append(signals, "emphasis:"+lower)
		}
		if isAllCaps(word) {
			capsWords++
		}
		sentenceStart = strings.HasSuffix(raw, ".") || strings.HasSuffix(raw, "!") || strings.HasSuffix(raw, "?")
	}

	if strings.Count(message, "!") >= 3 {
		signals = append(signals, "exclamation_density")
	}
	if capsWords >= 2 {
		signals = append(signals, "caps_words")
	}

	return dedupe(signals)
}

// isAllCaps reports whether a word of length >= 2 is entirely upper case
// letters.
func isAllCaps(word string) bool {
	if len(word) < 2 {
		return false
	}
	hasLetter := false
	for _, r := range word {
		if r >= 'a' && r <= 'z' {
			return false
		}
		if r >= 'A' && r <= 'Z' {
			hasLetter = true
		}
	}
	return hasLetter
}

func containsWord(folded, word string) bool {
	idx := strings.Index(folded, word)
	for idx >= 0 {
		before := idx == 0 || !isWordChar(folded[idx-1])
		afterIdx := idx + len(word)
		after := afterIdx >= len(folded) || !isWordChar(folded[afterIdx])
		if before && after {
			return true
		}
		next := strings.Index(folded[idx+1:], word)
		if next < 0 {
			return false
		}
		idx += 1 + next
	}
	return false
}

func isWordChar(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func dedupe(ss []string) []string {
	seen := make(map[string]bool, len(ss))
	out := ss[:0]
	for _, s := range ss {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
