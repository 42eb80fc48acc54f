package routing

import (
	"sort"
	"strings"

	"pongogo/internal/knowledge"
)

// Durian00Version is the original keyword-only baseline, kept frozen for
// comparison runs. It accepts no feature flags.
const Durian00Version = "durian-00"

func init() {
	Register(Durian00Version,
		"Frozen baseline: keyword scoring only, no detection passes",
		nil,
		func(deps Deps, _ map[string]bool) Router {
			return &durian00{deps: deps}
		})
}

type durian00 struct {
	deps Deps
}

func (e *durian00) Version() string         { return Durian00Version }
func (e *durian00) Description() string     { return "keyword-only baseline" }
func (e *durian00) Features() []FeatureFlag { return nil }

func (e *durian00) Route(message string, ctx *Context, limit int) *Result {
	if limit <= 0 {
		limit = 5
	}

	keywords := ExtractKeywords(message)
	analysis := map[string]interface{}{
		"keywords": keywords,
		"intent":   ClassifyIntent(message),
	}

	var scored []*ScoredInstruction
	for _, inst := range e.deps.Store.All() {
		si := scoreKeywordsOnly(inst, keywords)
		if si.Score > 0 {
			scored = append(scored, si)
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Instruction.ID < scored[j].Instruction.ID
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}
	final := make([]ScoredInstruction, len(scored))
	for i, si := range scored {
		final[i] = *si
	}

	return &Result{Instructions: final, Count: len(final), Analysis: analysis}
}

func scoreKeywordsOnly(inst *knowledge.Instruction, keywords []string) *ScoredInstruction {
	score := 0.0
	breakdown := make(map[string]interface{})
	add := func(key string, amount float64) {
		score += amount
		if prev, ok := breakdown[key].(float64); ok {
			breakdown[key] = prev + amount
		} else {
			breakdown[key] = amount
		}
	}

	idLower := strings.ToLower(inst.ID)
	descLower := strings.ToLower(inst.Description)
	for _, kw := range keywords {
		if strings.Contains(idLower, kw) {
			add("keyword_id", weightKeywordInID)
		}
		if descLower != "" && strings.Contains(descLower, kw) {
			add("keyword_description", weightKeywordInDesc)
		}
		for _, tag := range inst.Tags {
			if strings.EqualFold(tag, kw) {
				add("keyword_tag", weightKeywordIsTag)
			}
		}
		for _, rk := range inst.Routing.Keywords {
			if strings.EqualFold(rk, kw) {
				add("routing_keyword", weightKeywordInRouting)
			}
		}
	}

	return &ScoredInstruction{Instruction: inst, Score: score, Breakdown: breakdown}
}
