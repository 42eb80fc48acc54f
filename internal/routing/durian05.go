package routing

import (
	"sort"
	"strings"

	"pongogo/internal/knowledge"
	"pongogo/internal/logging"
	"pongogo/internal/patterns"

	"github.com/IGLOU-EU/go-wildcard/v2"
)

// Durian05Version is the previous-generation engine, frozen at the point
// bundles, look-back, and the directive passes were introduced in 0.6.
const Durian05Version = "durian-0.5"

var durian05Flags = []FeatureFlag{
	{Name: FeatApprovalSuppression, Description: "Suppress routing for approval-only messages", Default: true, Category: "suppression"},
	{Name: FeatViolationDetection, Description: "Boost trust/safety instructions on violation signals", Default: true, Category: "detection"},
	{Name: FeatSemanticFlags, Description: "Category boosts from semantic flag groups", Default: true, Category: "detection"},
	{Name: FeatFrictionBoost, Description: "Boost corrective categories when friction is detected", Default: true, Category: "boost"},
	{Name: FeatFoundational, Description: "Prepend foundational instructions regardless of score", Default: true, Category: "overlay"},
}

func init() {
	Register(Durian05Version,
		"Frozen: detection passes and foundational overlay, no bundles or look-back",
		durian05Flags,
		func(deps Deps, features map[string]bool) Router {
			return &durian05{deps: deps, features: defaults(durian05Flags, features)}
		})
}

type durian05 struct {
	deps     Deps
	features map[string]bool
}

func (e *durian05) Version() string         { return Durian05Version }
func (e *durian05) Description() string     { return "detection passes without bundles" }
func (e *durian05) Features() []FeatureFlag { return durian05Flags }

func (e *durian05) Route(message string, ctx *Context, limit int) (result *Result) {
	defer func() {
		if r := recover(); r != nil {
			logging.Get(logging.CategoryRouting).Error("Engine panic recovered: %v", r)
			result = emptyResult(map[string]interface{}{
				"error": "internal routing error",
			})
		}
	}()

	if limit <= 0 {
		limit = 5
	}
	if ctx == nil {
		ctx = &Context{}
	}

	analysis := map[string]interface{}{}

	if e.features[FeatApprovalSuppression] {
		dec := patterns.EvaluateApproval(message)
		// 0.5 had no commencement override: any approval match suppresses.
		if dec.Suppress || dec.Commencement {
			analysis["suppressed"] = true
			analysis["reason"] = dec.Reason
			return emptyResult(analysis)
		}
	}

	keywords := ExtractKeywords(message)
	analysis["keywords"] = keywords
	analysis["intent"] = ClassifyIntent(message)

	var boosts []detectionBoost
	if e.features[FeatViolationDetection] {
		if signals := patterns.DetectViolationSignals(message); len(signals) > 0 {
			boost := float64(patterns.ViolationBoostPerSignal * len(signals))
			boosts = append(boosts, detectionBoost{
				name:       "violation_boost",
				categories: patterns.ViolationCategories,
				amount:     boost,
			})
			analysis["violation_detection"] = map[string]interface{}{
				"signals": signals,
				"boost":   boost,
			}
		}
	}
	if e.features[FeatSemanticFlags] {
		for _, h := range patterns.DetectSemanticFlags(message) {
			boosts = append(boosts, detectionBoost{
				name:       "semantic_boost:" + h.Group,
				categories: categorySet(h.BoostCategories),
				amount:     float64(h.BoostAmount),
			})
		}
	}
	if e.features[FeatFrictionBoost] {
		if friction := patterns.DetectFriction(message); friction != "" {
			analysis["friction"] = friction
			boosts = append(boosts, detectionBoost{
				name:       "friction_boost",
				categories: patterns.FrictionBoostCategories,
				amount:     patterns.FrictionBoost,
			})
		}
	}

	var scored []*ScoredInstruction
	for _, inst := range e.deps.Store.All() {
		si := e.scoreInstruction(inst, keywords, ctx, boosts)
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

	var final []ScoredInstruction
	foundationalIDs := make(map[string]bool)
	if e.features[FeatFoundational] {
		for _, inst := range e.deps.Store.Foundational() {
			foundationalIDs[inst.ID] = true
			final = append(final, ScoredInstruction{
				Instruction: inst,
				Score:       foundationalScore,
				Breakdown:   map[string]interface{}{"foundational": true},
			})
		}
	}
	taken := 0
	for _, si := range scored {
		if taken >= limit {
			break
		}
		if foundationalIDs[si.Instruction.ID] {
			continue
		}
		final = append(final, *si)
		taken++
	}

	return &Result{Instructions: final, Count: len(final), Analysis: analysis}
}

// scoreInstruction is 0.5's additive pass, kept as its own copy so the
// snapshot does not move when the canonical engine's scoring changes.
func (e *durian05) scoreInstruction(inst *knowledge.Instruction, keywords []string, ctx *Context, boosts []detectionBoost) *ScoredInstruction {
	score := 0.0
	breakdown := make(map[string]interface{})
	add := func(key string, amount float64) {
		if amount == 0 {
			return
		}
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
			tagLower := strings.ToLower(tag)
			if tagLower == kw {
				add("keyword_tag", weightKeywordIsTag)
			} else if strings.Contains(tagLower, kw) {
				add("tag_contains", weightTagContains)
			}
		}
		for _, rk := range inst.Routing.Keywords {
			if strings.EqualFold(rk, kw) {
				add("routing_keyword", weightKeywordInRouting)
			}
		}
		for _, cat := range inst.Categories {
			if strings.Contains(strings.ToLower(cat), kw) {
				add("keyword_category", weightKeywordCategory)
			}
		}
	}

	if len(inst.Routing.NLP) > 0 && len(keywords) > 0 {
		kwSet := make(map[string]bool, len(keywords))
		for _, kw := range keywords {
			kwSet[kw] = true
		}
		overlap := 0
		seen := make(map[string]bool)
		for _, phrase := range inst.Routing.NLP {
			for _, w := range strings.Fields(strings.ToLower(phrase)) {
				if kwSet[w] && !seen[w] {
					seen[w] = true
					overlap++
				}
			}
		}
		add("nlp_overlap", float64(overlap*weightNLPOverlap))
	}

	if len(ctx.Files) > 0 && len(inst.Routing.Globs) > 0 {
		hits := 0
		for _, file := range ctx.Files {
			for _, glob := range inst.Routing.Globs {
				if wildcard.Match(glob, file) {
					hits++
				}
			}
		}
		add("glob_score", float64(hits*weightGlobMatch))
	}

	for _, file := range ctx.Files {
		for _, pat := range inst.Routing.ContextFiles {
			if wildcard.Match(pat, file) {
				add("context_file", weightContextFile)
			}
		}
	}
	if ctx.Branch != "" {
		for _, pat := range inst.Routing.ContextBranches {
			if wildcard.Match(pat, ctx.Branch) {
				add("context_branch", weightContextBranch)
			}
		}
	}

	for _, b := range boosts {
		for _, cat := range inst.Categories {
			if b.categories[cat] {
				add(b.name, b.amount)
				break
			}
		}
	}

	return &ScoredInstruction{Instruction: inst, Score: score, Breakdown: breakdown}
}
