package routing

import (
	"fmt"
	"sort"
	"strings"

	"pongogo/internal/knowledge"
	"pongogo/internal/logging"
	"pongogo/internal/patterns"

	"github.com/IGLOU-EU/go-wildcard/v2"
)

// Durian06Version is the canonical engine.
const Durian06Version = "durian-0.6.2"

// Feature flags accepted by durian-0.6.x.
const (
	FeatApprovalSuppression  = "approval_suppression"
	FeatViolationDetection   = "violation_detection"
	FeatSemanticFlags        = "semantic_flags"
	FeatFrictionBoost        = "friction_boost"
	FeatOutcomeBoost         = "outcome_boost"
	FeatGuidanceDetection    = "guidance_detection"
	FeatCommencementLookback = "commencement_lookback"
	FeatInstructionBundles   = "instruction_bundles"
	FeatFoundational         = "foundational"
	FeatProceduralWarning    = "procedural_warning"
)

// Scoring weights for the additive per-instruction pass.
const (
	weightKeywordInID      = 10
	weightKeywordInDesc    = 8
	weightKeywordIsTag     = 5
	weightKeywordInRouting = 10
	weightKeywordCategory  = 5
	weightNLPOverlap       = 8
	weightGlobMatch        = 7
	weightContextFile      = 5
	weightContextBranch    = 5
	weightTagContains      = 3
	lookbackBoost          = 15
	foundationalScore      = 1000
	proceduralThreshold    = 50
)

var durian06Flags = []FeatureFlag{
	{Name: FeatApprovalSuppression, Description: "Suppress routing for approval-only messages", Default: true, Category: "suppression"},
	{Name: FeatViolationDetection, Description: "Boost trust/safety instructions on violation signals", Default: true, Category: "detection"},
	{Name: FeatSemanticFlags, Description: "Category boosts from semantic flag groups", Default: true, Category: "detection"},
	{Name: FeatFrictionBoost, Description: "Boost corrective categories when friction is detected", Default: true, Category: "boost"},
	{Name: FeatOutcomeBoost, Description: "Boost preventive instructions on recognized mistakes", Default: true, Category: "boost"},
	{Name: FeatGuidanceDetection, Description: "Emit guidance_action directives for standing guidance", Default: true, Category: "directive"},
	{Name: FeatCommencementLookback, Description: "Re-boost previously routed instructions on continuation", Default: true, Category: "boost"},
	{Name: FeatInstructionBundles, Description: "Co-occurrence boosts between bundled instructions", Default: true, Category: "boost"},
	{Name: FeatFoundational, Description: "Prepend foundational instructions regardless of score", Default: true, Category: "overlay"},
	{Name: FeatProceduralWarning, Description: "Warn when routed instructions are procedural", Default: true, Category: "directive"},
}

func init() {
	Register(Durian06Version,
		"Canonical pipeline: suppression, detection passes, look-back, bundles, foundational overlay",
		durian06Flags,
		func(deps Deps, features map[string]bool) Router {
			return &durian06{deps: deps, features: defaults(durian06Flags, features)}
		})
	SetDefaultVersion(Durian06Version)
}

type durian06 struct {
	deps     Deps
	features map[string]bool
}

func (e *durian06) Version() string         { return Durian06Version }
func (e *durian06) Description() string     { return "canonical routing pipeline" }
func (e *durian06) Features() []FeatureFlag { return durian06Flags }

// Route runs the ten-step pipeline. No error escapes: an internal panic
// is converted into an empty result with routing_analysis.error set.
func (e *durian06) Route(message string, ctx *Context, limit int) (result *Result) {
	defer func() {
		if r := recover(); r != nil {
			logging.Get(logging.CategoryRouting).Error("Engine panic recovered: %v", r)
			result = emptyResult(map[string]interface{}{
				"error": fmt.Sprintf("internal routing error: %v", r),
			})
		}
	}()

	if limit <= 0 {
		limit = 5
	}
	if ctx == nil {
		ctx = &Context{}
	}

	analysis := map[string]interface{}{
		"features": e.enabledFeatures(),
	}

	// Step 1: approval suppression with commencement override.
	commencement := false
	if e.features[FeatApprovalSuppression] {
		dec := patterns.EvaluateApproval(message)
		if dec.Suppress {
			analysis["suppressed"] = true
			analysis["reason"] = dec.Reason
			analysis["message_preview"] = preview(message)
			logging.RoutingDebug("Suppressed approval message: %s", dec.Reason)
			return emptyResult(analysis)
		}
		commencement = dec.Commencement
		if commencement {
			analysis["commencement_override"] = true
		}
	}

	// Step 2: keywords and intent.
	keywords := ExtractKeywords(message)
	intent := ClassifyIntent(message)
	analysis["keywords"] = keywords
	analysis["intent"] = intent

	// Step 3: detection passes feeding category and filename boosts. Each
	// pass contributes one boost, applied at most once per instruction no
	// matter how many of its categories match.
	var boosts []detectionBoost
	var preventiveFiles []string
	frictionType := ""

	if e.features[FeatViolationDetection] {
		signals := patterns.DetectViolationSignals(message)
		if len(signals) > 0 {
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
		hits := patterns.DetectSemanticFlags(message)
		if len(hits) > 0 {
			flagged := make([]string, 0, len(hits))
			for _, h := range hits {
				flagged = append(flagged, h.Group)
				boosts = append(boosts, detectionBoost{
					name:       "semantic_boost:" + h.Group,
					categories: categorySet(h.BoostCategories),
					amount:     float64(h.BoostAmount),
				})
			}
			analysis["semantic_flags"] = flagged
		}
	}

	frictionType = patterns.DetectFriction(message)
	if frictionType != "" {
		analysis["friction"] = frictionType
		if e.features[FeatFrictionBoost] {
			boosts = append(boosts, detectionBoost{
				name:       "friction_boost",
				categories: patterns.FrictionBoostCategories,
				amount:     patterns.FrictionBoost,
			})
		}
	}

	if mistakeType, files := patterns.DetectMistake(message); mistakeType != "" {
		analysis["mistake"] = mistakeType
		if e.features[FeatOutcomeBoost] {
			preventiveFiles = files
		}
	}

	guidanceType := ""
	if e.features[FeatGuidanceDetection] {
		if guidanceType = patterns.DetectGuidance(message); guidanceType != "" {
			analysis["guidance"] = guidanceType
		}
	}

	// Step 4: commencement look-back.
	lookbackSet := make(map[string]bool)
	if e.features[FeatCommencementLookback] && commencement {
		prev := ctx.PreviousRouting
		if len(prev) == 0 && e.deps.Events != nil {
			if ids, err := e.deps.Events.PreviousRoutedIDs(1); err == nil {
				prev = ids
			} else {
				logging.Get(logging.CategoryRouting).Warn("Look-back query failed: %v", err)
			}
		}
		for _, id := range prev {
			lookbackSet[normalizeID(id)] = true
		}
		if len(lookbackSet) > 0 {
			analysis["lookback_boost"] = map[string]interface{}{
				"previous_ids": prev,
				"boost":        lookbackBoost,
			}
		}
	}

	// Step 5: additive per-instruction scoring.
	var scored []*ScoredInstruction
	for _, inst := range e.deps.Store.All() {
		si := e.scoreInstruction(inst, keywords, ctx, boosts, preventiveFiles, lookbackSet)
		if si.Score > 0 {
			scored = append(scored, si)
		}
	}

	// Step 6: bundle boost among retained instructions.
	if e.features[FeatInstructionBundles] {
		applyBundleBoosts(scored)
	}

	// Step 7: deterministic ranking.
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Instruction.ID < scored[j].Instruction.ID
	})

	// Step 8: foundational overlay. Foundational instructions carry a
	// synthetic score and do not count against the limit.
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
		if len(foundationalIDs) > 0 {
			ids := make([]string, 0, len(final))
			for _, si := range final {
				ids = append(ids, si.Instruction.ID)
			}
			analysis["foundational_ids"] = ids
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

	breakdowns := make(map[string]interface{}, len(final))
	for _, si := range final {
		breakdowns[si.Instruction.ID] = si.Breakdown
	}
	analysis["score_breakdowns"] = breakdowns

	result = &Result{
		Instructions: final,
		Count:        len(final),
		Analysis:     analysis,
	}

	if guidanceType != "" {
		result.GuidanceAction = buildGuidanceAction(message, guidanceType, ctx)
	}

	// Step 9: procedural warning over the final list.
	if e.features[FeatProceduralWarning] {
		result.ProceduralWarning = buildProceduralWarning(final, foundationalIDs)
	}

	// Friction risk watch is attached only when the caller asks for it.
	if ctx.FrictionWatch {
		result.FrictionRiskWatch = &FrictionRiskWatch{
			Enabled:          true,
			GuidanceType:     guidanceType,
			EchoDetected:     frictionType != "",
			FrustrationLevel: frustrationLevel(frictionType),
		}
	}

	return result
}

// detectionBoost is one detection pass's contribution: a flat amount
// granted to instructions whose category set intersects the pass's
// target categories.
type detectionBoost struct {
	name       string
	categories map[string]bool
	amount     float64
}

func categorySet(cats []string) map[string]bool {
	set := make(map[string]bool, len(cats))
	for _, c := range cats {
		set[c] = true
	}
	return set
}

// scoreInstruction runs the additive pass for one instruction and
// records the per-signal breakdown.
func (e *durian06) scoreInstruction(
	inst *knowledge.Instruction,
	keywords []string,
	ctx *Context,
	boosts []detectionBoost,
	preventiveFiles []string,
	lookbackSet map[string]bool,
) *ScoredInstruction {
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

	// NLP trigger phrases score by word overlap with the keyword list.
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

	// Glob matches against context files.
	if len(ctx.Files) > 0 && len(inst.Routing.Globs) > 0 {
		var globHits []string
		for _, file := range ctx.Files {
			for _, glob := range inst.Routing.Globs {
				if wildcard.Match(glob, file) {
					globHits = append(globHits, fmt.Sprintf("%s~%s", file, glob))
				}
			}
		}
		if len(globHits) > 0 {
			add("glob_score", float64(len(globHits)*weightGlobMatch))
			breakdown["glob_matches"] = globHits
		}
	}

	// Contextual file and branch patterns.
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

	// Detection-pass boosts: each pass applies at most once, however many
	// of the instruction's categories it targets.
	for _, b := range boosts {
		for _, cat := range inst.Categories {
			if b.categories[cat] {
				add(b.name, b.amount)
				break
			}
		}
	}

	// Preventive-file (mistake outcome) boost.
	for _, f := range preventiveFiles {
		if inst.FileStem == f {
			add("outcome_boost", patterns.OutcomeBoost)
		}
	}

	// Commencement look-back boost. Captured events store the raw id,
	// which is a bare stem when the frontmatter declares none, so both
	// forms are checked.
	if len(lookbackSet) > 0 &&
		(lookbackSet[normalizeID(inst.ID)] || lookbackSet[normalizeID(inst.NormalizedID())]) {
		add("lookback_boost", lookbackBoost)
	}

	return &ScoredInstruction{Instruction: inst, Score: score, Breakdown: breakdown}
}

// applyBundleBoosts adds the configured boost to every retained bundle
// partner and records the trace on the partner's breakdown.
func applyBundleBoosts(scored []*ScoredInstruction) {
	byNorm := make(map[string]*ScoredInstruction, len(scored))
	for _, si := range scored {
		byNorm[normalizeID(si.Instruction.ID)] = si
		byNorm[normalizeID(si.Instruction.NormalizedID())] = si
	}

	for _, si := range scored {
		for _, form := range []string{si.Instruction.ID, si.Instruction.NormalizedID()} {
			for _, partner := range patterns.BundlePartners(normalizeID(form)) {
				target, ok := byNorm[normalizeID(partner.ID)]
				if !ok || target == si {
					continue
				}
				if _, already := target.Breakdown["bundle_boost"]; already {
					continue
				}
				target.Score += float64(partner.Boost)
				target.Breakdown["bundle_boost"] = map[string]interface{}{
					"partner": si.Instruction.ID,
					"boost":   partner.Boost,
					"co_rate": partner.CoRate,
				}
			}
		}
	}
}

// buildProceduralWarning scans the final list for procedural
// instructions. A warning fires only for instructions scoring at or
// above the threshold or added as foundational.
func buildProceduralWarning(final []ScoredInstruction, foundationalIDs map[string]bool) *ProceduralWarning {
	var items []ProceduralWarningItem
	for _, si := range final {
		inst := si.Instruction
		procedural := inst.Procedural ||
			patterns.IsProceduralBody(inst.Body) ||
			patterns.IsProceduralDescription(inst.Description)
		if !procedural {
			continue
		}
		if si.Score < proceduralThreshold && !foundationalIDs[inst.ID] {
			continue
		}
		items = append(items, ProceduralWarningItem{
			ID:            inst.ID,
			ReferencedDoc: patterns.ReferencedDoc(inst.Body),
			Note:          "read the instruction file before acting; do not execute this procedure from memory",
		})
	}
	if len(items) == 0 {
		return nil
	}
	return &ProceduralWarning{
		Message: "Procedural instructions routed: read each referenced file before executing.",
		Items:   items,
	}
}

// buildGuidanceAction constructs the blocking directive emitted when
// guidance detection fires.
func buildGuidanceAction(message, guidanceType string, ctx *Context) *GuidanceAction {
	return &GuidanceAction{
		Action:       "capture_guidance",
		Directive:    "Invoke capture_guidance with the detected guidance before doing any other work.",
		GuidanceType: guidanceType,
		Parameters: map[string]interface{}{
			"content":       message,
			"guidance_type": guidanceType,
			"context":       ctx.Raw,
		},
		Rationale: "The message contains standing guidance that must be captured so future sessions honor it.",
	}
}

// normalizeID reduces an id to the category/stem form used by bundles
// and look-back: lowercased, .instructions(.md) suffix stripped.
func normalizeID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	id = strings.TrimSuffix(id, ".md")
	id = strings.TrimSuffix(id, ".instructions")
	return id
}

func (e *durian06) enabledFeatures() []string {
	var on []string
	for _, f := range durian06Flags {
		if e.features[f.Name] {
			on = append(on, f.Name)
		}
	}
	return on
}

func preview(message string) string {
	const max = 60
	trimmed := strings.TrimSpace(message)
	if len(trimmed) <= max {
		return trimmed
	}
	return trimmed[:max] + "..."
}

func frustrationLevel(frictionType string) string {
	switch frictionType {
	case patterns.FrictionRejection:
		return "high"
	case patterns.FrictionRetry:
		return "elevated"
	case patterns.FrictionCorrection:
		return "low"
	default:
		return "none"
	}
}
