// Package routing implements the versioned scoring engines that turn a
// user message plus contextual signals into a ranked, bounded set of
// instructions and a small set of action directives. Engines register
// themselves at init; the factory validates configuration against each
// engine's declared feature flags.
package routing

import (
	"pongogo/internal/knowledge"
)

// Context carries the optional signals accompanying a route request.
type Context struct {
	// Files open or touched in the caller's session, matched against
	// instruction globs and contextual file patterns.
	Files []string

	// Branch is the caller's current VCS branch.
	Branch string

	// Language hints the dominant language of the session.
	Language string

	// SessionID correlates routing events across a conversation.
	SessionID string

	// PreviousRouting, when supplied, overrides the event-store lookup
	// for commencement look-back.
	PreviousRouting []string

	// FrictionWatch enables the friction_risk_watch attachment.
	FrictionWatch bool

	// Raw is the untyped context snapshot persisted with the event.
	Raw map[string]interface{}
}

// ScoredInstruction pairs an instruction with its score and the
// per-signal breakdown recorded for the diagnostic trace.
type ScoredInstruction struct {
	Instruction *knowledge.Instruction
	Score       float64
	Breakdown   map[string]interface{}
}

// GuidanceAction instructs the caller to invoke a tool before any other
// work. It is the only blocking directive.
type GuidanceAction struct {
	Action       string                 `json:"action"`
	Directive    string                 `json:"directive"`
	Parameters   map[string]interface{} `json:"parameters"`
	Rationale    string                 `json:"rationale"`
	GuidanceType string                 `json:"guidance_type"`
}

// ProceduralWarningItem describes one procedural instruction in the
// routed set.
type ProceduralWarningItem struct {
	ID            string `json:"id"`
	ReferencedDoc string `json:"referenced_doc,omitempty"`
	Note          string `json:"note"`
}

// ProceduralWarning advises the caller to read the instruction files
// rather than execute from memory.
type ProceduralWarning struct {
	Message string                  `json:"message"`
	Items   []ProceduralWarningItem `json:"items"`
}

// FrictionRiskWatch is attached when the upstream caller enables
// monitoring.
type FrictionRiskWatch struct {
	Enabled          bool   `json:"enabled"`
	GuidanceType     string `json:"guidance_type,omitempty"`
	EchoDetected     bool   `json:"echo_detected"`
	FrustrationLevel string `json:"frustration_level"`
}

// Result is the routing outcome for one request.
type Result struct {
	Instructions []ScoredInstruction
	Count        int
	Analysis     map[string]interface{}

	GuidanceAction      *GuidanceAction
	ProceduralWarning   *ProceduralWarning
	FrictionRiskWatch   *FrictionRiskWatch
	PromotedDiscoveries []string
}

// emptyResult builds a zero-instruction result carrying the given
// analysis fields.
func emptyResult(analysis map[string]interface{}) *Result {
	return &Result{Instructions: nil, Count: 0, Analysis: analysis}
}

// FeatureFlag describes one engine toggle.
type FeatureFlag struct {
	Name        string
	Description string
	Default     bool
	Category    string
}

// Router is a versioned scoring pipeline.
type Router interface {
	// Version returns the engine version string
	// (durian-<major>.<minor>[.<patch>][-dev]).
	Version() string

	// Description summarizes the engine for diagnostics.
	Description() string

	// Features enumerates the flags this engine accepts.
	Features() []FeatureFlag

	// Route transforms a message and optional context into a ranked,
	// bounded instruction set plus directives. The result is
	// deterministic for a given (message, context, store, features).
	Route(message string, ctx *Context, limit int) *Result
}

// EventSource supplies previously routed ids for commencement look-back.
// *store.Substrate satisfies it; nil disables the DB-backed path.
type EventSource interface {
	PreviousRoutedIDs(offset int) ([]string, error)
}

// Deps carries the collaborators an engine constructor receives.
type Deps struct {
	Store  *knowledge.Store
	Events EventSource
}

// defaults materializes an engine's declared defaults, overlaid with the
// caller's explicit feature settings (already validated by the factory).
func defaults(flags []FeatureFlag, overrides map[string]bool) map[string]bool {
	out := make(map[string]bool, len(flags))
	for _, f := range flags {
		out[f.Name] = f.Default
	}
	for name, v := range overrides {
		out[name] = v
	}
	return out
}
