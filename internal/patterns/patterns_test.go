package patterns

import (
	"reflect"
	"testing"
)

func TestEvaluateApproval(t *testing.T) {
	tests := []struct {
		name         string
		message      string
		suppress     bool
		reason       string
		commencement bool
	}{
		{name: "exact phrase", message: "Thanks!", suppress: true, reason: ReasonExactApproval},
		{name: "exact phrase lgtm", message: "LGTM", suppress: true, reason: ReasonExactApproval},
		{name: "short with approval word", message: "great stuff here", suppress: true, reason: ReasonShortApproval},
		{name: "approval dominated", message: "ok ok fine thanks done", suppress: true, reason: ReasonApprovalDominated},
		{name: "commencement overrides approval", message: "Yes, let's continue", commencement: true},
		{name: "commencement prefix", message: "continue with the refactor", commencement: true},
		{name: "real question", message: "How do I configure the database connection pool?"},
		{name: "long message with thanks", message: "thanks, but the connection pool still leaks under load and I need a fix"},
		{name: "empty", message: "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := EvaluateApproval(tt.message)
			if dec.Suppress != tt.suppress {
				t.Errorf("Suppress = %v, want %v", dec.Suppress, tt.suppress)
			}
			if dec.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q", dec.Reason, tt.reason)
			}
			if dec.Commencement != tt.commencement {
				t.Errorf("Commencement = %v, want %v", dec.Commencement, tt.commencement)
			}
		})
	}
}

func TestDetectViolationSignals(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    []string
	}{
		{
			name:    "plain violation word",
			message: "you completely ignored my instructions",
			want:    []string{"violation_word:ignored"},
		},
		{
			name:    "emphasized never at sentence start",
			message: "Never do that again",
			want:    []string{"emphasis:never"},
		},
		{
			name:    "caps words counted",
			message: "DO NOT touch the PROD database",
			// "DO" and "NOT" and "PROD" are caps; "not" is an emphasis word in caps
			want: []string{"emphasis:not", "caps_words"},
		},
		{
			name:    "no signals",
			message: "please add a helper for parsing timestamps",
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectViolationSignals(tt.message)
			if !sameStringSet(got, tt.want) {
				t.Errorf("signals = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDetectViolationSignals_ExclamationDensity(t *testing.T) {
	got := DetectViolationSignals("fix it!!! now")
	found := false
	for _, s := range got {
		if s == "exclamation_density" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected exclamation_density in %v", got)
	}
}

func TestDetectFrictionPriority(t *testing.T) {
	tests := []struct {
		message string
		want    string
	}{
		{"no, stop doing that and revert", FrictionRejection},
		{"try again, it still doesn't compile", FrictionRetry},
		{"actually, I meant the other config file", FrictionCorrection},
		// rejection outranks retry when both match
		{"no, stop. try again from scratch", FrictionRejection},
		{"please add logging to the reload path", ""},
	}

	for _, tt := range tests {
		if got := DetectFriction(tt.message); got != tt.want {
			t.Errorf("DetectFriction(%q) = %q, want %q", tt.message, got, tt.want)
		}
	}
}

func TestDetectGuidance(t *testing.T) {
	tests := []struct {
		message string
		want    string
	}{
		{"Always run the linter before committing", GuidanceExplicit},
		{"from now on use table-driven tests", GuidanceExplicit},
		{"I prefer short functions", GuidanceImplicit},
		{"next time check the error return", GuidanceImplicit},
		// explicit outranks implicit
		{"I prefer that you always validate inputs", GuidanceExplicit},
		{"add a retry to the fetcher", ""},
	}

	for _, tt := range tests {
		if got := DetectGuidance(tt.message); got != tt.want {
			t.Errorf("DetectGuidance(%q) = %q, want %q", tt.message, got, tt.want)
		}
	}
}

func TestDetectMistake(t *testing.T) {
	tests := []struct {
		message   string
		wantType  string
		wantFiles []string
	}{
		{
			message:   "you broke the build because you didn't test the change",
			wantType:  "skipped_verification",
			wantFiles: []string{"development_workflow_essentials"},
		},
		{
			message:   "you deleted config.yaml without asking",
			wantType:  "destructive_without_confirmation",
			wantFiles: []string{"destructive_operation_gates"},
		},
		{
			message:   "why did you change the router? that's more than I asked for",
			wantType:  "scope_creep",
			wantFiles: []string{"trust_based_task_execution"},
		},
		{
			message:  "please document the new endpoint",
			wantType: "",
		},
	}

	for _, tt := range tests {
		gotType, gotFiles := DetectMistake(tt.message)
		if gotType != tt.wantType {
			t.Errorf("DetectMistake(%q) type = %q, want %q", tt.message, gotType, tt.wantType)
		}
		if tt.wantFiles != nil && !reflect.DeepEqual(gotFiles, tt.wantFiles) {
			t.Errorf("DetectMistake(%q) files = %v, want %v", tt.message, gotFiles, tt.wantFiles)
		}
	}
}

func TestDetectSemanticFlags(t *testing.T) {
	hits := DetectSemanticFlags("add unit tests for the security module before the commit")
	groups := make(map[string]int)
	for _, h := range hits {
		groups[h.Group] = h.BoostAmount
	}

	if groups["testing"] != 10 {
		t.Errorf("testing boost = %d, want 10", groups["testing"])
	}
	if groups["security"] != 15 {
		t.Errorf("security boost = %d, want 15", groups["security"])
	}
	if groups["git_workflow"] != 8 {
		t.Errorf("git_workflow boost = %d, want 8", groups["git_workflow"])
	}
	if _, ok := groups["documentation"]; ok {
		t.Error("documentation group should not match")
	}
}

func TestProceduralDetection(t *testing.T) {
	body := "This is a compliance gate: Read docs/safety/destructive-operations.md before any destructive action."
	if !IsProceduralBody(body) {
		t.Error("compliance gate body should be procedural")
	}
	if doc := ReferencedDoc(body); doc != "docs/safety/destructive-operations.md" {
		t.Errorf("ReferencedDoc = %q", doc)
	}

	if IsProceduralBody("Background on how the scheduler allocates workers.") {
		t.Error("plain prose should not be procedural")
	}
	if !IsProceduralDescription("Pre-flight checklist for releases") {
		t.Error("checklist description should be procedural")
	}
}

func TestBundlePartners(t *testing.T) {
	partners := BundlePartners("trust_execution/development_workflow_essentials")
	if len(partners) != 1 {
		t.Fatalf("expected 1 partner, got %d", len(partners))
	}
	if partners[0].ID != "trust_execution/trust_based_task_execution" {
		t.Errorf("partner = %q", partners[0].ID)
	}
	if partners[0].Boost != 12 {
		t.Errorf("boost = %d, want 12", partners[0].Boost)
	}

	if BundlePartners("nonexistent/id") != nil {
		t.Error("unknown id should have no partners")
	}
}

func sameStringSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, s := range a {
		set[s] = true
	}
	for _, s := range b {
		if !set[s] {
			return false
		}
	}
	return true
}
