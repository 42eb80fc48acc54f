package knowledge

import (
	"reflect"
	"testing"
)

func TestParseFrontmatter(t *testing.T) {
	content := []byte(`---
id: trust_execution/trust_based_task_execution
version: "1.2"
description: Execute approved tasks without re-confirming
tags:
  - trust
  - execution
categories:
  - trust_execution
routing:
  applyTo:
    globs:
      - "**/*.go"
  triggers:
    keywords:
      - approval
    nlp:
      - "just do it"
  contextual:
    files:
      - "**/Makefile"
    branches:
      - "release/*"
foundational: false
custom_key: custom_value
---
# Trust-based execution

Body text here.
`)

	inst, err := Parse("trust_execution/trust_based_task_execution.instructions.md", content)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if inst.ID != "trust_execution/trust_based_task_execution" {
		t.Errorf("ID = %q", inst.ID)
	}
	if inst.Description != "Execute approved tasks without re-confirming" {
		t.Errorf("Description = %q", inst.Description)
	}
	if !reflect.DeepEqual(inst.Tags, []string{"trust", "execution"}) {
		t.Errorf("Tags = %v", inst.Tags)
	}
	if inst.Category() != "trust_execution" {
		t.Errorf("Category = %q", inst.Category())
	}
	if !reflect.DeepEqual(inst.Routing.Globs, []string{"**/*.go"}) {
		t.Errorf("Globs = %v", inst.Routing.Globs)
	}
	if !reflect.DeepEqual(inst.Routing.Keywords, []string{"approval"}) {
		t.Errorf("Keywords = %v", inst.Routing.Keywords)
	}
	if !reflect.DeepEqual(inst.Routing.ContextBranches, []string{"release/*"}) {
		t.Errorf("ContextBranches = %v", inst.Routing.ContextBranches)
	}
	if inst.Metadata["custom_key"] != "custom_value" {
		t.Errorf("unknown frontmatter key not preserved: %v", inst.Metadata)
	}
	if inst.Body == "" || inst.Body[0] != '#' {
		t.Errorf("Body lost: %q", inst.Body)
	}
}

func TestParseNormalization(t *testing.T) {
	content := []byte(`---
patterns:
  - error-handling
domains:
  - reliability
applies_to:
  - "**/*.go"
routing:
  applyTo:
    globs:
      - "**/*.go"
      - "**/*.py"
---
Content.
`)

	inst, err := Parse("development_standards/errors.instructions.md", content)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	// patterns stand in for tags when tags are absent.
	if !reflect.DeepEqual(inst.Tags, []string{"error-handling"}) {
		t.Errorf("Tags = %v, want patterns fallback", inst.Tags)
	}
	// directory category leads, domains follow.
	if !reflect.DeepEqual(inst.Categories, []string{"development_standards", "reliability"}) {
		t.Errorf("Categories = %v", inst.Categories)
	}
	// applies_to merges as a set union; no duplicate "**/*.go".
	if !reflect.DeepEqual(inst.Routing.Globs, []string{"**/*.go", "**/*.py"}) {
		t.Errorf("Globs = %v", inst.Routing.Globs)
	}
	// id defaults to the file stem.
	if inst.ID != "errors" {
		t.Errorf("ID = %q, want file stem", inst.ID)
	}
}

func TestParseNoFrontmatter(t *testing.T) {
	inst, err := Parse("notes/raw.instructions.md", []byte("Just Markdown, no header.\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if inst.ID != "raw" {
		t.Errorf("ID = %q", inst.ID)
	}
	if inst.Body != "Just Markdown, no header.\n" {
		t.Errorf("Body = %q", inst.Body)
	}
	if inst.Category() != "notes" {
		t.Errorf("Category = %q", inst.Category())
	}
}

func TestNormalizedID(t *testing.T) {
	inst, err := Parse("safety_prevention/destructive_operation_gates.instructions.md", []byte("body"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got := inst.NormalizedID(); got != "safety_prevention/destructive_operation_gates" {
		t.Errorf("NormalizedID = %q", got)
	}
}
