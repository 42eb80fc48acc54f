package knowledge

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
)

func coreFixture() fstest.MapFS {
	return fstest.MapFS{
		"core/base.instructions.md": &fstest.MapFile{Data: []byte(`---
id: core/base
description: Baseline operating rules
foundational: true
---
Always loaded.
`)},
		"trust_execution/trust_based_task_execution.instructions.md": &fstest.MapFile{Data: []byte(`---
id: trust_execution/trust_based_task_execution
description: Execute approved tasks without re-confirming
tags:
  - trust
---
Trust content.
`)},
	}
}

func writeUserInstruction(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadCoreAndUser(t *testing.T) {
	root := t.TempDir()
	writeUserInstruction(t, root, "backend/api_design.instructions.md", `---
id: backend/api_design
description: REST conventions
---
Use plural nouns.
`)

	s, err := Load(coreFixture(), root)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if s.Count() != 3 {
		t.Fatalf("Count = %d, want 3", s.Count())
	}
	if !s.IsProtected("core/base") {
		t.Error("core/base should be protected")
	}
	if s.IsProtected("backend/api_design") {
		t.Error("user instruction should not be protected")
	}
	if err := s.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestProtectedShadowingSkipped(t *testing.T) {
	root := t.TempDir()
	writeUserInstruction(t, root, "core/base.instructions.md", `---
id: core/base
description: malicious override
---
Shadow attempt.
`)

	s, err := Load(coreFixture(), root)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	inst := s.ByID("core/base")
	if inst == nil {
		t.Fatal("core/base missing")
	}
	if !inst.Protected {
		t.Error("protected flag lost")
	}
	if inst.Description != "Baseline operating rules" {
		t.Errorf("core instruction was shadowed: %q", inst.Description)
	}
	if s.Count() != 2 {
		t.Errorf("Count = %d, want 2 (shadow skipped)", s.Count())
	}
}

func TestLoadMissingUserRoot(t *testing.T) {
	s, err := Load(coreFixture(), filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("missing user root must not be fatal: %v", err)
	}
	if s.Count() != 2 {
		t.Errorf("Count = %d, want core only", s.Count())
	}
}

func TestGet(t *testing.T) {
	root := t.TempDir()
	writeUserInstruction(t, root, "backend/api_design.instructions.md", `---
id: backend/api_design
---
Content.
`)
	s, err := Load(coreFixture(), root)
	if err != nil {
		t.Fatal(err)
	}

	if inst := s.Get("backend", "api_design", false); inst == nil {
		t.Error("category/name lookup failed")
	}
	if inst := s.Get("", "backend/api_design", true); inst == nil {
		t.Error("full-id lookup failed")
	}
	if inst := s.Get("wrong_category", "api_design", true); inst != nil {
		t.Error("exact lookup should not cross categories")
	}
	// non-exact resolves by file stem and parent directory.
	if inst := s.Get("backend", "api_design", false); inst == nil || inst.ID != "backend/api_design" {
		t.Error("fuzzy stem lookup failed")
	}
}

func TestSearchScoring(t *testing.T) {
	root := t.TempDir()
	writeUserInstruction(t, root, "backend/api_design.instructions.md", `---
id: backend/api_design
description: REST API conventions
tags:
  - rest
---
Endpoints should version their payloads.
`)
	s, err := Load(coreFixture(), root)
	if err != nil {
		t.Fatal(err)
	}

	results := s.Search("api", 10)
	if len(results) == 0 {
		t.Fatal("no results")
	}
	top := results[0]
	if top.Instruction.ID != "backend/api_design" {
		t.Errorf("top = %q", top.Instruction.ID)
	}
	// id (+10) and description (+8) both contain "api".
	if top.Score < 18 {
		t.Errorf("score = %d, want >= 18", top.Score)
	}

	bodyHits := s.Search("payloads", 10)
	if len(bodyHits) != 1 || bodyHits[0].Snippet == "" {
		t.Errorf("body match should carry a snippet: %+v", bodyHits)
	}

	if got := s.Search("api", 0); len(got) == 0 {
		t.Error("zero limit should fall back to default")
	}
}

func TestFoundational(t *testing.T) {
	s, err := Load(coreFixture(), "")
	if err != nil {
		t.Fatal(err)
	}
	found := s.Foundational()
	if len(found) != 1 || found[0].ID != "core/base" {
		t.Errorf("Foundational = %v", found)
	}
}

func TestCategories(t *testing.T) {
	root := t.TempDir()
	writeUserInstruction(t, root, "backend/api_design.instructions.md", "content")
	s, err := Load(coreFixture(), root)
	if err != nil {
		t.Fatal(err)
	}

	cats := s.Categories()
	want := map[string]bool{"core": true, "trust_execution": true, "backend": true}
	for _, c := range cats {
		if !want[c] {
			t.Errorf("unexpected category %q", c)
		}
		delete(want, c)
	}
	if len(want) != 0 {
		t.Errorf("missing categories: %v", want)
	}
}
