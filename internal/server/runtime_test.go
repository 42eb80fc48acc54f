package server

import (
	"os"
	"path/filepath"
	"testing"

	"pongogo/internal/config"
	"pongogo/internal/knowledge"
	"pongogo/internal/routing"
	"pongogo/internal/store"
)

// coreCount is the size of the bundled protected core.
const coreCount = 4

func newTestRuntime(t *testing.T) (*Runtime, *store.Substrate, string) {
	t.Helper()

	knowledgeRoot := t.TempDir()
	cfg := &config.Config{}
	cfg.Knowledge.Path = knowledgeRoot
	cfg.Server.LogLevel = "info"

	sub, err := store.Open(filepath.Join(t.TempDir(), "pongogo.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sub.Close() })

	rt, err := NewRuntime(cfg, sub)
	if err != nil {
		t.Fatalf("NewRuntime failed: %v", err)
	}
	return rt, sub, knowledgeRoot
}

func writeInstruction(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRuntimeLoadsBundledCore(t *testing.T) {
	rt, _, _ := newTestRuntime(t)

	st := rt.Store()
	if st.Count() != coreCount {
		t.Errorf("Count = %d, want %d bundled instructions", st.Count(), coreCount)
	}
	if !st.IsProtected("core/base") {
		t.Error("core/base must be protected")
	}
	if rt.EngineVersion() != routing.Durian06Version {
		t.Errorf("EngineVersion = %q", rt.EngineVersion())
	}
}

func TestManualReloadFloor(t *testing.T) {
	rt, _, _ := newTestRuntime(t)

	first, err := rt.Reload(false)
	if err != nil {
		t.Fatal(err)
	}
	if first.Skipped || !first.Success {
		t.Fatalf("first manual reload skipped: %+v", first)
	}
	if first.OldCount != coreCount || first.NewCount != coreCount {
		t.Errorf("counts = %d -> %d, want %d -> %d", first.OldCount, first.NewCount, coreCount, coreCount)
	}
	if first.Engine != routing.Durian06Version {
		t.Errorf("Engine = %q", first.Engine)
	}

	second, err := rt.Reload(false)
	if err != nil {
		t.Fatal(err)
	}
	if !second.Skipped || second.Success {
		t.Fatalf("second manual reload inside the floor should be skipped: %+v", second)
	}
	if second.Reason != "spam_prevention" {
		t.Errorf("Reason = %q", second.Reason)
	}
	if second.WaitSeconds <= 0 || second.WaitSeconds > 10 {
		t.Errorf("WaitSeconds = %v", second.WaitSeconds)
	}

	// Forced reloads bypass the floor.
	forced, err := rt.Reload(true)
	if err != nil {
		t.Fatal(err)
	}
	if forced.Skipped || !forced.Success {
		t.Error("forced reload must not be throttled")
	}
}

func TestReloadPicksUpNewInstruction(t *testing.T) {
	rt, _, root := newTestRuntime(t)

	writeInstruction(t, root, "backend/api_design.instructions.md", `---
id: backend/api_design
description: REST conventions
---
Use plural nouns.
`)

	outcome, err := rt.Reload(true)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.OldCount != coreCount || outcome.NewCount != coreCount+1 {
		t.Errorf("counts = %d -> %d, want %d -> %d",
			outcome.OldCount, outcome.NewCount, coreCount, coreCount+1)
	}
	if got := rt.Store().Count(); got != coreCount+1 {
		t.Errorf("Count after reload = %d, want %d", got, coreCount+1)
	}
	if rt.Store().ByID("backend/api_design") == nil {
		t.Error("new instruction not indexed")
	}
}

func TestRouteCapturesEvent(t *testing.T) {
	rt, sub, _ := newTestRuntime(t)

	result := rt.Route("you skipped the tests and broke the build", &routing.Context{SessionID: "s1"}, 5)
	if result == nil {
		t.Fatal("nil result")
	}

	count, err := sub.EventCount()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("EventCount = %d, want 1", count)
	}

	ev, err := sub.LastEvent()
	if err != nil {
		t.Fatal(err)
	}
	if ev.EngineVer != routing.Durian06Version {
		t.Errorf("EngineVer = %q", ev.EngineVer)
	}
	if ev.SessionID != "s1" {
		t.Errorf("SessionID = %q", ev.SessionID)
	}
}

func TestRouteRecordsGuidanceFulfillment(t *testing.T) {
	rt, sub, _ := newTestRuntime(t)

	result := rt.Route("From now on, always run the workflow checks before committing",
		&routing.Context{SessionID: "s2"}, 5)
	if result.GuidanceAction == nil {
		t.Fatal("expected guidance action")
	}

	pending, err := sub.PendingGuidance("s2")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Errorf("pending guidance = %d, want 1", len(pending))
	}
}

func TestRouteAutoPromotesArtifacts(t *testing.T) {
	rt, sub, root := newTestRuntime(t)

	if _, _, err := sub.InsertArtifact(&store.Artifact{
		SourcePath:   "README.md",
		SourceType:   "readme",
		SectionTitle: "Deployment",
		Section:      "Run make deploy after the tests pass.",
		Keywords:     []string{"deployment"},
	}); err != nil {
		t.Fatal(err)
	}

	// The message must route at least one instruction for promotion to run.
	result := rt.Route("the deployment workflow keeps failing, verify it", nil, 5)
	if len(result.PromotedDiscoveries) != 1 {
		t.Fatalf("PromotedDiscoveries = %v", result.PromotedDiscoveries)
	}

	path := filepath.Join(root, "discoveries", "deployment"+knowledge.InstructionSuffix)
	if _, err := os.Stat(path); err != nil {
		t.Errorf("synthesized instruction missing: %v", err)
	}

	// Visible after the next reload, not before.
	if rt.Store().ByID("discoveries/deployment") != nil {
		t.Error("promotion must not mutate the live snapshot")
	}
	if _, err := rt.Reload(true); err != nil {
		t.Fatal(err)
	}
	if rt.Store().ByID("discoveries/deployment") == nil {
		t.Error("promoted instruction not visible after reload")
	}
}

func TestRoutePromotesWithoutRoutedInstructions(t *testing.T) {
	cfg := &config.Config{}
	cfg.Knowledge.Path = t.TempDir()
	cfg.Routing.Features = map[string]bool{"foundational": false}

	sub, err := store.Open(filepath.Join(t.TempDir(), "pongogo.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sub.Close() })

	rt, err := NewRuntime(cfg, sub)
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := sub.InsertArtifact(&store.Artifact{
		SourcePath:   "README.md",
		SourceType:   "readme",
		SectionTitle: "Deployment",
		Section:      "Run make deploy after the tests pass.",
		Keywords:     []string{"deployment"},
	}); err != nil {
		t.Fatal(err)
	}

	// Promotion keys on the message keywords alone; a keyword can match a
	// discovered artifact even when no instruction routes.
	result := rt.Route("the deployment cadence drifted", nil, 5)
	if result.Count != 0 {
		t.Fatalf("Count = %d, want 0 (no instruction matches)", result.Count)
	}
	if len(result.PromotedDiscoveries) != 1 {
		t.Errorf("PromotedDiscoveries = %v, want one promotion", result.PromotedDiscoveries)
	}
}

func TestStatusFields(t *testing.T) {
	rt, _, _ := newTestRuntime(t)

	status := rt.Status()
	if status["instructions"] != coreCount {
		t.Errorf("instructions = %v", status["instructions"])
	}
	if status["engine_version"] != routing.Durian06Version {
		t.Errorf("engine_version = %v", status["engine_version"])
	}
	for _, key := range []string{"version", "uptime_seconds", "last_reload", "routing_events"} {
		if _, ok := status[key]; !ok {
			t.Errorf("status missing %q: %v", key, status)
		}
	}
}

func TestRuntimeWithoutSubstrate(t *testing.T) {
	cfg := &config.Config{}
	cfg.Knowledge.Path = t.TempDir()

	rt, err := NewRuntime(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}

	// Routing still works; capture and promotion are silently disabled.
	result := rt.Route("fix the failing workflow tests", nil, 5)
	if result == nil || result.Count == 0 {
		t.Errorf("routing should work without persistence: %+v", result)
	}
}
