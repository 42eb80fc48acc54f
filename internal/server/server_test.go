package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fsnotify/fsnotify"
)

// runRequests feeds newline-delimited requests through a server and
// returns the decoded responses in order.
func runRequests(t *testing.T, rt *Runtime, requests ...string) []map[string]interface{} {
	t.Helper()

	in := strings.NewReader(strings.Join(requests, "\n") + "\n")
	var out bytes.Buffer

	srv := NewServer(rt, in, &out)
	if err := srv.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	var responses []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		var resp map[string]interface{}
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			t.Fatalf("invalid response line %q: %v", line, err)
		}
		responses = append(responses, resp)
	}
	return responses
}

// toolPayload unpacks the content envelope of a tools/call response.
func toolPayload(t *testing.T, resp map[string]interface{}) map[string]interface{} {
	t.Helper()
	result, ok := resp["result"].(map[string]interface{})
	if !ok {
		t.Fatalf("no result in %v", resp)
	}
	content, ok := result["content"].([]interface{})
	if !ok || len(content) == 0 {
		t.Fatalf("no content in %v", result)
	}
	text := content[0].(map[string]interface{})["text"].(string)

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		t.Fatalf("tool payload is not JSON: %v\n%s", err, text)
	}
	return payload
}

func TestInitializeHandshake(t *testing.T) {
	rt, _, _ := newTestRuntime(t)

	responses := runRequests(t, rt,
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"ping"}`,
	)

	// The notification produces no response line.
	if len(responses) != 2 {
		t.Fatalf("responses = %d, want 2", len(responses))
	}

	result := responses[0]["result"].(map[string]interface{})
	if result["protocolVersion"] != protocolVersion {
		t.Errorf("protocolVersion = %v", result["protocolVersion"])
	}
	info := result["serverInfo"].(map[string]interface{})
	if info["name"] != "pongogo" {
		t.Errorf("serverInfo = %v", info)
	}
}

func TestToolsList(t *testing.T) {
	rt, _, _ := newTestRuntime(t)

	responses := runRequests(t, rt,
		`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`,
	)
	result := responses[0]["result"].(map[string]interface{})
	tools := result["tools"].([]interface{})

	names := make(map[string]bool)
	for _, tool := range tools {
		names[tool.(map[string]interface{})["name"].(string)] = true
	}
	for _, want := range []string{"get_instructions", "search_instructions", "route_instructions", "reindex_knowledge_base"} {
		if !names[want] {
			t.Errorf("missing tool %q in %v", want, names)
		}
	}
	if _, ok := result["status"]; !ok {
		t.Error("tools/list should carry runtime status")
	}
}

func TestGetInstructionsTool(t *testing.T) {
	rt, _, _ := newTestRuntime(t)

	responses := runRequests(t, rt,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_instructions","arguments":{"category":"core","topic":"base"}}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"get_instructions","arguments":{"category":"trust_execution"}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"get_instructions","arguments":{}}}`,
	)

	single := toolPayload(t, responses[0])
	if single["query"] != "base" {
		t.Errorf("query = %v", single["query"])
	}
	if single["count"].(float64) != 1 {
		t.Fatalf("topic lookup count = %v", single["count"])
	}
	inst := single["instructions"].([]interface{})[0].(map[string]interface{})
	if inst["id"] != "core/base" {
		t.Errorf("id = %v", inst["id"])
	}
	if inst["content"] == "" {
		t.Error("topic lookup should include content")
	}

	listing := toolPayload(t, responses[1])
	if listing["count"].(float64) != 2 {
		t.Errorf("trust_execution count = %v", listing["count"])
	}
	if listing["query"] != "trust_execution" {
		t.Errorf("query = %v", listing["query"])
	}

	all := toolPayload(t, responses[2])
	if all["count"].(float64) != coreCount {
		t.Errorf("total count = %v", all["count"])
	}
	if len(all["instructions"].([]interface{})) != coreCount {
		t.Errorf("instructions = %v", all["instructions"])
	}
}

func TestGetInstructionsMiss(t *testing.T) {
	rt, _, _ := newTestRuntime(t)

	responses := runRequests(t, rt,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_instructions","arguments":{"category":"nope","topic":"missing"}}}`,
	)

	// A miss is an empty listing, not an error.
	result := responses[0]["result"].(map[string]interface{})
	if result["isError"] == true {
		t.Fatalf("lookup miss should not be a tool error: %v", result)
	}
	payload := toolPayload(t, responses[0])
	if payload["count"].(float64) != 0 {
		t.Errorf("count = %v, want 0", payload["count"])
	}
	if len(payload["instructions"].([]interface{})) != 0 {
		t.Errorf("instructions = %v, want empty", payload["instructions"])
	}
}

func TestRouteInstructionsTool(t *testing.T) {
	rt, _, _ := newTestRuntime(t)

	req := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"route_instructions","arguments":{"message":"you skipped verification and broke the workflow","limit":3,"context":{"session_id":"s3"}}}}`
	responses := runRequests(t, rt, req)

	payload := toolPayload(t, responses[0])
	if payload["routing_engine_version"] == "" {
		t.Error("routing_engine_version missing")
	}
	if _, ok := payload["routing_analysis"]; !ok {
		t.Error("routing_analysis missing")
	}
	instructions := payload["instructions"].([]interface{})
	if len(instructions) == 0 {
		t.Fatal("no instructions routed")
	}
	// Foundational core/base leads the list.
	first := instructions[0].(map[string]interface{})
	if first["id"] != "core/base" {
		t.Errorf("first = %v", first["id"])
	}
}

func TestReindexThrottled(t *testing.T) {
	rt, _, _ := newTestRuntime(t)

	responses := runRequests(t, rt,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"reindex_knowledge_base","arguments":{}}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"reindex_knowledge_base","arguments":{}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"reindex_knowledge_base","arguments":{"force":true}}}`,
	)

	first := toolPayload(t, responses[0])
	if first["success"] != true || first["skipped"] == true {
		t.Errorf("first reindex should run: %v", first)
	}
	if first["new_count"].(float64) != coreCount {
		t.Errorf("new_count = %v", first["new_count"])
	}
	if first["engine"] != rt.EngineVersion() {
		t.Errorf("engine = %v, want %s", first["engine"], rt.EngineVersion())
	}

	second := toolPayload(t, responses[1])
	if second["success"] == true || second["skipped"] != true {
		t.Fatalf("second reindex should be throttled: %v", second)
	}
	if second["reason"] != "spam_prevention" {
		t.Errorf("reason = %v", second["reason"])
	}
	if second["wait_seconds"].(float64) <= 0 {
		t.Errorf("wait_seconds = %v", second["wait_seconds"])
	}

	// force bypasses the floor.
	forced := toolPayload(t, responses[2])
	if forced["success"] != true || forced["skipped"] == true {
		t.Errorf("forced reindex should run: %v", forced)
	}
}

func TestResourcesRead(t *testing.T) {
	rt, _, _ := newTestRuntime(t)

	responses := runRequests(t, rt,
		fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"resources/read","params":{"uri":"%score/base"}}`, resourceScheme),
		`{"jsonrpc":"2.0","id":2,"method":"resources/read","params":{"uri":"instruction://pongogo/nope/missing"}}`,
	)

	result := responses[0]["result"].(map[string]interface{})
	contents := result["contents"].([]interface{})
	if len(contents) != 1 {
		t.Fatalf("contents = %v", contents)
	}
	body := contents[0].(map[string]interface{})["text"].(string)
	if body == "" {
		t.Error("resource body empty")
	}

	if responses[1]["error"] == nil {
		t.Error("missing resource should be a JSON-RPC error")
	}
}

func TestUnknownMethodAndParseError(t *testing.T) {
	rt, _, _ := newTestRuntime(t)

	responses := runRequests(t, rt,
		`{"jsonrpc":"2.0","id":1,"method":"frobnicate"}`,
		`this is not json`,
		`{"jsonrpc":"2.0","id":2,"method":"ping"}`,
	)

	if len(responses) != 3 {
		t.Fatalf("responses = %d, want 3 (loop must survive bad input)", len(responses))
	}

	errObj := responses[0]["error"].(map[string]interface{})
	if errObj["code"].(float64) != codeMethodNotFound {
		t.Errorf("code = %v", errObj["code"])
	}

	parseErr := responses[1]["error"].(map[string]interface{})
	if parseErr["code"].(float64) != codeParseError {
		t.Errorf("code = %v", parseErr["code"])
	}

	if responses[2]["result"] == nil {
		t.Error("server should keep serving after a parse error")
	}
}

func TestWatcherEventFilter(t *testing.T) {
	rt, _, root := newTestRuntime(t)
	w, err := NewWatcher(rt, root)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	instruction := filepath.Join(root, "backend", "api.instructions.md")
	writeInstruction(t, root, filepath.Join("backend", "api.instructions.md"), "content")

	tests := []struct {
		name string
		ev   fsnotify.Event
		want bool
	}{
		{"instruction write", fsnotify.Event{Name: instruction, Op: fsnotify.Write}, true},
		{"instruction remove", fsnotify.Event{Name: instruction, Op: fsnotify.Remove}, true},
		{"unrelated file", fsnotify.Event{Name: filepath.Join(root, "notes.txt"), Op: fsnotify.Write}, false},
		{"chmod only", fsnotify.Event{Name: instruction, Op: fsnotify.Chmod}, false},
		{"directory create", fsnotify.Event{Name: filepath.Join(root, "backend"), Op: fsnotify.Create}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := w.relevant(tt.ev); got != tt.want {
				t.Errorf("relevant = %v, want %v", got, tt.want)
			}
		})
	}
}
