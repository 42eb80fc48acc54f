package server

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"pongogo/internal/config"
	"pongogo/internal/knowledge"
	"pongogo/internal/logging"
	"pongogo/internal/routing"
)

// protocolVersion is the wire protocol revision reported at initialize.
const protocolVersion = "2024-11-05"

// resourceScheme prefixes instruction resource URIs:
// instruction://pongogo/{category}/{name}.
const resourceScheme = "instruction://pongogo/"

// JSON-RPC 2.0 error codes.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Server is the line-delimited JSON-RPC 2.0 transport over stdio. Stdout
// carries exactly one JSON response per line and nothing else; all
// diagnostics go through the file logger.
type Server struct {
	runtime *Runtime

	in  io.Reader
	out io.Writer

	writeMu sync.Mutex
}

// NewServer wires the transport to a runtime. in/out are stdin/stdout in
// production; tests substitute buffers.
func NewServer(runtime *Runtime, in io.Reader, out io.Writer) *Server {
	return &Server{runtime: runtime, in: in, out: out}
}

// Run reads requests until EOF. Each line is one request; malformed lines
// produce a parse-error response rather than terminating the loop.
func (s *Server) Run() error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	logging.Server("Stdio transport ready (protocol %s)", protocolVersion)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req rpcRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeError(nil, codeParseError, fmt.Sprintf("parse error: %v", err))
			continue
		}

		// Notifications carry no id and get no response.
		if req.ID == nil {
			s.handleNotification(&req)
			continue
		}

		result, rpcErr := s.dispatch(&req)
		s.respond(&req, result, rpcErr)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stdin read failed: %w", err)
	}
	logging.Server("Stdin closed, transport shutting down")
	return nil
}

// dispatch routes one request. Handler panics become internal errors; the
// transport never dies on a single request.
func (s *Server) dispatch(req *rpcRequest) (result interface{}, rpcErr *rpcError) {
	defer func() {
		if r := recover(); r != nil {
			logging.Get(logging.CategoryServer).Error("Handler panic in %s: %v", req.Method, r)
			result = nil
			rpcErr = &rpcError{Code: codeInternalError, Message: "internal error"}
		}
	}()

	switch req.Method {
	case "initialize":
		return s.handleInitialize(), nil
	case "ping":
		return map[string]interface{}{}, nil
	case "tools/list":
		return s.handleToolsList(), nil
	case "tools/call":
		return s.handleToolsCall(req.Params)
	case "resources/list":
		return s.handleResourcesList(), nil
	case "resources/read":
		return s.handleResourcesRead(req.Params)
	default:
		return nil, &rpcError{Code: codeMethodNotFound, Message: fmt.Sprintf("unknown method %q", req.Method)}
	}
}

func (s *Server) handleNotification(req *rpcRequest) {
	switch req.Method {
	case "notifications/initialized":
		logging.Server("Client initialized")
	default:
		logging.Get(logging.CategoryServer).Debug("Ignoring notification %s", req.Method)
	}
}

func (s *Server) handleInitialize() map[string]interface{} {
	return map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]interface{}{
			"tools":     map[string]interface{}{},
			"resources": map[string]interface{}{},
		},
		"serverInfo": map[string]string{
			"name":    "pongogo",
			"version": config.Version(),
		},
	}
}

// =============================================================================
// TOOLS
// =============================================================================

func (s *Server) handleToolsList() map[string]interface{} {
	return map[string]interface{}{
		"tools": []map[string]interface{}{
			{
				"name":        "get_instructions",
				"description": "Fetch an instruction by topic, list a category, or list every instruction.",
				"inputSchema": objectSchema(map[string]interface{}{
					"topic":       map[string]interface{}{"type": "string"},
					"category":    map[string]interface{}{"type": "string"},
					"exact_match": map[string]interface{}{"type": "boolean"},
				}, nil),
			},
			{
				"name":        "search_instructions",
				"description": "Full-text search across instruction ids, descriptions, categories, tags, and bodies.",
				"inputSchema": objectSchema(map[string]interface{}{
					"query": map[string]interface{}{"type": "string"},
					"limit": map[string]interface{}{"type": "integer"},
				}, []string{"query"}),
			},
			{
				"name":        "route_instructions",
				"description": "Route a user message to the most relevant instructions with contextual boosting.",
				"inputSchema": objectSchema(map[string]interface{}{
					"message": map[string]interface{}{"type": "string"},
					"context": map[string]interface{}{"type": "object"},
					"limit":   map[string]interface{}{"type": "integer"},
				}, []string{"message"}),
			},
			{
				"name":        "reindex_knowledge_base",
				"description": "Manually reload the instruction store. Throttled unless force is set; the watcher reloads automatically on change.",
				"inputSchema": objectSchema(map[string]interface{}{
					"force": map[string]interface{}{"type": "boolean"},
				}, nil),
			},
		},
		"status": s.runtime.Status(),
	}
}

func (s *Server) handleToolsCall(params json.RawMessage) (interface{}, *rpcError) {
	var call struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(params, &call); err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid tools/call params: %v", err)}
	}

	var payload interface{}
	var err error
	switch call.Name {
	case "get_instructions":
		payload, err = s.toolGetInstructions(call.Arguments)
	case "search_instructions":
		payload, err = s.toolSearchInstructions(call.Arguments)
	case "route_instructions":
		payload, err = s.toolRouteInstructions(call.Arguments)
	case "reindex_knowledge_base":
		payload, err = s.toolReindex(call.Arguments)
	default:
		return nil, &rpcError{Code: codeInvalidParams, Message: fmt.Sprintf("unknown tool %q", call.Name)}
	}
	if err != nil {
		return toolError(err), nil
	}
	return toolResult(payload), nil
}

func (s *Server) toolGetInstructions(args json.RawMessage) (interface{}, error) {
	var in struct {
		Topic      string `json:"topic"`
		Category   string `json:"category"`
		ExactMatch bool   `json:"exact_match"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
	}

	st := s.runtime.Store()
	items := make([]map[string]interface{}, 0)
	query := in.Topic
	if query == "" {
		query = in.Category
	}
	if query == "" {
		query = "*"
	}

	switch {
	case in.Topic != "":
		// A miss is an empty list, not an error.
		if inst := st.Get(in.Category, in.Topic, in.ExactMatch); inst != nil {
			items = append(items, instructionPayload(inst, true))
		}
	case in.Category != "":
		for _, inst := range st.ByCategory(in.Category) {
			items = append(items, instructionPayload(inst, false))
		}
	default:
		for _, inst := range st.All() {
			items = append(items, instructionPayload(inst, false))
		}
	}

	return map[string]interface{}{
		"instructions": items,
		"count":        len(items),
		"query":        query,
	}, nil
}

func (s *Server) toolSearchInstructions(args json.RawMessage) (interface{}, error) {
	var in struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if strings.TrimSpace(in.Query) == "" {
		return nil, fmt.Errorf("query is required")
	}

	results := s.runtime.Store().Search(in.Query, in.Limit)
	items := make([]map[string]interface{}, 0, len(results))
	for _, res := range results {
		item := instructionPayload(res.Instruction, false)
		item["score"] = res.Score
		if res.Snippet != "" {
			item["snippet"] = res.Snippet
		}
		items = append(items, item)
	}
	return map[string]interface{}{
		"query":   in.Query,
		"results": items,
		"count":   len(items),
	}, nil
}

func (s *Server) toolRouteInstructions(args json.RawMessage) (interface{}, error) {
	var in struct {
		Message string `json:"message"`
		Limit   int    `json:"limit"`
		Context struct {
			Files		[]string	`json:"files"`
			Branch		string		`json:"branch"`
			Language	string		`json:"language"`
			SessionID	string		`json:"session_id"`
			PreviousRouting	[]string	`json:"previous_routing"`
			FrictionWatch	bool		`json:"friction_watch"`
		} `json:"context"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if strings.TrimSpace(in.Message) == "" {
		return nil, fmt.Errorf("message is required")
	}

	ctx := &routing.Context{
		Files:           in.Context.Files,
		Branch:          in.Context.Branch,
		Language:        in.Context.Language,
		SessionID:       in.Context.SessionID,
		PreviousRouting: in.Context.PreviousRouting,
		FrictionWatch:   in.Context.FrictionWatch,
	}
	// Preserve the untyped context snapshot for event capture.
	var rawArgs struct {
		Context map[string]interface{} `json:"context"`
	}
	if json.Unmarshal(args, &rawArgs) == nil {
		ctx.Raw = rawArgs.Context
	}

	result := s.runtime.Route(in.Message, ctx, in.Limit)

	instructions := make([]map[string]interface{}, 0, len(result.Instructions))
	for _, si := range result.Instructions {
		item := instructionPayload(si.Instruction, true)
		item["score"] = si.Score
		if len(si.Breakdown) > 0 {
			item["score_breakdown"] = si.Breakdown
		}
		instructions = append(instructions, item)
	}

	payload := map[string]interface{}{
		"instructions":           instructions,
		"count":                  result.Count,
		"routing_analysis":       result.Analysis,
		"routing_engine_version": s.runtime.EngineVersion(),
	}
	if result.GuidanceAction != nil {
		payload["guidance_action"] = result.GuidanceAction
	}
	if result.ProceduralWarning != nil {
		payload["procedural_warning"] = result.ProceduralWarning
	}
	if result.FrictionRiskWatch != nil {
		payload["friction_risk_watch"] = result.FrictionRiskWatch
	}
	if len(result.PromotedDiscoveries) > 0 {
		payload["promoted_discoveries"] = result.PromotedDiscoveries
	}
	return payload, nil
}

func (s *Server) toolReindex(args json.RawMessage) (interface{}, error) {
	var in struct {
		Force bool `json:"force"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
	}

	outcome, err := s.runtime.Reload(in.Force)
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// =============================================================================
// RESOURCES
// =============================================================================

func (s *Server) handleResourcesList() map[string]interface{} {
	st := s.runtime.Store()
	resources := make([]map[string]interface{}, 0, st.Count())
	for _, inst := range st.All() {
		resources = append(resources, map[string]interface{}{
			"uri":         resourceScheme + inst.NormalizedID(),
			"name":        inst.ID,
			"description": inst.Description,
			"mimeType":    "text/markdown",
		})
	}
	return map[string]interface{}{"resources": resources}
}

func (s *Server) handleResourcesRead(params json.RawMessage) (interface{}, *rpcError) {
	var in struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid resources/read params: %v", err)}
	}

	rest, ok := strings.CutPrefix(in.URI, resourceScheme)
	if !ok {
		return nil, &rpcError{Code: codeInvalidParams, Message: fmt.Sprintf("unsupported resource uri %q", in.URI)}
	}

	category, name := "", rest
	if idx := strings.LastIndex(rest, "/"); idx >= 0 {
		category, name = rest[:idx], rest[idx+1:]
	}

	inst := s.runtime.Store().Get(category, name, false)
	if inst == nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: fmt.Sprintf("resource not found: %s", in.URI)}
	}

	return map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"uri":      in.URI,
				"mimeType": "text/markdown",
				"text":     inst.Body,
			},
		},
	}, nil
}

// =============================================================================
// WIRE HELPERS
// =============================================================================

func (s *Server) respond(req *rpcRequest, result interface{}, rpcErr *rpcError) {
	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: result, Error: rpcErr}
	s.write(&resp)
}

func (s *Server) writeError(id json.RawMessage, code int, message string) {
	if id == nil {
		id = json.RawMessage("null")
	}
	s.write(&rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}})
}

func (s *Server) write(resp *rpcResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		logging.Get(logging.CategoryServer).Error("Failed to marshal response: %v", err)
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.out.Write(append(data, '\n')); err != nil {
		logging.Get(logging.CategoryServer).Error("Failed to write response: %v", err)
	}
}

// toolResult wraps a payload in the tools/call content envelope.
func toolResult(payload interface{}) map[string]interface{} {
	text, err := json.Marshal(payload)
	if err != nil {
		return toolError(fmt.Errorf("failed to encode result: %w", err))
	}
	return map[string]interface{}{
		"content": []map[string]interface{}{
			{"type": "text", "text": string(text)},
		},
	}
}

// toolError reports a tool-level failure as a result (JSON-RPC errors are
// reserved for transport problems).
func toolError(err error) map[string]interface{} {
	return map[string]interface{}{
		"content": []map[string]interface{}{
			{"type": "text", "text": err.Error()},
		},
		"isError": true,
	}
}

// instructionPayload serializes an instruction for the wire. withBody
// includes the Markdown content; listings omit it to keep responses small.
func instructionPayload(inst *knowledge.Instruction, withBody bool) map[string]interface{} {
	item := map[string]interface{}{
		"id":         inst.ID,
		"categories": inst.Categories,
	}
	if inst.Description != "" {
		item["description"] = inst.Description
	}
	if len(inst.Tags) > 0 {
		item["tags"] = inst.Tags
	}
	if inst.Protected {
		item["protected"] = true
	}
	if inst.Foundational {
		item["foundational"] = true
	}
	if withBody {
		item["content"] = inst.Body
	}
	return item
}

func objectSchema(props map[string]interface{}, required []string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
