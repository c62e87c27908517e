// Package mcpserver exposes the search orchestrator as a single MCP tool
// over stdio or HTTP, using the same hand-rolled JSON-RPC 2.0 request/
// response shapes as jonwraymond-tooldiscovery's registry package
// (MCPRequest/MCPResponse/MCPError, the initialize/tools.list/tools.call
// method dispatch). The modelcontextprotocol/go-sdk types (mcp.Tool,
// mcp.CallToolResult, mcp.TextContent) describe the tool and its result
// the same way the teacher's registry/handler.go and backend.go do.
package mcpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dannyavrs/encapure/encerr"
	"github.com/dannyavrs/encapure/search"
)

// Searcher is the subset of search.Engine the MCP tool needs.
type Searcher interface {
	Search(ctx context.Context, query string, topK int, agentDescription string) ([]search.Result, error)
}

// Server dispatches MCP JSON-RPC requests to a single "search" tool
// backed by Searcher.
type Server struct {
	searcher  Searcher
	info      mcp.Implementation
	sessionID string
}

// New builds a Server exposing name/version as the MCP server identity.
// sessionID is generated once per process, the same way
// stacklok-toolhive's vmcpSessionManager.Generate mints a session id for a
// client to correlate against in logs — there is no multi-session state
// to key it against here, just one identity per running server.
func New(searcher Searcher, name, version string) *Server {
	return &Server{
		searcher:  searcher,
		info:      mcp.Implementation{Name: name, Version: version},
		sessionID: uuid.New().String(),
	}
}

// Request is an incoming MCP JSON-RPC request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is an MCP JSON-RPC response.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// JSON-RPC 2.0 error codes, matching the MCP spec's reserved range.
const (
	errCodeParseError     = -32700
	errCodeMethodNotFound = -32601
	errCodeInvalidParams  = -32602
	errCodeInternal       = -32603
	errCodeToolNotFound   = -32001
)

var errToolNotFound = errors.New("mcpserver: tool not found")

// searchToolDescriptor describes the single tool this server exposes, in
// MCP's tools/list shape.
func (s *Server) searchToolDescriptor() mcp.Tool {
	return mcp.Tool{
		Name:        "search",
		Description: "Search the tool catalog for the tools most relevant to a natural-language query.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":             map[string]any{"type": "string"},
				"top_k":             map[string]any{"type": "integer", "minimum": 1, "maximum": 100},
				"agent_description": map[string]any{"type": "string"},
			},
			"required": []string{"query", "top_k"},
		},
	}
}

// HandleRequest processes one MCP request and returns a response,
// dispatching on method the same way registry.Registry.HandleRequest does.
func (s *Server) HandleRequest(ctx context.Context, req Request) Response {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req.ID)
	case "tools/list":
		return s.handleToolsList(req.ID)
	case "tools/call":
		return s.handleToolsCall(ctx, req.ID, req.Params)
	default:
		return Response{JSONRPC: "2.0", ID: req.ID, Error: &Error{
			Code:    errCodeMethodNotFound,
			Message: fmt.Sprintf("method %s not found", req.Method),
		}}
	}
}

func (s *Server) handleInitialize(id any) Response {
	return Response{JSONRPC: "2.0", ID: id, Result: map[string]any{
		"protocolVersion": "2024-11-05",
		"capabilities":    map[string]any{"tools": map[string]any{}},
		"serverInfo":      map[string]any{"name": s.info.Name, "version": s.info.Version},
		"sessionId":       s.sessionID,
	}}
}

func (s *Server) handleToolsList(id any) Response {
	tool := s.searchToolDescriptor()
	return Response{JSONRPC: "2.0", ID: id, Result: map[string]any{
		"tools": []map[string]any{{
			"name":        tool.Name,
			"description": tool.Description,
			"inputSchema": tool.InputSchema,
		}},
	}}
}

type toolsCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (s *Server) handleToolsCall(ctx context.Context, id any, params json.RawMessage) Response {
	var call toolsCallParams
	if err := json.Unmarshal(params, &call); err != nil {
		return Response{JSONRPC: "2.0", ID: id, Error: &Error{Code: errCodeInvalidParams, Message: err.Error()}}
	}
	if call.Name != "search" {
		return Response{JSONRPC: "2.0", ID: id, Error: &Error{Code: errCodeToolNotFound, Message: errToolNotFound.Error()}}
	}

	query, _ := call.Arguments["query"].(string)
	agentDescription, _ := call.Arguments["agent_description"].(string)
	topK := 10
	if raw, ok := call.Arguments["top_k"]; ok {
		if f, ok := raw.(float64); ok {
			topK = int(f)
		}
	}

	results, err := s.searcher.Search(ctx, query, topK, agentDescription)
	if err != nil {
		code := errCodeInternal
		if encerr.KindOf(err) == encerr.KindValidation {
			code = errCodeInvalidParams
		}
		return Response{JSONRPC: "2.0", ID: id, Error: &Error{Code: code, Message: err.Error()}}
	}

	return Response{JSONRPC: "2.0", ID: id, Result: toCallToolResult(results)}
}

// toCallToolResult shapes results as an mcp.CallToolResult with one
// TextContent block per convention: a single JSON-encoded payload,
// matching how backend.go's toolResultValue reads a single TextContent
// block back out of a CallToolResult.
func toCallToolResult(results []search.Result) *mcp.CallToolResult {
	payload, _ := json.Marshal(results)
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(payload)}},
	}
}

// ServeStdio runs the server over stdio, one JSON-RPC request per line,
// blocking until stdin closes or ctx is cancelled (mirrors
// jonwraymond-tooldiscovery/registry/server.go's ServeStdio).
func (s *Server) ServeStdio(ctx context.Context) error {
	scanner := bufio.NewScanner(os.Stdin)
	encoder := json.NewEncoder(os.Stdout)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var req Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			resp := Response{JSONRPC: "2.0", Error: &Error{Code: errCodeParseError, Message: err.Error()}}
			if err := encoder.Encode(resp); err != nil {
				return fmt.Errorf("mcpserver: encode error response: %w", err)
			}
			continue
		}

		if err := encoder.Encode(s.HandleRequest(ctx, req)); err != nil {
			return fmt.Errorf("mcpserver: encode response: %w", err)
		}
	}
	return scanner.Err()
}

// ServeHTTP handles one POST JSON-RPC request per call, for the
// streamable-HTTP MCP transport.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Response{JSONRPC: "2.0", Error: &Error{Code: errCodeParseError, Message: err.Error()}})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.HandleRequest(r.Context(), req))
}
