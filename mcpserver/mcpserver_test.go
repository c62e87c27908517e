package mcpserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dannyavrs/encapure/encerr"
	"github.com/dannyavrs/encapure/search"
)

type fakeSearcher struct {
	results []search.Result
	err     error
}

func (f *fakeSearcher) Search(_ context.Context, _ string, _ int, _ string) ([]search.Result, error) {
	return f.results, f.err
}

func TestHandleRequest_Initialize(t *testing.T) {
	s := New(&fakeSearcher{}, "encapure", "0.1.0")
	resp := s.HandleRequest(context.Background(), Request{JSONRPC: "2.0", ID: 1, Method: "initialize"})
	require.Nil(t, resp.Error)
	result, ok := resp.Result.(map[string]any)
	require.Truef(t, ok, "result = %#v, want map[string]any", resp.Result)
	sessionID, _ := result["sessionId"].(string)
	assert.NotEmpty(t, sessionID)
}

func TestNew_AssignsDistinctSessionIDs(t *testing.T) {
	a := New(&fakeSearcher{}, "encapure", "0.1.0")
	b := New(&fakeSearcher{}, "encapure", "0.1.0")
	assert.NotEqual(t, a.sessionID, b.sessionID)
}

func TestHandleRequest_ToolsList(t *testing.T) {
	s := New(&fakeSearcher{}, "encapure", "0.1.0")
	resp := s.HandleRequest(context.Background(), Request{JSONRPC: "2.0", ID: 1, Method: "tools/list"})
	require.Nil(t, resp.Error)
	result, ok := resp.Result.(map[string]any)
	require.Truef(t, ok, "result = %#v, want map[string]any", resp.Result)
	tools, ok := result["tools"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, tools, 1)
	assert.Equal(t, "search", tools[0]["name"])
}

func TestHandleRequest_ToolsCall_Success(t *testing.T) {
	s := New(&fakeSearcher{results: []search.Result{{Name: "send_message", Description: "send a message", Score: 0.9}}}, "encapure", "0.1.0")

	params, _ := json.Marshal(toolsCallParams{Name: "search", Arguments: map[string]any{"query": "send message", "top_k": float64(3)}})
	resp := s.HandleRequest(context.Background(), Request{JSONRPC: "2.0", ID: 1, Method: "tools/call", Params: params})
	assert.Nil(t, resp.Error)
}

func TestHandleRequest_ToolsCall_UnknownTool(t *testing.T) {
	s := New(&fakeSearcher{}, "encapure", "0.1.0")
	params, _ := json.Marshal(toolsCallParams{Name: "does_not_exist"})
	resp := s.HandleRequest(context.Background(), Request{JSONRPC: "2.0", ID: 1, Method: "tools/call", Params: params})
	require.NotNil(t, resp.Error)
	assert.Equal(t, errCodeToolNotFound, resp.Error.Code)
}

func TestHandleRequest_ToolsCall_ValidationErrorMapsToInvalidParams(t *testing.T) {
	s := New(&fakeSearcher{err: encerr.Validationf("query must be non-empty")}, "encapure", "0.1.0")
	params, _ := json.Marshal(toolsCallParams{Name: "search", Arguments: map[string]any{"query": "", "top_k": float64(3)}})
	resp := s.HandleRequest(context.Background(), Request{JSONRPC: "2.0", ID: 1, Method: "tools/call", Params: params})
	require.NotNil(t, resp.Error)
	assert.Equal(t, errCodeInvalidParams, resp.Error.Code)
}

func TestHandleRequest_UnknownMethod(t *testing.T) {
	s := New(&fakeSearcher{}, "encapure", "0.1.0")
	resp := s.HandleRequest(context.Background(), Request{JSONRPC: "2.0", ID: 1, Method: "bogus"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, errCodeMethodNotFound, resp.Error.Code)
}
