package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/effective-security/toolflow/dispatcher"
	"github.com/effective-security/toolflow/pkg/prompts"
	"github.com/effective-security/toolflow/resources"
	"github.com/effective-security/toolflow/server"
	"github.com/effective-security/toolflow/tools"
	"github.com/effective-security/toolflow/tools/builtin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	reg := tools.NewRegistry()
	res := resources.NewResolver()
	catalog := prompts.NewCatalog()
	require.NoError(t, builtin.Register(reg, res, catalog))

	s := server.New(dispatcher.New(reg, res), catalog, server.WithName("test", "2.0.1"))
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *server.Error   `json:"error"`
}

func call(t *testing.T, ts *httptest.Server, method string, params any) *rpcResponse {
	t.Helper()
	req := map[string]any{"jsonrpc": "2.0", "id": 1, "method": method}
	if params != nil {
		req["params"] = params
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)
	return post(t, ts, body)
}

func post(t *testing.T, ts *httptest.Server, body []byte) *rpcResponse {
	t.Helper()
	resp, err := ts.Client().Post(ts.URL+"/rpc", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var res rpcResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, "2.0", res.JSONRPC)
	return &res
}

func TestInitializeAndHealth(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	res := call(t, ts, "initialize", map[string]any{})
	require.Nil(t, res.Error)
	var init server.InitializeResult
	require.NoError(t, json.Unmarshal(res.Result, &init))
	assert.Equal(t, server.ProtocolVersion, init.ProtocolVersion)
	assert.Equal(t, server.Implementation{Name: "test", Version: "2.0.1"}, init.ServerInfo)
	assert.Contains(t, init.Capabilities, "tools")

	res = call(t, ts, "ping", nil)
	assert.Nil(t, res.Error)

	resp, err := ts.Client().Get(ts.URL + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTools(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	res := call(t, ts, "tools/list", nil)
	require.Nil(t, res.Error)
	var list server.ListToolsResult
	require.NoError(t, json.Unmarshal(res.Result, &list))
	require.Len(t, list.Tools, 10)
	assert.Equal(t, "calculate", list.Tools[0].Name)
	schema := list.Tools[0].InputSchema.(map[string]any)
	assert.Equal(t, "object", schema["type"])
	assert.ElementsMatch(t, []any{"operation", "a", "b"}, schema["required"])

	res = call(t, ts, "tools/call", server.CallToolParams{
		Name:      "calculate_sum",
		Arguments: map[string]any{"a": 2, "b": 3},
	})
	require.Nil(t, res.Error)
	var out server.CallToolResult
	require.NoError(t, json.Unmarshal(res.Result, &out))
	assert.False(t, out.IsError)
	assert.Equal(t, []server.TextContent{{Type: "text", Text: "5"}}, out.Content)

	// failures are results, not protocol errors
	for _, p := range []server.CallToolParams{
		{Name: "calculate_quotient", Arguments: map[string]any{"a": 1, "b": 0}},
		{Name: "calculate_sum", Arguments: map[string]any{"a": "two", "b": 3}},
		{Name: "nope"},
	} {
		res = call(t, ts, "tools/call", p)
		require.Nil(t, res.Error, p.Name)
		out = server.CallToolResult{}
		require.NoError(t, json.Unmarshal(res.Result, &out))
		assert.True(t, out.IsError, p.Name)
		require.Len(t, out.Content, 1)
	}
	assert.Contains(t, out.Content[0].Text, "nope")

	res = call(t, ts, "tools/call", nil)
	require.NotNil(t, res.Error)
	assert.Equal(t, server.CodeInvalidParams, res.Error.Code)
}

func TestResources(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	res := call(t, ts, "resources/list", nil)
	require.Nil(t, res.Error)
	var list server.ListResourcesResult
	require.NoError(t, json.Unmarshal(res.Result, &list))
	assert.Equal(t, []server.ResourceInfo{{
		URI:         "config://version",
		Name:        "version",
		Description: "The server version",
		MIMEType:    "text/plain",
	}}, list.Resources)

	res = call(t, ts, "resources/templates/list", nil)
	require.Nil(t, res.Error)
	var templates server.ListResourceTemplatesResult
	require.NoError(t, json.Unmarshal(res.Result, &templates))
	require.Len(t, templates.ResourceTemplates, 1)
	assert.Equal(t, "users://{user_id}/profile", templates.ResourceTemplates[0].URITemplate)

	res = call(t, ts, "resources/read", server.ReadResourceParams{URI: "users://7/profile"})
	require.Nil(t, res.Error)
	var read server.ReadResourceResult
	require.NoError(t, json.Unmarshal(res.Result, &read))
	require.Len(t, read.Contents, 1)
	assert.Equal(t, "application/json", read.Contents[0].MIMEType)
	assert.JSONEq(t, `{"name":"User 7","status":"active"}`, read.Contents[0].Text)

	res = call(t, ts, "resources/read", server.ReadResourceParams{
		URI:      "users://{user_id}/profile",
		Bindings: map[string]string{"user_id": "9"},
	})
	require.Nil(t, res.Error)
	read = server.ReadResourceResult{}
	require.NoError(t, json.Unmarshal(res.Result, &read))
	assert.JSONEq(t, `{"name":"User 9","status":"active"}`, read.Contents[0].Text)

	res = call(t, ts, "resources/read", server.ReadResourceParams{URI: "users://{user_id}/profile"})
	require.NotNil(t, res.Error)
	assert.Equal(t, server.CodeInvalidParams, res.Error.Code)

	res = call(t, ts, "resources/read", server.ReadResourceParams{URI: "config://missing"})
	require.NotNil(t, res.Error)
	assert.Equal(t, server.CodeResourceNotFound, res.Error.Code)
	assert.Equal(t, "resource not found: config://missing", res.Error.Message)
}

func TestPrompts(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	res := call(t, ts, "prompts/list", nil)
	require.Nil(t, res.Error)
	var list server.ListPromptsResult
	require.NoError(t, json.Unmarshal(res.Result, &list))
	require.Len(t, list.Prompts, 2)
	assert.Equal(t, "calculate_sum", list.Prompts[0].Name)
	assert.Equal(t, "greet_user", list.Prompts[1].Name)
	assert.Equal(t, []server.PromptArgument{{Name: "name", Description: "The name of the user", Required: true}}, list.Prompts[1].Arguments)

	res = call(t, ts, "prompts/get", server.GetPromptParams{Name: "greet_user", Arguments: map[string]string{"name": "Bob"}})
	require.Nil(t, res.Error)
	var got server.GetPromptResult
	require.NoError(t, json.Unmarshal(res.Result, &got))
	assert.Equal(t, []server.PromptMessage{{
		Role:    "user",
		Content: server.TextContent{Type: "text", Text: "Welcome to the toolflow server, Bob!"},
	}}, got.Messages)

	res = call(t, ts, "prompts/get", server.GetPromptParams{Name: "greet_user"})
	require.NotNil(t, res.Error)
	assert.Equal(t, server.CodeInvalidParams, res.Error.Code)
}

func TestProtocolErrors(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	res := post(t, ts, []byte(`{not json`))
	require.NotNil(t, res.Error)
	assert.Equal(t, server.CodeParseError, res.Error.Code)
	assert.Equal(t, "null", string(res.ID))

	res = post(t, ts, []byte(`{"jsonrpc":"1.0","id":5,"method":"ping"}`))
	require.NotNil(t, res.Error)
	assert.Equal(t, server.CodeInvalidRequest, res.Error.Code)
	assert.Equal(t, "5", string(res.ID))

	res = call(t, ts, "sampling/createMessage", nil)
	require.NotNil(t, res.Error)
	assert.Equal(t, server.CodeMethodNotFound, res.Error.Code)

	resp, err := ts.Client().Post(ts.URL+"/rpc", "application/json",
		bytes.NewReader([]byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestHandle(t *testing.T) {
	t.Parallel()

	s := server.New(dispatcher.New(tools.NewRegistry(), nil), nil)
	res, rpcErr := s.Handle(context.Background(), "resources/list", nil)
	require.Nil(t, rpcErr)
	assert.Empty(t, res.(*server.ListResourcesResult).Resources)

	_, rpcErr = s.Handle(context.Background(), "resources/read", json.RawMessage(`{"uri":"config://version"}`))
	require.NotNil(t, rpcErr)
	assert.Equal(t, server.CodeResourceNotFound, rpcErr.Code)
	assert.EqualError(t, rpcErr, "RPC error -32002: resource not found")
}
