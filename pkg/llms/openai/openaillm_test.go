package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/effective-security/toolflow/pkg/llms"
	"github.com/effective-security/toolflow/pkg/llms/openai"
	"github.com/effective-security/toolflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	path   string
	query  string
	header http.Header
	body   map[string]any
}

func newServer(t *testing.T, status int, reply string) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.path = r.URL.Path
		c.query = r.URL.RawQuery
		c.header = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&c.body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

const toolReply = `{
	"id": "chatcmpl-1",
	"model": "gpt-4o-mini",
	"choices": [{
		"index": 0,
		"finish_reason": "tool_calls",
		"message": {
			"role": "assistant",
			"content": "",
			"tool_calls": [
				{"id": "call_1", "type": "function", "function": {"name": "calculate", "arguments": "{\"operation\":\"add\",\"a\":1,\"b\":2}"}},
				{"id": "call_2", "type": "function", "function": {"name": "get_weather", "arguments": "{\"location\":\"Paris\"}"}}
			]
		}
	}],
	"usage": {"prompt_tokens": 20, "completion_tokens": 7, "total_tokens": 27}
}`

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := openai.New(openai.WithToken("k"), openai.WithProvider(llms.ProviderBedrock))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported provider")

	_, err = openai.New(openai.WithToken("k"), openai.WithMaxTokens(-1))
	assert.EqualError(t, err, "openai: max tokens must not be negative")

	_, err = openai.New(openai.WithToken("k"), openai.WithProvider(llms.ProviderAzure))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model is required")

	llm, err := openai.New(openai.WithToken("k"), openai.WithModel("gpt-4o"))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", llm.GetName())
	assert.Equal(t, llms.ProviderOpenAI, llm.GetProviderType())
}

func TestGenerateContent_ToolCalls(t *testing.T) {
	t.Parallel()

	srv, c := newServer(t, http.StatusOK, toolReply)
	llm, err := openai.New(
		openai.WithToken("test-key"),
		openai.WithModel("gpt-4o-mini"),
		openai.WithBaseURL(srv.URL+"/v1/"),
		openai.WithOrganization("org-1"),
	)
	require.NoError(t, err)

	history := []llms.Message{
		llms.MessageFromTextParts(llms.RoleSystem, "be precise"),
		llms.MessageFromTextParts(llms.RoleHuman, "add 1 and 2"),
		llms.MessageFromToolCalls(llms.RoleAI, llms.ToolCall{ID: "call_0", Type: "function", FunctionCall: &llms.FunctionCall{Name: "calculate", Arguments: "{}"}}),
		llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{ToolCallID: "call_0", Name: "calculate", Content: "missing a", IsError: true}),
	}
	resp, err := llm.GenerateContent(context.Background(), history,
		llms.WithTools([]llms.Tool{{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:       "calculate",
				Parameters: schema.NewObject([]schema.Property{{Name: "a", Type: "number", Required: true}}, true),
			},
		}}),
		llms.WithTemperature(0.1),
	)
	require.NoError(t, err)

	assert.Equal(t, "/v1/chat/completions", c.path)
	assert.Equal(t, "Bearer test-key", c.header.Get("Authorization"))
	assert.Equal(t, "org-1", c.header.Get("OpenAI-Organization"))
	assert.Equal(t, "gpt-4o-mini", c.body["model"])
	msgs, ok := c.body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "add 1 and 2", msgs[1].(map[string]any)["content"])
	assert.Equal(t, "assistant", msgs[2].(map[string]any)["role"])
	assert.Len(t, msgs[2].(map[string]any)["tool_calls"], 1)
	assert.Equal(t, "call_0", msgs[3].(map[string]any)["tool_call_id"])
	assert.Len(t, c.body["tools"], 1)

	calls := resp.ToolCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "call_1", calls[0].ID)
	assert.Equal(t, "calculate", calls[0].FunctionCall.Name)
	assert.Equal(t, "get_weather", calls[1].FunctionCall.Name)
	assert.Empty(t, resp.Text())

	in, out := resp.Usage()
	assert.Equal(t, 20, in)
	assert.Equal(t, 7, out)
}

func TestGenerateContent_Azure(t *testing.T) {
	t.Parallel()

	srv, c := newServer(t, http.StatusOK, `{"id":"x","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"hello"}}]}`)
	llm, err := openai.New(
		openai.WithToken("azure-key"),
		openai.WithProvider(llms.ProviderAzure),
		openai.WithModel("my-deployment"),
		openai.WithAPIVersion("2024-10-21"),
		openai.WithBaseURL(srv.URL),
		openai.WithHTTPClient(srv.Client()),
		openai.WithMaxTokens(300),
	)
	require.NoError(t, err)

	resp, err := llm.GenerateContent(context.Background(), []llms.Message{
		llms.MessageFromParts(llms.RoleHuman, llms.TextPart("what is this?"), llms.BinaryPart("image/png", []byte{1, 2, 3})),
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text())
	assert.Equal(t, llms.ProviderAzure, llm.GetProviderType())

	assert.Equal(t, "/openai/deployments/my-deployment/chat/completions", c.path)
	assert.Equal(t, "api-version=2024-10-21", c.query)
	assert.Equal(t, "azure-key", c.header.Get("api-key"))
	assert.EqualValues(t, 300, c.body["max_completion_tokens"])

	msgs := c.body["messages"].([]any)
	parts, ok := msgs[0].(map[string]any)["content"].([]any)
	require.True(t, ok)
	require.Len(t, parts, 2)
	assert.Equal(t, "image_url", parts[1].(map[string]any)["type"])
}

func TestGenerateContent_Errors(t *testing.T) {
	t.Parallel()

	srv, _ := newServer(t, http.StatusTooManyRequests, `{"error":{"message":"rate limited","type":"rate_limit"}}`)
	llm, err := openai.New(openai.WithToken("k"), openai.WithBaseURL(srv.URL))
	require.NoError(t, err)
	_, err = llm.GenerateContent(context.Background(), []llms.Message{llms.MessageFromTextParts(llms.RoleHuman, "hi")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API returned unexpected status code: 429: rate limited")

	srv2, _ := newServer(t, http.StatusOK, `{"id":"x","choices":[]}`)
	llm, err = openai.New(openai.WithToken("k"), openai.WithBaseURL(srv2.URL))
	require.NoError(t, err)
	_, err = llm.GenerateContent(context.Background(), []llms.Message{llms.MessageFromTextParts(llms.RoleHuman, "hi")})
	assert.ErrorIs(t, err, openai.ErrEmptyResponse)

	_, err = llm.GenerateContent(context.Background(), []llms.Message{llms.MessageFromTextParts("robot", "hi")})
	assert.ErrorIs(t, err, llms.ErrUnexpectedRole)
}
