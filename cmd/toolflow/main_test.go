package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/effective-security/toolflow/config"
	"github.com/effective-security/toolflow/mocks/mockllms"
	"github.com/effective-security/toolflow/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func executeCommand(args ...string) (stdout, stderr string, err error) {
	var outBuf, errBuf bytes.Buffer
	root := newRootCmd()
	root.SetOut(&outBuf)
	root.SetErr(&errBuf)
	root.SetArgs(args)
	err = root.Execute()
	return outBuf.String(), errBuf.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "toolflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// mockModel replaces newModel for the duration of the test.
func mockModel(t *testing.T) *mockllms.MockModel {
	ctrl := gomock.NewController(t)
	model := mockllms.NewMockModel(ctrl)
	model.EXPECT().GetProviderType().Return(llms.ProviderOpenAI).AnyTimes()
	model.EXPECT().GetName().Return("mock-model").AnyTimes()

	saved := newModel
	newModel = func(_ *config.Configuration, _ string) (llms.Model, error) {
		return model, nil
	}
	t.Cleanup(func() { newModel = saved })
	return model
}

func textReply(text string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: text, StopReason: "stop"}},
	}
}

func callReply(id, name, args string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			StopReason: "tool_calls",
			ToolCalls: []llms.ToolCall{{
				ID:           id,
				Type:         "function",
				FunctionCall: &llms.FunctionCall{Name: name, Arguments: args},
			}},
		}},
	}
}

func TestToolsCmd(t *testing.T) {
	out, _, err := executeCommand("tools")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "calculate_quotient")
	assert.NotContains(t, out, "web_search")

	out, _, err = executeCommand("tools", "--schema")
	require.NoError(t, err)
	assert.Contains(t, out, "# convert_units")
	assert.Contains(t, out, `"from_unit"`)
}

func TestToolsCmd_WebSearch(t *testing.T) {
	cfg := writeConfig(t, "tavily:\n  api_key: tvly-test\n")
	out, _, err := executeCommand("tools", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "web_search")
}

func TestResourceCmd(t *testing.T) {
	out, _, err := executeCommand("resource", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "config://version")
	assert.Contains(t, out, "users://{user_id}/profile")

	out, _, err = executeCommand("resource", "read", "config://version")
	require.NoError(t, err)
	assert.Equal(t, "2.0.1\n", out)

	out, _, err = executeCommand("resource", "read", "users://42/profile")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"User 42","status":"active"}`, out)

	out, _, err = executeCommand("resource", "read", "users://{user_id}/profile", "--bind", "user_id=7")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"User 7","status":"active"}`, out)

	_, _, err = executeCommand("resource", "read", "users://{user_id}/profile")
	assert.EqualError(t, err, "unbound placeholder in users://{user_id}/profile: user_id")

	_, _, err = executeCommand("resource", "read", "config://missing")
	assert.EqualError(t, err, "resource not found: config://missing")

	_, _, err = executeCommand("resource", "read", "users://{user_id}/profile", "--bind", "user_id")
	assert.EqualError(t, err, `invalid binding "user_id", expected KEY=VALUE`)
}

func TestChatCmd(t *testing.T) {
	model := mockModel(t)
	gomock.InOrder(
		model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(callReply("call_1", "calculate_sum", `{"a":2,"b":3}`), nil),
		model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, msgs []llms.Message, _ ...llms.CallOption) (*llms.ContentResponse, error) {
				require.Len(t, msgs, 3)
				resp := msgs[2].GetToolResponses()
				require.Len(t, resp, 1)
				assert.Equal(t, "5", resp[0].Content)
				assert.False(t, resp[0].IsError)
				return textReply("2 + 3 = 5"), nil
			}),
	)

	out, stderr, err := executeCommand("chat", "--trace", "what", "is", "2+3?")
	require.NoError(t, err)
	assert.Equal(t, "2 + 3 = 5\n", out)
	assert.Contains(t, stderr, "calculate_sum")
}

func TestChatCmd_ProcessData(t *testing.T) {
	model := mockModel(t)
	gomock.InOrder(
		model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(callReply("call_1", "process_data", `{"uri":"users://7/profile"}`), nil),
		model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, msgs []llms.Message, _ ...llms.CallOption) (*llms.ContentResponse, error) {
				require.Len(t, msgs, 1)
				assert.Equal(t, `Summarize: {"name":"User 7","status":"active"}`, msgs[0].GetContent())
				return textReply("User 7 is active."), nil
			}),
		model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, msgs []llms.Message, _ ...llms.CallOption) (*llms.ContentResponse, error) {
				require.Len(t, msgs, 3)
				resp := msgs[2].GetToolResponses()
				require.Len(t, resp, 1)
				assert.Equal(t, "User 7 is active.", resp[0].Content)
				return textReply("The user is active."), nil
			}),
	)

	out, _, err := executeCommand("chat", "summarize", "user", "7")
	require.NoError(t, err)
	assert.Equal(t, "The user is active.\n", out)
}

func TestChatCmd_History(t *testing.T) {
	model := mockModel(t)
	model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(textReply("hello"), nil)

	out, _, err := executeCommand("chat", "--history", "hi")
	require.NoError(t, err)
	assert.Contains(t, out, "role: human")
	assert.Contains(t, out, "role: ai")
	assert.Contains(t, out, "\nhello\n")
}

func TestChatCmd_Resume(t *testing.T) {
	db := filepath.Join(t.TempDir(), "chats.db")
	cfg := writeConfig(t, "store:\n  kind: sqlite\n  sqlite_path: "+db+"\n")

	model := mockModel(t)
	gomock.InOrder(
		model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(textReply("Nice to meet you, Bob."), nil),
		model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, msgs []llms.Message, _ ...llms.CallOption) (*llms.ContentResponse, error) {
				require.Len(t, msgs, 3)
				assert.Equal(t, "my name is Bob", msgs[0].GetContentText())
				assert.Equal(t, "Nice to meet you, Bob.", msgs[1].GetContentText())
				assert.Equal(t, "what is my name?", msgs[2].GetContentText())
				return textReply("Bob"), nil
			}),
	)

	out, stderr, err := executeCommand("chat", "--config", cfg, "--chat-id", "c1", "my name is Bob")
	require.NoError(t, err)
	assert.Equal(t, "Nice to meet you, Bob.\n", out)
	assert.Contains(t, stderr, "chat: c1")

	out, _, err = executeCommand("chat", "--config", cfg, "--chat-id", "c1", "--resume", "what is my name?")
	require.NoError(t, err)
	assert.Equal(t, "Bob\n", out)
}

func TestChatCmd_Errors(t *testing.T) {
	_, _, err := executeCommand("chat")
	require.Error(t, err)

	_, _, err = executeCommand("chat", "--resume", "hi")
	assert.EqualError(t, err, "--resume requires --chat-id")

	_, _, err = executeCommand("chat", "--config", "testdata/missing.yaml", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}
