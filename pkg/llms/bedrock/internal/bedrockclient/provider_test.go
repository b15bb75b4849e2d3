package bedrockclient

import (
	"testing"

	"github.com/effective-security/toolflow/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetProvider(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"anthropic.claude-3-sonnet-20240229-v1:0":      "anthropic",
		"us.anthropic.claude-3-5-sonnet-20241022-v2:0": "anthropic",
		"eu.anthropic.claude-3-haiku-20240307-v1:0":    "anthropic",
		"amazon.titan-text-premier-v1:0":               "amazon",
		"us.meta.llama3-2-11b-instruct-v1:0":           "meta",
		"anthropic":                                    "anthropic",
	}
	for modelID, expected := range tests {
		assert.Equal(t, expected, GetProvider(modelID), modelID)
	}
}

func TestProcessInputMessagesAnthropic(t *testing.T) {
	t.Parallel()

	msgs, system, err := processInputMessagesAnthropic([]llms.Message{
		llms.MessageFromTextParts(llms.RoleSystem, "be precise"),
		llms.MessageFromTextParts(llms.RoleHuman, "add 1 and 2"),
		llms.MessageFromToolCalls(llms.RoleAI,
			llms.ToolCall{ID: "t1", FunctionCall: &llms.FunctionCall{Name: "calculate", Arguments: `{"a":1,"b":2}`}},
			llms.ToolCall{ID: "t2", FunctionCall: &llms.FunctionCall{Name: "calculate"}},
		),
		llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{ToolCallID: "t1", Content: "3"}),
		llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{ToolCallID: "t2", Content: "missing a", IsError: true}),
	})
	require.NoError(t, err)
	assert.Equal(t, "be precise", system)
	require.Len(t, msgs, 3)

	assert.Equal(t, AnthropicRoleAssistant, msgs[1].Role)
	require.Len(t, msgs[1].Content, 2)
	assert.Equal(t, map[string]any{"a": float64(1), "b": float64(2)}, msgs[1].Content[0].Input)
	assert.Equal(t, map[string]any{}, msgs[1].Content[1].Input)

	assert.Equal(t, AnthropicRoleUser, msgs[2].Role)
	require.Len(t, msgs[2].Content, 2)
	assert.Equal(t, "t2", msgs[2].Content[1].ToolUseID)
	assert.True(t, msgs[2].Content[1].IsError)

	_, _, err = processInputMessagesAnthropic([]llms.Message{llms.MessageFromTextParts("robot", "x")})
	assert.ErrorIs(t, err, llms.ErrUnexpectedRole)
}
