package bedrockclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolflow/pkg/llms"
)

// Ref: https://docs.aws.amazon.com/bedrock/latest/userguide/model-parameters-anthropic-claude-messages.html

type anthropicBinSource struct {
	// One of: "base64"
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// anthropicContent is a content block: "text", "image", "tool_use" or "tool_result".
type anthropicContent struct {
	Type   string              `json:"type"`
	Source *anthropicBinSource `json:"source,omitempty"`
	Text   string              `json:"text,omitempty"`

	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Input any    `json:"input,omitempty"`

	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

type anthropicMessage struct {
	// One of: "user", "assistant"
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicTool struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	InputSchema anthropicInputSchema `json:"input_schema"`
}

type anthropicInputSchema struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
	Required   []string       `json:"required,omitempty"`
}

type anthropicInput struct {
	AnthropicVersion string              `json:"anthropic_version"`
	MaxTokens        int                 `json:"max_tokens"`
	System           string              `json:"system,omitempty"`
	Messages         []*anthropicMessage `json:"messages"`
	Temperature      float64             `json:"temperature,omitempty"`
	TopP             float64             `json:"top_p,omitempty"`
	TopK             int                 `json:"top_k,omitempty"`
	StopSequences    []string            `json:"stop_sequences,omitempty"`
	Tools            []anthropicTool     `json:"tools,omitempty"`
}

type anthropicOutputContent struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Input any    `json:"input,omitempty"`
}

type anthropicOutput struct {
	ID         string                   `json:"id"`
	Type       string                   `json:"type"`
	Role       string                   `json:"role"`
	Content    []anthropicOutputContent `json:"content"`
	StopReason string                   `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

const (
	AnthropicLatestVersion = "bedrock-2023-05-31"
	AnthropicDefaultTokens = 2048

	AnthropicRoleUser      = "user"
	AnthropicRoleAssistant = "assistant"

	AnthropicMessageTypeText       = "text"
	AnthropicMessageTypeImage      = "image"
	AnthropicMessageTypeToolUse    = "tool_use"
	AnthropicMessageTypeToolResult = "tool_result"

	AnthropicCompletionReasonMaxTokens = "max_tokens"
)

func createAnthropicCompletion(ctx context.Context,
	client InvokeModelAPI,
	modelID string,
	messages []llms.Message,
	options llms.CallOptions,
) (*llms.ContentResponse, error) {
	inputMessages, systemPrompt, err := processInputMessagesAnthropic(messages)
	if err != nil {
		return nil, err
	}

	input := anthropicInput{
		AnthropicVersion: AnthropicLatestVersion,
		MaxTokens:        getMaxTokens(options.MaxTokens, AnthropicDefaultTokens),
		System:           systemPrompt,
		Messages:         inputMessages,
		Temperature:      options.Temperature,
		TopP:             options.TopP,
		TopK:             options.TopK,
		StopSequences:    options.StopWords,
		Tools:            anthropicTools(options.Tools),
	}

	body, err := json.Marshal(input)
	if err != nil {
		return nil, errors.Wrap(err, "bedrock: failed to marshal request")
	}

	resp, err := client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		Accept:      aws.String("*/*"),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, errors.Wrap(err, "bedrock: failed to invoke model")
	}

	var output anthropicOutput
	if err = json.Unmarshal(resp.Body, &output); err != nil {
		return nil, errors.Wrap(err, "bedrock: failed to decode response")
	}
	if output.StopReason == AnthropicCompletionReasonMaxTokens && len(output.Content) == 0 {
		return nil, errors.New("bedrock: completed due to max_tokens, try increasing max tokens")
	}

	info := func() map[string]any {
		return map[string]any{
			"InputTokens":  output.Usage.InputTokens,
			"OutputTokens": output.Usage.OutputTokens,
			"TotalTokens":  output.Usage.InputTokens + output.Usage.OutputTokens,
			"ID":           output.ID,
		}
	}

	var text strings.Builder
	var toolCalls []llms.ToolCall
	for _, c := range output.Content {
		switch c.Type {
		case AnthropicMessageTypeText:
			text.WriteString(c.Text)
		case AnthropicMessageTypeToolUse:
			args, err := json.Marshal(c.Input)
			if err != nil {
				return nil, errors.Wrap(err, "bedrock: failed to marshal tool arguments")
			}
			toolCalls = append(toolCalls, llms.ToolCall{
				ID:   c.ID,
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      c.Name,
					Arguments: string(args),
				},
			})
		}
	}

	var choices []*llms.ContentChoice
	if text.Len() > 0 {
		choices = append(choices, &llms.ContentChoice{
			Content:        text.String(),
			StopReason:     output.StopReason,
			GenerationInfo: info(),
		})
	}
	if len(toolCalls) > 0 {
		choices = append(choices, &llms.ContentChoice{
			ToolCalls:      toolCalls,
			StopReason:     output.StopReason,
			GenerationInfo: info(),
		})
	}
	return &llms.ContentResponse{Choices: choices}, nil
}

func anthropicTools(tools []llms.Tool) []anthropicTool {
	var res []anthropicTool
	for _, tool := range tools {
		if tool.Function == nil {
			continue
		}
		t := anthropicTool{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			InputSchema: anthropicInputSchema{Type: "object"},
		}
		if params := tool.Function.Parameters; params != nil {
			if params.Properties != nil {
				t.InputSchema.Properties = make(map[string]any, params.Properties.Len())
				for pair := params.Properties.Oldest(); pair != nil; pair = pair.Next() {
					t.InputSchema.Properties[pair.Key] = pair.Value
				}
			}
			t.InputSchema.Required = params.Required
		}
		res = append(res, t)
	}
	return res
}

// processInputMessagesAnthropic returns the input messages and the system
// prompt. Consecutive messages that map to the same role are merged into
// one turn.
func processInputMessagesAnthropic(messages []llms.Message) ([]*anthropicMessage, string, error) {
	var system []string
	var res []*anthropicMessage
	for _, msg := range messages {
		if msg.Role == llms.RoleSystem {
			for _, part := range msg.Parts {
				tc, ok := part.(llms.TextContent)
				if !ok {
					return nil, "", errors.New("bedrock: system prompt must be text")
				}
				system = append(system, tc.Text)
			}
			continue
		}

		role, err := getAnthropicRole(msg.Role)
		if err != nil {
			return nil, "", err
		}
		content := make([]anthropicContent, 0, len(msg.Parts))
		for _, part := range msg.Parts {
			c, err := getAnthropicInputContent(part)
			if err != nil {
				return nil, "", err
			}
			content = append(content, c)
		}
		if len(content) == 0 {
			continue
		}

		if n := len(res); n > 0 && res[n-1].Role == role {
			res[n-1].Content = append(res[n-1].Content, content...)
			continue
		}
		res = append(res, &anthropicMessage{Role: role, Content: content})
	}
	return res, strings.Join(system, "\n"), nil
}

func getAnthropicRole(role llms.Role) (string, error) {
	switch role {
	case llms.RoleAI:
		return AnthropicRoleAssistant, nil
	case llms.RoleHuman, llms.RoleTool:
		return AnthropicRoleUser, nil
	default:
		return "", errors.Wrapf(llms.ErrUnexpectedRole, "bedrock: role %v not supported", role)
	}
}

func getAnthropicInputContent(part llms.ContentPart) (anthropicContent, error) {
	switch p := part.(type) {
	case llms.TextContent:
		return anthropicContent{Type: AnthropicMessageTypeText, Text: p.Text}, nil
	case llms.BinaryContent:
		return anthropicContent{
			Type: AnthropicMessageTypeImage,
			Source: &anthropicBinSource{
				Type:      "base64",
				MediaType: p.MIMEType,
				Data:      base64.StdEncoding.EncodeToString(p.Data),
			},
		}, nil
	case llms.ToolCall:
		if p.FunctionCall == nil {
			return anthropicContent{}, errors.Errorf("bedrock: tool call %s has no function", p.ID)
		}
		input := map[string]any{}
		if args := strings.TrimSpace(p.FunctionCall.Arguments); args != "" {
			_ = json.Unmarshal([]byte(args), &input)
		}
		return anthropicContent{
			Type:  AnthropicMessageTypeToolUse,
			ID:    p.ID,
			Name:  p.FunctionCall.Name,
			Input: input,
		}, nil
	case llms.ToolCallResponse:
		return anthropicContent{
			Type:      AnthropicMessageTypeToolResult,
			ToolUseID: p.ToolCallID,
			Content:   p.Content,
			IsError:   p.IsError,
		}, nil
	default:
		return anthropicContent{}, errors.Errorf("bedrock: unsupported part type: %T", part)
	}
}
