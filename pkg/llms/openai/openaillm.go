// Package openai implements llms.Model over the OpenAI-compatible
// chat completions API, including Azure deployments.
package openai

import (
	"context"
	"encoding/base64"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolflow/pkg/llms"
	"github.com/effective-security/toolflow/pkg/llms/openai/internal/openaiclient"
	"github.com/effective-security/x/values"
)

var (
	ErrEmptyResponse = openaiclient.ErrEmptyResponse
	ErrMissingToken  = errors.New("openai: missing API key, set it in the OPENAI_API_KEY environment variable")
)

const (
	RoleSystem    = "system"
	RoleAssistant = "assistant"
	RoleUser      = "user"
	RoleTool      = "tool"
)

type ChatMessage = openaiclient.ChatMessage

type LLM struct {
	client    *openaiclient.Client
	provider  llms.ProviderType
	maxTokens int
}

var _ llms.Model = (*LLM)(nil)

// New returns a new OpenAI model.
func New(opts ...Option) (*LLM, error) {
	o, err := newOptions(opts...)
	if err != nil {
		return nil, err
	}
	return &LLM{
		client:    o.client(),
		provider:  o.provider,
		maxTokens: o.maxTokens,
	}, nil
}

// GetName implements the Model interface.
func (o *LLM) GetName() string {
	return values.StringsCoalesce(o.client.Model, openaiclient.DefaultChatModel)
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return o.provider
}

// GenerateContent implements the Model interface.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.NewCallOptions(llms.CallOptions{MaxTokens: o.maxTokens}, options...)

	chatMsgs, err := ToChatMessages(messages)
	if err != nil {
		return nil, err
	}

	req := &openaiclient.ChatRequest{
		Model:               opts.Model,
		Messages:            chatMsgs,
		Temperature:         opts.Temperature,
		TopP:                opts.TopP,
		MaxCompletionTokens: opts.MaxTokens,
		StopWords:           opts.StopWords,
		Seed:                opts.Seed,
		ToolChoice:          opts.ToolChoice,
		Metadata:            opts.Metadata,
	}
	for _, tool := range opts.Tools {
		t, err := toolFromTool(tool)
		if err != nil {
			return nil, errors.WithMessage(err, "failed to convert llms tool to openai tool")
		}
		req.Tools = append(req.Tools, t)
	}

	result, err := o.client.CreateChat(ctx, req)
	if err != nil {
		return nil, errors.WithMessage(err, "openai")
	}

	choices := make([]*llms.ContentChoice, len(result.Choices))
	for i, c := range result.Choices {
		choices[i] = &llms.ContentChoice{
			Content:    c.Message.Content,
			StopReason: c.FinishReason,
			GenerationInfo: map[string]any{
				"InputTokens":  result.Usage.PromptTokens,
				"OutputTokens": result.Usage.CompletionTokens,
				"TotalTokens":  result.Usage.TotalTokens,
				"ID":           result.ID,
			},
		}
		for _, tool := range c.Message.ToolCalls {
			choices[i].ToolCalls = append(choices[i].ToolCalls, llms.ToolCall{
				ID:   tool.ID,
				Type: string(tool.Type),
				FunctionCall: &llms.FunctionCall{
					Name:      tool.Function.Name,
					Arguments: tool.Function.Arguments,
				},
			})
		}
	}
	return &llms.ContentResponse{Choices: choices}, nil
}

// ToChatMessages converts the history to chat messages. A tool message
// becomes one chat message per tool result.
func ToChatMessages(messages []llms.Message) ([]*ChatMessage, error) {
	chatMsgs := make([]*ChatMessage, 0, len(messages))
	for _, mc := range messages {
		switch mc.Role {
		case llms.RoleSystem:
			chatMsgs = append(chatMsgs, &ChatMessage{Role: RoleSystem, Content: mc.GetContentText()})
		case llms.RoleHuman:
			content, err := userContent(mc.Parts)
			if err != nil {
				return nil, err
			}
			chatMsgs = append(chatMsgs, &ChatMessage{Role: RoleUser, Content: content})
		case llms.RoleAI:
			msg := &ChatMessage{Role: RoleAssistant}
			if text := mc.GetContentText(); text != "" {
				msg.Content = text
			}
			for _, tc := range mc.GetToolCalls() {
				if tc.FunctionCall == nil {
					return nil, errors.Errorf("tool call %s has no function", tc.ID)
				}
				msg.ToolCalls = append(msg.ToolCalls, openaiclient.ToolCall{
					ID:   tc.ID,
					Type: openaiclient.ToolTypeFunction,
					Function: openaiclient.ToolFunction{
						Name:      tc.FunctionCall.Name,
						Arguments: tc.FunctionCall.Arguments,
					},
				})
			}
			chatMsgs = append(chatMsgs, msg)
		case llms.RoleTool:
			responses := mc.GetToolResponses()
			if len(responses) == 0 {
				return nil, errors.Errorf("expected ToolCallResponse parts for role %v", mc.Role)
			}
			for _, p := range responses {
				chatMsgs = append(chatMsgs, &ChatMessage{
					Role:       RoleTool,
					ToolCallID: p.ToolCallID,
					Content:    p.Content,
				})
			}
		default:
			return nil, errors.Wrapf(llms.ErrUnexpectedRole, "role %v not supported", mc.Role)
		}
	}
	return chatMsgs, nil
}

// userContent returns a string for text-only messages, and content parts
// when images are present.
func userContent(parts []llms.ContentPart) (any, error) {
	var out []openaiclient.ContentPart
	hasImage := false
	for _, part := range parts {
		switch p := part.(type) {
		case llms.TextContent:
			out = append(out, openaiclient.ContentPart{Type: "text", Text: p.Text})
		case llms.BinaryContent:
			hasImage = true
			out = append(out, openaiclient.ContentPart{
				Type: "image_url",
				ImageURL: &openaiclient.ImageURL{
					URL: "data:" + p.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(p.Data),
				},
			})
		default:
			return nil, errors.Errorf("unsupported human message part type: %T", part)
		}
	}
	if !hasImage {
		return llms.Message{Parts: parts}.GetContentText(), nil
	}
	return out, nil
}

// toolFromTool converts an llms.Tool to a Tool.
func toolFromTool(t llms.Tool) (openaiclient.Tool, error) {
	if t.Type != string(openaiclient.ToolTypeFunction) || t.Function == nil {
		return openaiclient.Tool{}, errors.Errorf("tool type %v not supported", t.Type)
	}
	return openaiclient.Tool{
		Type: openaiclient.ToolTypeFunction,
		Function: openaiclient.FunctionDefinition{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters,
			Strict:      t.Function.Strict,
		},
	}, nil
}
