package googleai

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolflow/pkg/llms"
	"github.com/effective-security/toolflow/pkg/llms/googleai/internal/genaiutils"
	"github.com/effective-security/toolflow/pkg/llmutils"
	"google.golang.org/genai"
)

var (
	ErrNoContentInResponse   = errors.New("no content in generation response")
	ErrUnknownPartInResponse = errors.New("unknown part type in generation response")
)

const (
	CITATIONS = "citations"
	SAFETY    = "safety"
	RoleModel = "model"
	RoleUser  = "user"
)

// GetName implements the Model interface.
func (g *GoogleAI) GetName() string {
	return g.opts.DefaultModel
}

// GetProviderType implements the Model interface.
func (g *GoogleAI) GetProviderType() llms.ProviderType {
	return llms.ProviderGoogleAI
}

// GenerateContent implements the [llms.Model] interface.
func (g *GoogleAI) GenerateContent(
	ctx context.Context,
	messages []llms.Message,
	options ...llms.CallOption,
) (*llms.ContentResponse, error) {
	opts := llms.NewCallOptions(llms.CallOptions{
		Model:       g.opts.DefaultModel,
		MaxTokens:   g.opts.DefaultMaxTokens,
		Temperature: g.opts.DefaultTemperature,
		TopP:        g.opts.DefaultTopP,
		TopK:        g.opts.DefaultTopK,
	}, options...)

	callCfg := &genai.GenerateContentConfig{
		StopSequences:   opts.StopWords,
		CandidateCount:  int32(g.opts.DefaultCandidateCount), // #nosec G115
		MaxOutputTokens: int32(opts.MaxTokens),              // #nosec G115
		Temperature:     genaiutils.Float32Ptr(float32(opts.Temperature)),
		TopP:            genaiutils.Float32Ptr(float32(opts.TopP)),
		TopK:            genaiutils.Float32Ptr(float32(opts.TopK)),
		Seed:            genaiutils.Int32Ptr(int32(opts.Seed)), // #nosec G115
	}

	for _, category := range []genai.HarmCategory{
		genai.HarmCategoryDangerousContent,
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
	} {
		callCfg.SafetySettings = append(callCfg.SafetySettings, &genai.SafetySetting{
			Category:  category,
			Threshold: g.opts.HarmThreshold,
		})
	}

	var err error
	if callCfg.Tools, err = genaiutils.ConvertTools(opts.Tools); err != nil {
		return nil, err
	}

	system, history, err := ConvertMessages(messages)
	if err != nil {
		return nil, err
	}
	callCfg.SystemInstruction = system

	resp, err := g.client.Models.GenerateContent(ctx, opts.Model, history, callCfg)
	if err != nil {
		return nil, errors.Wrap(err, "googleai: failed to generate content")
	}
	if len(resp.Candidates) == 0 {
		return nil, ErrNoContentInResponse
	}
	return convertCandidates(resp.Candidates, resp.UsageMetadata)
}

// ConvertMessages splits the history into the system instruction and the
// conversation contents. Consecutive tool messages are merged into one
// user content, as Gemini expects all function responses of a turn together.
func ConvertMessages(messages []llms.Message) (*genai.Content, []*genai.Content, error) {
	var system []*genai.Part
	history := make([]*genai.Content, 0, len(messages))
	lastTool := false
	for _, mc := range messages {
		parts, err := convertParts(mc.Parts)
		if err != nil {
			return nil, nil, err
		}

		isTool := false
		switch mc.Role {
		case llms.RoleSystem:
			system = append(system, parts...)
		case llms.RoleHuman:
			history = append(history, &genai.Content{Role: RoleUser, Parts: parts})
		case llms.RoleAI:
			history = append(history, &genai.Content{Role: RoleModel, Parts: parts})
		case llms.RoleTool:
			if lastTool {
				last := history[len(history)-1]
				last.Parts = append(last.Parts, parts...)
			} else {
				history = append(history, &genai.Content{Role: RoleUser, Parts: parts})
			}
			isTool = true
		default:
			return nil, nil, errors.Wrapf(llms.ErrUnexpectedRole, "role %v not supported", mc.Role)
		}
		lastTool = isTool
	}

	var sys *genai.Content
	if len(system) > 0 {
		sys = &genai.Content{Parts: system}
	}
	return sys, history, nil
}

// convertParts converts message parts to genai parts.
func convertParts(parts []llms.ContentPart) ([]*genai.Part, error) {
	converted := make([]*genai.Part, 0, len(parts))
	for _, part := range parts {
		out := new(genai.Part)

		switch p := part.(type) {
		case llms.TextContent:
			out.Text = p.Text
		case llms.BinaryContent:
			out.InlineData = &genai.Blob{MIMEType: p.MIMEType, Data: p.Data}
		case llms.ToolCall:
			fc := p.FunctionCall
			if fc == nil {
				return nil, errors.Errorf("tool call %s has no function", p.ID)
			}
			args, err := llmutils.ParseArguments(fc.Arguments)
			if err != nil {
				args = map[string]any{}
			}
			out.FunctionCall = &genai.FunctionCall{
				ID:   p.ID,
				Name: fc.Name,
				Args: args,
			}
		case llms.ToolCallResponse:
			key := "output"
			if p.IsError {
				key = "error"
			}
			out.FunctionResponse = &genai.FunctionResponse{
				ID:       p.ToolCallID,
				Name:     p.Name,
				Response: map[string]any{key: p.Content},
			}
		default:
			return nil, errors.Errorf("unsupported part type: %T", part)
		}

		converted = append(converted, out)
	}
	return converted, nil
}

// convertCandidates converts candidates to a response.
func convertCandidates(candidates []*genai.Candidate, usage *genai.GenerateContentResponseUsageMetadata) (*llms.ContentResponse, error) {
	var contentResponse llms.ContentResponse

	for _, candidate := range candidates {
		var buf strings.Builder
		var toolCalls []llms.ToolCall

		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				switch {
				case part.FunctionCall != nil:
					b, err := json.Marshal(part.FunctionCall.Args)
					if err != nil {
						return nil, errors.Wrap(err, "failed to marshal function call arguments")
					}
					toolCalls = append(toolCalls, llms.ToolCall{
						ID:   part.FunctionCall.ID,
						Type: "function",
						FunctionCall: &llms.FunctionCall{
							Name:      part.FunctionCall.Name,
							Arguments: string(b),
						},
					})
				case part.Thought:
				case part.Text != "":
					buf.WriteString(part.Text)
				case part.InlineData != nil, part.ExecutableCode != nil, part.CodeExecutionResult != nil:
					return nil, errors.WithMessage(ErrUnknownPartInResponse, "not text or tool")
				}
			}
		}

		metadata := map[string]any{
			CITATIONS: candidate.CitationMetadata,
			SAFETY:    candidate.SafetyRatings,
		}
		if usage != nil {
			metadata["InputTokens"] = usage.PromptTokenCount
			metadata["OutputTokens"] = usage.CandidatesTokenCount + usage.ToolUsePromptTokenCount + usage.ThoughtsTokenCount
			metadata["TotalTokens"] = usage.TotalTokenCount
		}

		contentResponse.Choices = append(contentResponse.Choices, &llms.ContentChoice{
			Content:        buf.String(),
			StopReason:     string(candidate.FinishReason),
			GenerationInfo: metadata,
			ToolCalls:      toolCalls,
		})
	}
	return &contentResponse, nil
}
