package assistants

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolflow/chatmodel"
	"github.com/effective-security/toolflow/dispatcher"
	"github.com/effective-security/toolflow/pkg/llms"
	"github.com/effective-security/toolflow/pkg/llmutils"
	"github.com/effective-security/toolflow/pkg/metricskey"
	"github.com/effective-security/toolflow/pkg/prompts"
	"github.com/effective-security/toolflow/tools"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
)

// Assistant runs conversations against a model, executing the tools the
// model requests through a Dispatcher. One Assistant serves many
// conversations concurrently; each Run is sequential.
type Assistant struct {
	LLM        llms.Model
	Dispatcher *dispatcher.Dispatcher

	cfg         *Config
	name        string
	description string
	llmToolDefs []llms.Tool
}

var _ IAssistant = (*Assistant)(nil)

// NewAssistant returns an Assistant using the tools of the dispatcher registry.
func NewAssistant(model llms.Model, d *dispatcher.Dispatcher, options ...Option) *Assistant {
	return &Assistant{
		LLM:         model,
		Dispatcher:  d,
		cfg:         NewConfig(options...),
		name:        "Generic Assistant",
		description: "An AI assistant that can perform various tasks.",
		llmToolDefs: d.Registry().LLMTools(),
	}
}

// WithName sets the name of the Assistant.
func (a *Assistant) WithName(name string) *Assistant {
	a.name = name
	return a
}

// WithDescription sets the description of the Assistant.
func (a *Assistant) WithDescription(description string) *Assistant {
	a.description = description
	return a
}

// Name returns the name of the Assistant.
func (a *Assistant) Name() string {
	return a.name
}

// Description returns the description of the Assistant.
func (a *Assistant) Description() string {
	return a.description
}

// Tools returns the tool definitions sent to the model.
func (a *Assistant) Tools() []llms.Tool {
	return a.llmToolDefs
}

// GetCallConfig returns the effective config for a call.
func (a *Assistant) GetCallConfig(opts ...Option) *Config {
	return a.cfg.Apply(opts...)
}

// Call runs a conversation seeded with the system prompt, the few-shot
// examples and the input as a human message.
func (a *Assistant) Call(ctx context.Context, input string, opts ...Option) (*Result, error) {
	cfg := a.GetCallConfig(opts...)

	var seed []llms.Message
	if cfg.SystemPrompt != "" {
		tmpl, err := prompts.NewMessageTemplate(llms.RoleSystem, cfg.SystemPrompt)
		if err != nil {
			return nil, err
		}
		msg, err := tmpl.Format(cfg.PromptInput)
		if err != nil {
			return nil, errors.WithMessage(err, "failed to format system prompt")
		}
		seed = append(seed, msg)
	}
	for _, example := range cfg.Examples {
		seed = append(seed,
			llms.MessageFromTextParts(llms.RoleHuman, example.Prompt),
			llms.MessageFromTextParts(llms.RoleAI, example.Completion),
		)
	}
	preamble := len(seed)
	if input != "" {
		seed = append(seed, llms.MessageFromTextParts(llms.RoleHuman, input))
	}
	return a.execute(ctx, cfg, seed, preamble)
}

// Run drives the conversation from the seed history until the model
// answers with text (StateDone), or the loop fails (StateFailed).
//
// Tool failures are returned to the model as tool results and never end
// the conversation. The loop fails with a TransportError when the model
// call fails, or with a RoundLimitExceededError when the model requests a
// tool after MaxRounds tool rounds. The Result is returned in both cases.
func (a *Assistant) Run(ctx context.Context, seed []llms.Message, opts ...Option) (*Result, error) {
	cfg := a.GetCallConfig(opts...)
	preamble := 0
	for preamble < len(seed) && seed[preamble].Role == llms.RoleSystem {
		preamble++
	}
	return a.execute(ctx, cfg, seed, preamble)
}

func (a *Assistant) execute(ctx context.Context, cfg *Config, seed []llms.Message, preamble int) (*Result, error) {
	started := time.Now()
	defer metricskey.PerfAssistantRun.MeasureSince(started, a.name)

	callback := cfg.CallbackHandler
	if callback != nil {
		callback.OnAssistantStart(ctx, a, seed)
	}

	res, err := a.run(ctx, cfg, seed, preamble)
	if err != nil {
		metricskey.StatsAssistantRunsFailed.IncrCounter(1, a.name, failureReason(err))
		logger.ContextKV(ctx, xlog.WARNING,
			"assistant", a.name,
			"status", "failed",
			"rounds", res.Rounds,
			"err", err.Error(),
		)
		if callback != nil {
			callback.OnAssistantError(ctx, a, err, res)
		}
		return res, err
	}

	metricskey.StatsAssistantRunsSucceeded.IncrCounter(1, a.name)
	if callback != nil {
		callback.OnAssistantEnd(ctx, a, res)
	}
	return res, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrRoundLimitExceeded):
		return "round_limit"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "invalid"
	}
}

// run is the state machine. preamble is the number of leading seed
// messages that are not checkpointed.
func (a *Assistant) run(ctx context.Context, cfg *Config, seed []llms.Message, preamble int) (*Result, error) {
	res := &Result{State: StateAwaitingModel}

	checkpoint := cfg.Store != nil && !cfg.SkipMessageHistory
	if checkpoint || cfg.Resume {
		if _, _, err := chatmodel.GetTenantAndChatID(ctx); err != nil {
			res.State = StateFailed
			return res, err
		}
	}

	history := make([]llms.Message, 0, len(seed))
	history = append(history, seed[:preamble]...)
	if cfg.Resume && cfg.Store != nil {
		stored := cfg.Store.Messages(ctx)
		logger.ContextKV(ctx, xlog.DEBUG,
			"assistant", a.name,
			"chat_id", chatmodel.GetChatID(ctx),
			"status", "resumed",
			"message_history", len(stored),
		)
		history = append(history, stored...)
	}
	persisted := len(history)
	history = append(history, seed[preamble:]...)
	res.History = history

	var callOpts []llms.CallOption
	if len(a.llmToolDefs) > 0 {
		if !a.LLM.GetProviderType().Supports(llms.CapabilityFunctionCalling) {
			res.State = StateFailed
			return res, errors.WithMessagef(ErrFunctionCallingNotSupported, "assistant %s", a.name)
		}
		callOpts = cfg.GetCallOptions(llms.WithTools(a.llmToolDefs))
	} else {
		callOpts = cfg.GetCallOptions()
	}

	save := func() {
		if !checkpoint || persisted >= len(res.History) {
			return
		}
		if err := cfg.Store.Add(ctx, res.History[persisted:]...); err != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"assistant", a.name,
				"status", "checkpoint_failed",
				"err", err.Error(),
			)
			return
		}
		persisted = len(res.History)
	}

	maxRounds := cfg.GetMaxRounds()
	modelName := a.LLM.GetName()

	for round := 1; ; round++ {
		res.State = StateAwaitingModel

		if err := ctx.Err(); err != nil {
			return a.fail(res, &TransportError{State: StateAwaitingModel, Round: round, History: len(res.History), Cause: err})
		}

		if cfg.CallbackHandler != nil {
			cfg.CallbackHandler.OnAssistantLLMCallStart(ctx, a, round, res.History)
		}

		started := time.Now()
		resp, err := a.LLM.GenerateContent(ctx, res.History, callOpts...)
		metricskey.PerfLLMCall.MeasureSince(started, a.name, modelName)
		if err != nil {
			return a.fail(res, &TransportError{State: StateAwaitingModel, Round: round, History: len(res.History), Cause: err})
		}
		if resp == nil || len(resp.Choices) == 0 {
			return a.fail(res, &TransportError{State: StateAwaitingModel, Round: round, History: len(res.History), Cause: ErrEmptyResponse})
		}
		res.Response = resp

		tokensIn, tokensOut, _ := llmutils.CountTokens(resp)
		metricskey.StatsLLMInputTokens.IncrCounter(float64(tokensIn), a.name, modelName)
		metricskey.StatsLLMOutputTokens.IncrCounter(float64(tokensOut), a.name, modelName)

		if cfg.CallbackHandler != nil {
			cfg.CallbackHandler.OnAssistantLLMCallEnd(ctx, a, round, resp)
		}

		calls := resp.ToolCalls()
		if len(calls) == 0 {
			res.Text = resp.Text()
			res.History = append(res.History, llms.MessageFromTextParts(llms.RoleAI, res.Text))
			res.State = StateDone
			save()

			logger.ContextKV(ctx, xlog.DEBUG,
				"assistant", a.name,
				"status", "done",
				"rounds", res.Rounds,
				"ai", slices.StringUpto(res.Text, 64),
			)
			return res, nil
		}

		if res.Rounds >= maxRounds {
			return a.fail(res, &RoundLimitExceededError{
				State:     StateAwaitingModel,
				Round:     round,
				MaxRounds: maxRounds,
				History:   len(res.History),
				Cause:     errors.Newf("model requested %s after %d tool rounds", callNames(calls), res.Rounds),
			})
		}

		res.State = StateExecutingTool
		calls = normalizeCalls(calls)
		res.History = append(res.History, llms.MessageFromToolCalls(llms.RoleAI, calls...))

		for _, call := range calls {
			outcome := a.invoke(ctx, cfg, call)
			res.Outcomes = append(res.Outcomes, outcome)

			content := outcome.ContentAs(cfg.ResultFormat)
			res.History = append(res.History, llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{
				ToolCallID: call.ID,
				Name:       call.FunctionCall.Name,
				Content:    content,
				IsError:    !outcome.Succeeded(),
			}))

			logger.ContextKV(ctx, xlog.DEBUG,
				"assistant", a.name,
				"status", "tool_call_response",
				"tool_call_id", call.ID,
				"tool_name", call.FunctionCall.Name,
				"succeeded", outcome.Succeeded(),
				"content_length", len(content),
			)
		}

		res.Rounds++
		metricskey.StatsAssistantRounds.IncrCounter(1, a.name)
		save()
	}
}

func (a *Assistant) fail(res *Result, err error) (*Result, error) {
	res.State = StateFailed
	return res, err
}

// invoke dispatches one call. Arguments that are not a JSON object become a
// validation failure of a known tool.
func (a *Assistant) invoke(ctx context.Context, cfg *Config, call llms.ToolCall) *tools.Outcome {
	req := &tools.CallRequest{
		ID:   call.ID,
		Name: call.FunctionCall.Name,
	}

	var callbacks []dispatcher.Callback
	if cfg.CallbackHandler != nil {
		callbacks = append(callbacks, cfg.CallbackHandler)
	}

	args, err := llmutils.ParseArguments(call.FunctionCall.Arguments)
	if err != nil {
		if _, lerr := a.Dispatcher.Registry().Lookup(req.Name); lerr == nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"assistant", a.name,
				"status", "invalid_arguments",
				"tool_name", req.Name,
				"arguments", slices.StringUpto(call.FunctionCall.Arguments, 64),
			)
			return tools.Fail(req, tools.FailureValidation, &tools.ValidationError{
				Tool: req.Name,
				Violations: []tools.Violation{{
					Kind:    tools.ViolationInvalid,
					Message: fmt.Sprintf("arguments must be a JSON object: %s", err.Error()),
				}},
			})
		}
	}
	req.Arguments = args
	return a.Dispatcher.Invoke(ctx, req, callbacks...)
}

// normalizeCalls makes correlation ids unique within the reply.
func normalizeCalls(calls []llms.ToolCall) []llms.ToolCall {
	seen := make(map[string]bool, len(calls))
	list := make([]llms.ToolCall, 0, len(calls))
	for _, call := range calls {
		if call.ID == "" || seen[call.ID] {
			call.ID = "call_" + uuid.NewString()
		}
		seen[call.ID] = true
		call.Type = values.StringsCoalesce(call.Type, "function")
		if call.FunctionCall == nil {
			call.FunctionCall = &llms.FunctionCall{}
		}
		list = append(list, call)
	}
	return list
}

func callNames(calls []llms.ToolCall) string {
	names := make([]string, 0, len(calls))
	for _, c := range calls {
		if c.FunctionCall != nil {
			names = append(names, c.FunctionCall.Name)
		}
	}
	return strings.Join(names, ", ")
}
