package assistants

import (
	"context"

	"github.com/effective-security/toolflow/dispatcher"
	"github.com/effective-security/toolflow/pkg/llms"
	"github.com/effective-security/toolflow/tools"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolflow", "assistants")

// State of the orchestration loop.
type State string

const (
	StateAwaitingModel State = "AWAITING_MODEL"
	StateExecutingTool State = "EXECUTING_TOOL"
	StateDone          State = "DONE"
	StateFailed        State = "FAILED"
)

// IAssistant identifies an assistant to callbacks.
type IAssistant interface {
	// Name returns the name of the Assistant.
	Name() string
	// Description returns the description of the Assistant.
	Description() string
}

// Result is the state of a conversation when Run returns.
type Result struct {
	State State
	// Text is the final answer, set in StateDone.
	Text string
	// Rounds is the number of executed tool rounds.
	Rounds int
	// History is the full conversation, seed included.
	History []llms.Message
	// Outcomes of every tool call, in execution order.
	Outcomes []*tools.Outcome
	// Response is the last model reply.
	Response *llms.ContentResponse
}

// Callback observes the loop and the tool invocations it makes.
type Callback interface {
	dispatcher.Callback
	OnAssistantStart(ctx context.Context, a IAssistant, history []llms.Message)
	OnAssistantLLMCallStart(ctx context.Context, a IAssistant, round int, history []llms.Message)
	OnAssistantLLMCallEnd(ctx context.Context, a IAssistant, round int, resp *llms.ContentResponse)
	OnAssistantEnd(ctx context.Context, a IAssistant, result *Result)
	OnAssistantError(ctx context.Context, a IAssistant, err error, result *Result)
}
