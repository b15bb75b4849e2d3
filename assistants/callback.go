package assistants

import (
	"context"
	"time"

	"github.com/effective-security/toolflow/dispatcher"
	"github.com/effective-security/toolflow/pkg/llms"
	"github.com/effective-security/toolflow/tools"
)

// NoopCallback does nothing, embed it to implement a subset of Callback.
type NoopCallback struct{}

// NewNoopCallback returns a NoopCallback.
func NewNoopCallback() *NoopCallback {
	return &NoopCallback{}
}

var _ Callback = (*NoopCallback)(nil)

func (l *NoopCallback) OnAssistantStart(context.Context, IAssistant, []llms.Message) {}
func (l *NoopCallback) OnAssistantLLMCallStart(context.Context, IAssistant, int, []llms.Message) {
}
func (l *NoopCallback) OnAssistantLLMCallEnd(context.Context, IAssistant, int, *llms.ContentResponse) {
}
func (l *NoopCallback) OnAssistantEnd(context.Context, IAssistant, *Result)          {}
func (l *NoopCallback) OnAssistantError(context.Context, IAssistant, error, *Result) {}
func (l *NoopCallback) OnToolStart(context.Context, *tools.CallRequest)              {}
func (l *NoopCallback) OnToolEvent(context.Context, *dispatcher.Event)               {}
func (l *NoopCallback) OnToolEnd(context.Context, *tools.CallRequest, *tools.Outcome, time.Duration) {
}
