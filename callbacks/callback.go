// Package callbacks provides observers of the orchestration loop and its tool calls.
package callbacks

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/effective-security/toolflow/assistants"
	"github.com/effective-security/toolflow/dispatcher"
	"github.com/effective-security/toolflow/pkg/llms"
	"github.com/effective-security/toolflow/pkg/llmutils"
	"github.com/effective-security/toolflow/tools"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
)

// ensure that the callbacks implement the correct interfaces
var (
	_ assistants.Callback = (*Printer)(nil)
	_ assistants.Callback = (*PackageLogger)(nil)
	_ assistants.Callback = (*Fanout)(nil)
	_ dispatcher.Callback = (*Fanout)(nil)
)

// Mode defines the mode for callback printing
type Mode int

const (
	// ModeDefault is the default mode for callback printing
	ModeDefault Mode = iota
	// ModeVerbose is the verbose mode for callback printing
	ModeVerbose
)

// Fanout is a callback handler that forwards the events to multiple callbacks.
type Fanout struct {
	callbacks []assistants.Callback
}

func NewFanout(callbacks ...assistants.Callback) *Fanout {
	return &Fanout{callbacks: callbacks}
}

func (l *Fanout) Add(callback assistants.Callback) {
	l.callbacks = append(l.callbacks, callback)
}

func (l *Fanout) OnAssistantStart(ctx context.Context, a assistants.IAssistant, history []llms.Message) {
	for _, callback := range l.callbacks {
		callback.OnAssistantStart(ctx, a, history)
	}
}

func (l *Fanout) OnAssistantLLMCallStart(ctx context.Context, a assistants.IAssistant, round int, history []llms.Message) {
	for _, callback := range l.callbacks {
		callback.OnAssistantLLMCallStart(ctx, a, round, history)
	}
}

func (l *Fanout) OnAssistantLLMCallEnd(ctx context.Context, a assistants.IAssistant, round int, resp *llms.ContentResponse) {
	for _, callback := range l.callbacks {
		callback.OnAssistantLLMCallEnd(ctx, a, round, resp)
	}
}

func (l *Fanout) OnAssistantEnd(ctx context.Context, a assistants.IAssistant, result *assistants.Result) {
	for _, callback := range l.callbacks {
		callback.OnAssistantEnd(ctx, a, result)
	}
}

func (l *Fanout) OnAssistantError(ctx context.Context, a assistants.IAssistant, err error, result *assistants.Result) {
	for _, callback := range l.callbacks {
		callback.OnAssistantError(ctx, a, err, result)
	}
}

func (l *Fanout) OnToolStart(ctx context.Context, req *tools.CallRequest) {
	for _, callback := range l.callbacks {
		callback.OnToolStart(ctx, req)
	}
}

func (l *Fanout) OnToolEvent(ctx context.Context, ev *dispatcher.Event) {
	for _, callback := range l.callbacks {
		callback.OnToolEvent(ctx, ev)
	}
}

func (l *Fanout) OnToolEnd(ctx context.Context, req *tools.CallRequest, outcome *tools.Outcome, elapsed time.Duration) {
	for _, callback := range l.callbacks {
		callback.OnToolEnd(ctx, req, outcome, elapsed)
	}
}

// Printer is a callback handler that prints to the Writer.
type Printer struct {
	Out  io.Writer
	Mode Mode

	lock sync.Mutex
}

func NewPrinter(out io.Writer, mode Mode) *Printer {
	return &Printer{Out: out, Mode: mode}
}

func (l *Printer) OnAssistantStart(_ context.Context, a assistants.IAssistant, history []llms.Message) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Assistant Start: %s\n", a.Name())
	if q := llmutils.FindLastUserQuestion(history); q != "" {
		fmt.Fprintf(l.Out, "Input: %s\n", q)
	}
}

func (l *Printer) OnAssistantLLMCallStart(_ context.Context, a assistants.IAssistant, round int, history []llms.Message) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "LLM Call: %s: round %d, %d messages\n", a.Name(), round, len(history))
	if l.Mode == ModeVerbose {
		llmutils.PrintMessages(l.Out, history)
	}
}

func (l *Printer) OnAssistantLLMCallEnd(_ context.Context, a assistants.IAssistant, round int, resp *llms.ContentResponse) {
	l.lock.Lock()
	defer l.lock.Unlock()
	in, out, _ := llmutils.CountTokens(resp)
	fmt.Fprintf(l.Out, "LLM Call End: %s: round %d, %d tool calls, %d input tokens, %d output tokens\n",
		a.Name(), round, len(resp.ToolCalls()), in, out)
}

func (l *Printer) OnAssistantEnd(_ context.Context, a assistants.IAssistant, result *assistants.Result) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Assistant End: %s: %d rounds\n", a.Name(), result.Rounds)
	if l.Mode == ModeVerbose && result.Text != "" {
		fmt.Fprintln(l.Out, result.Text)
	}
}

func (l *Printer) OnAssistantError(_ context.Context, a assistants.IAssistant, err error, _ *assistants.Result) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Assistant Error: %s: %s\n", a.Name(), err.Error())
}

func (l *Printer) OnToolStart(_ context.Context, req *tools.CallRequest) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Start: %s (%s)\n", req.Name, req.ID)
	if l.Mode == ModeVerbose {
		fmt.Fprintf(l.Out, "Input: %s\n", llmutils.ToJSON(req.Arguments))
	}
}

func (l *Printer) OnToolEvent(_ context.Context, ev *dispatcher.Event) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Event: %s #%d [%s] %s\n", ev.Tool, ev.Seq, ev.Level, ev.Message)
}

func (l *Printer) OnToolEnd(_ context.Context, req *tools.CallRequest, outcome *tools.Outcome, elapsed time.Duration) {
	l.lock.Lock()
	defer l.lock.Unlock()
	if !outcome.Succeeded() {
		fmt.Fprintf(l.Out, "Tool Error: %s (%s): %s: %s\n", req.Name, req.ID, outcome.Failure.Kind, outcome.Failure.Message)
		return
	}
	fmt.Fprintf(l.Out, "Tool End: %s (%s) in %s\n", req.Name, req.ID, elapsed.Round(time.Millisecond))
	if l.Mode == ModeVerbose {
		fmt.Fprintf(l.Out, "Output: %s\n", outcome.Content())
	}
}

// PackageLogger is a callback handler that prints to the logger.
type PackageLogger struct {
	logger *xlog.PackageLogger
}

func NewPackageLogger(logger *xlog.PackageLogger) *PackageLogger {
	return &PackageLogger{logger: logger}
}

func (l *PackageLogger) OnAssistantStart(ctx context.Context, a assistants.IAssistant, history []llms.Message) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "assistant_start",
		"assistant", a.Name(),
		"input", slices.StringUpto(llmutils.FindLastUserQuestion(history), 64),
	)
}

func (l *PackageLogger) OnAssistantLLMCallStart(ctx context.Context, a assistants.IAssistant, round int, history []llms.Message) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "assistant_llm_call_start",
		"assistant", a.Name(),
		"round", round,
		"messages", len(history),
	)
}

func (l *PackageLogger) OnAssistantLLMCallEnd(ctx context.Context, a assistants.IAssistant, round int, resp *llms.ContentResponse) {
	in, out, _ := llmutils.CountTokens(resp)
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "assistant_llm_call_end",
		"assistant", a.Name(),
		"round", round,
		"tool_calls", len(resp.ToolCalls()),
		"input_tokens", in,
		"output_tokens", out,
	)
}

func (l *PackageLogger) OnAssistantEnd(ctx context.Context, a assistants.IAssistant, result *assistants.Result) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "assistant_end",
		"assistant", a.Name(),
		"rounds", result.Rounds,
		"result", slices.StringUpto(result.Text, 64),
	)
}

func (l *PackageLogger) OnAssistantError(ctx context.Context, a assistants.IAssistant, err error, result *assistants.Result) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "assistant_error",
		"assistant", a.Name(),
		"rounds", result.Rounds,
		"err", err.Error(),
	)
}

func (l *PackageLogger) OnToolStart(ctx context.Context, req *tools.CallRequest) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_start",
		"tool", req.Name,
		"call_id", req.ID,
	)
}

func (l *PackageLogger) OnToolEvent(ctx context.Context, ev *dispatcher.Event) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_event",
		"tool", ev.Tool,
		"call_id", ev.CallID,
		"seq", ev.Seq,
		"level", ev.Level,
		"message", ev.Message,
	)
}

func (l *PackageLogger) OnToolEnd(ctx context.Context, req *tools.CallRequest, outcome *tools.Outcome, elapsed time.Duration) {
	if !outcome.Succeeded() {
		l.logger.ContextKV(ctx, xlog.ERROR,
			"event", "tool_error",
			"tool", req.Name,
			"call_id", req.ID,
			"kind", outcome.Failure.Kind,
			"err", outcome.Failure.Message,
		)
		return
	}
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_end",
		"tool", req.Name,
		"call_id", req.ID,
		"elapsed", elapsed.String(),
	)
}
