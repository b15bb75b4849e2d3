package callbacks

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/effective-security/toolflow/assistants"
	"github.com/effective-security/toolflow/chatmodel"
	"github.com/effective-security/toolflow/dispatcher"
	"github.com/effective-security/toolflow/pkg/llms"
	"github.com/effective-security/toolflow/pkg/llmutils"
	"github.com/effective-security/toolflow/tools"
)

var (
	_ assistants.Callback = (*Scratchpad)(nil)
	_ dispatcher.Callback = (*Scratchpad)(nil)
)

var TimeNowFn = time.Now

// RunStats is the summary of a run.
type RunStats struct {
	ChatID string
	RunID  string

	Duration                time.Duration
	TotalMessages           uint32
	LLMBytesOut             uint64
	LLMBytesIn              uint64
	LLMInputTokens          uint64
	LLMOutputTokens         uint64
	LLMTotalTokens          uint64
	AssistantCalls          uint32
	AssistantCallsSucceeded uint32
	AssistantCallsFailed    uint32
	AssistantLLMCalls       uint32
	Rounds                  uint32
	ToolsCalls              uint32
	ToolsCallsSucceeded     uint32
	ToolsCallsFailed        uint32
	ToolNotFound            uint32
	ToolEvents              uint32
}

// Scratchpad records a transcript and statistics per chat run.
// Events for a context without a started run are ignored.
type Scratchpad struct {
	runs map[string]*run
	mode Mode
	lock sync.Mutex
}

func NewScratchpad(mode Mode) *Scratchpad {
	return &Scratchpad{
		runs: make(map[string]*run),
		mode: mode,
	}
}

// StartRun starts recording for the chat in the context.
func (l *Scratchpad) StartRun(ctx context.Context) {
	chatCtx := chatmodel.GetChatContext(ctx)
	if chatCtx == nil {
		return
	}

	r := &run{
		stats: RunStats{
			ChatID: chatCtx.GetChatID(),
			RunID:  chatCtx.RunID(),
		},
		chatCtx: chatCtx,
		started: TimeNowFn(),
	}

	l.lock.Lock()
	l.runs[chatCtx.GetChatID()] = r
	l.lock.Unlock()

	r.print("*** Run Started ***")
}

// EndRun stops recording and returns the stats and transcript of the run.
func (l *Scratchpad) EndRun(ctx context.Context) (*RunStats, []byte) {
	r := l.getRun(ctx)
	if r == nil {
		return nil, nil
	}

	stats := r.snapshot()
	stats.Duration = TimeNowFn().Sub(r.started)

	r.print(fmt.Sprintf("Assistant calls: %d, Failed: %d, Rounds: %d",
		stats.AssistantCalls,
		stats.AssistantCallsFailed,
		stats.Rounds,
	))
	r.print(fmt.Sprintf("Tool calls: %d, Failed: %d, Not Found: %d, Events: %d",
		stats.ToolsCalls,
		stats.ToolsCallsFailed,
		stats.ToolNotFound,
		stats.ToolEvents,
	))
	r.print(fmt.Sprintf("LLM calls: %d, Messages: %d, Bytes Out: %d, Bytes In: %d, Input Tokens: %d, Output Tokens: %d, Total Tokens: %d",
		stats.AssistantLLMCalls,
		stats.TotalMessages,
		stats.LLMBytesOut,
		stats.LLMBytesIn,
		stats.LLMInputTokens,
		stats.LLMOutputTokens,
		stats.LLMTotalTokens,
	))
	r.print(fmt.Sprintf("*** Run Ended. Duration: %s ***", stats.Duration))

	l.lock.Lock()
	delete(l.runs, stats.ChatID)
	l.lock.Unlock()

	return &stats, r.bytes()
}

func (l *Scratchpad) getRun(ctx context.Context) *run {
	chatCtx := chatmodel.GetChatContext(ctx)
	if chatCtx == nil {
		return nil
	}

	l.lock.Lock()
	defer l.lock.Unlock()
	return l.runs[chatCtx.GetChatID()]
}

func (l *Scratchpad) OnAssistantStart(ctx context.Context, a assistants.IAssistant, history []llms.Message) {
	r := l.getRun(ctx)
	if r == nil {
		return
	}
	atomic.AddUint32(&r.stats.AssistantCalls, 1)
	r.print(a.Name(), "*** Assistant Start ***")
	r.print(a.Name(), "Input:", llmutils.FindLastUserQuestion(history))
}

func (l *Scratchpad) OnAssistantLLMCallStart(ctx context.Context, a assistants.IAssistant, round int, history []llms.Message) {
	r := l.getRun(ctx)
	if r == nil {
		return
	}
	count := uint32(len(history)) // #nosec G115
	atomic.AddUint32(&r.stats.AssistantLLMCalls, 1)
	atomic.AddUint32(&r.stats.TotalMessages, count)
	atomic.AddUint64(&r.stats.LLMBytesOut, llmutils.CountMessagesContentSize(history))

	r.print(a.Name(), "*** LLM Call ***", fmt.Sprintf("round %d, %d messages", round, count))
	if l.mode == ModeVerbose {
		r.print(a.Name(), printMessages(history))
	}
}

func (l *Scratchpad) OnAssistantLLMCallEnd(ctx context.Context, a assistants.IAssistant, round int, resp *llms.ContentResponse) {
	r := l.getRun(ctx)
	if r == nil {
		return
	}
	in, out, total := llmutils.CountTokens(resp)
	atomic.AddUint64(&r.stats.LLMBytesIn, llmutils.CountResponseContentSize(resp))
	atomic.AddUint64(&r.stats.LLMInputTokens, uint64(in))     // #nosec G115
	atomic.AddUint64(&r.stats.LLMOutputTokens, uint64(out))   // #nosec G115
	atomic.AddUint64(&r.stats.LLMTotalTokens, uint64(total)) // #nosec G115

	r.print(a.Name(), "*** LLM Call End ***",
		fmt.Sprintf("round %d, %d tool calls, %d input tokens, %d output tokens, %d total tokens",
			round, len(resp.ToolCalls()), in, out, total))
}

func (l *Scratchpad) OnAssistantEnd(ctx context.Context, a assistants.IAssistant, result *assistants.Result) {
	r := l.getRun(ctx)
	if r == nil {
		return
	}
	atomic.AddUint32(&r.stats.AssistantCallsSucceeded, 1)
	atomic.AddUint32(&r.stats.Rounds, uint32(result.Rounds)) // #nosec G115
	if l.mode == ModeVerbose {
		r.print(a.Name(), "Output:", result.Text)
		r.print(a.Name(), printMessages(result.History))
	}
	r.print(a.Name(), "*** Assistant End ***")
}

func (l *Scratchpad) OnAssistantError(ctx context.Context, a assistants.IAssistant, err error, result *assistants.Result) {
	r := l.getRun(ctx)
	if r == nil {
		return
	}
	atomic.AddUint32(&r.stats.AssistantCallsFailed, 1)
	r.print(a.Name(), "*** Error ***", err.Error())
	if result != nil {
		atomic.AddUint32(&r.stats.Rounds, uint32(result.Rounds)) // #nosec G115
		r.print(a.Name(), printMessages(result.History))
	}
}

func (l *Scratchpad) OnToolStart(ctx context.Context, req *tools.CallRequest) {
	r := l.getRun(ctx)
	if r == nil {
		return
	}
	atomic.AddUint32(&r.stats.ToolsCalls, 1)
	r.print(req.Name, "*** Tool Start ***", req.ID)
	r.print(req.Name, "Input:", llmutils.ToJSON(req.Arguments))
}

func (l *Scratchpad) OnToolEvent(ctx context.Context, ev *dispatcher.Event) {
	r := l.getRun(ctx)
	if r == nil {
		return
	}
	atomic.AddUint32(&r.stats.ToolEvents, 1)
	r.print(ev.Tool, "*** Progress ***", string(ev.Level), ev.Message)
}

func (l *Scratchpad) OnToolEnd(ctx context.Context, req *tools.CallRequest, outcome *tools.Outcome, elapsed time.Duration) {
	r := l.getRun(ctx)
	if r == nil {
		return
	}
	if outcome.Succeeded() {
		atomic.AddUint32(&r.stats.ToolsCallsSucceeded, 1)
		if l.mode == ModeVerbose {
			r.print(req.Name, "Output:", outcome.Content())
		}
		r.print(req.Name, "*** Tool End ***", elapsed.String())
		return
	}

	if outcome.Failure.Kind == tools.FailureUnknownTool {
		atomic.AddUint32(&r.stats.ToolNotFound, 1)
		r.print(req.Name, "*** Tool Not Found ***")
		return
	}
	atomic.AddUint32(&r.stats.ToolsCallsFailed, 1)
	r.print(req.Name, "*** Tool Error ***", string(outcome.Failure.Kind), outcome.Failure.Message)
}

func printMessages(messages []llms.Message) string {
	var buf strings.Builder
	buf.WriteString("Messages:\n")
	for idx, msg := range messages {
		fmt.Fprintf(&buf, "[%d] %s:\n", idx, msg.Role)
		texts, calls, responses := 0, 0, 0
		for _, part := range msg.Parts {
			switch typ := part.(type) {
			case llms.TextContent:
				texts++
			case llms.ToolCall:
				calls++
				buf.WriteString("  - ")
				buf.WriteString(typ.String())
				buf.WriteString("\n")
			case llms.ToolCallResponse:
				responses++
				buf.WriteString("  - ")
				buf.WriteString(typ.String())
				buf.WriteString("\n")
			}
		}
		fmt.Fprintf(&buf, "  - %d texts, %d tool calls, %d tool responses\n", texts, calls, responses)
	}
	return buf.String()
}

type run struct {
	chatCtx chatmodel.ChatContext
	w       bytes.Buffer
	started time.Time
	lock    sync.Mutex
	stats   RunStats
}

func (r *run) snapshot() RunStats {
	r.lock.Lock()
	defer r.lock.Unlock()
	return RunStats{
		ChatID:                  r.stats.ChatID,
		RunID:                   r.stats.RunID,
		TotalMessages:           atomic.LoadUint32(&r.stats.TotalMessages),
		LLMBytesOut:             atomic.LoadUint64(&r.stats.LLMBytesOut),
		LLMBytesIn:              atomic.LoadUint64(&r.stats.LLMBytesIn),
		LLMInputTokens:          atomic.LoadUint64(&r.stats.LLMInputTokens),
		LLMOutputTokens:         atomic.LoadUint64(&r.stats.LLMOutputTokens),
		LLMTotalTokens:          atomic.LoadUint64(&r.stats.LLMTotalTokens),
		AssistantCalls:          atomic.LoadUint32(&r.stats.AssistantCalls),
		AssistantCallsSucceeded: atomic.LoadUint32(&r.stats.AssistantCallsSucceeded),
		AssistantCallsFailed:    atomic.LoadUint32(&r.stats.AssistantCallsFailed),
		AssistantLLMCalls:       atomic.LoadUint32(&r.stats.AssistantLLMCalls),
		Rounds:                  atomic.LoadUint32(&r.stats.Rounds),
		ToolsCalls:              atomic.LoadUint32(&r.stats.ToolsCalls),
		ToolsCallsSucceeded:     atomic.LoadUint32(&r.stats.ToolsCallsSucceeded),
		ToolsCallsFailed:        atomic.LoadUint32(&r.stats.ToolsCallsFailed),
		ToolNotFound:            atomic.LoadUint32(&r.stats.ToolNotFound),
		ToolEvents:              atomic.LoadUint32(&r.stats.ToolEvents),
	}
}

func (r *run) bytes() []byte {
	r.lock.Lock()
	defer r.lock.Unlock()
	return bytes.Clone(r.w.Bytes())
}

// print writes the entries to the run's output in the format:
// [timestamp chatID.runID] entry entry\n
func (r *run) print(entries ...string) {
	r.lock.Lock()
	defer r.lock.Unlock()

	ts := TimeNowFn().Format("2006-01-02 15:04:05")
	fmt.Fprintf(&r.w, "[%s %s.%s] %s\n", ts, r.chatCtx.GetChatID(), r.chatCtx.RunID(), strings.Join(entries, " "))
}
