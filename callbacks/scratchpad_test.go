package callbacks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/effective-security/toolflow/assistants"
	"github.com/effective-security/toolflow/chatmodel"
	"github.com/effective-security/toolflow/dispatcher"
	"github.com/effective-security/toolflow/pkg/llms"
	"github.com/effective-security/toolflow/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAssistant struct{ name string }

func (a *fakeAssistant) Name() string        { return a.name }
func (a *fakeAssistant) Description() string { return "desc" }

func newTestChatContext() (context.Context, chatmodel.ChatContext) {
	chatCtx := chatmodel.NewChatContext("tenant1", chatmodel.NewChatID(), nil)
	return chatmodel.WithChatContext(context.Background(), chatCtx), chatCtx
}

func history() []llms.Message {
	return []llms.Message{
		llms.MessageFromTextParts(llms.RoleSystem, "be helpful"),
		llms.MessageFromTextParts(llms.RoleHuman, "what is 6*7?"),
	}
}

func TestScratchpad_StartRun_EndRun(t *testing.T) {
	t.Parallel()
	sp := NewScratchpad(ModeVerbose)
	ctx, cctx := newTestChatContext()
	sp.StartRun(ctx)

	r := sp.runs[cctx.GetChatID()]
	require.NotNil(t, r)
	r.stats.AssistantCalls = 2
	r.stats.AssistantCallsFailed = 1
	r.stats.ToolsCalls = 3
	r.stats.ToolsCallsFailed = 2
	r.stats.ToolNotFound = 1

	stats, buf := sp.EndRun(ctx)
	require.NotNil(t, stats)
	assert.Equal(t, cctx.GetChatID(), stats.ChatID)
	assert.Equal(t, cctx.RunID(), stats.RunID)
	out := string(buf)
	assert.Contains(t, out, "*** Run Started ***")
	assert.Contains(t, out, "*** Run Ended.")
	assert.Contains(t, out, "Assistant calls: 2, Failed: 1")
	assert.Contains(t, out, "Tool calls: 3, Failed: 2, Not Found: 1")

	_, ok := sp.runs[cctx.GetChatID()]
	assert.False(t, ok)

	s2, b2 := sp.EndRun(ctx)
	assert.Nil(t, s2)
	assert.Nil(t, b2)
}

func TestScratchpad_getRun_nil(t *testing.T) {
	t.Parallel()
	sp := NewScratchpad(ModeDefault)
	assert.Nil(t, sp.getRun(context.Background()))

	sp.StartRun(context.Background())
	assert.Empty(t, sp.runs)

	ctx, _ := newTestChatContext()
	assert.Nil(t, sp.getRun(ctx))
}

func TestScratchpad_OnCallbacks(t *testing.T) {
	t.Parallel()
	sp := NewScratchpad(ModeVerbose)
	ctx, _ := newTestChatContext()
	ast := &fakeAssistant{name: "A1"}
	req := &tools.CallRequest{ID: "call_1", Name: "calculate", Arguments: map[string]any{"a": 6, "b": 7}}
	missing := &tools.CallRequest{ID: "call_2", Name: "nope"}
	resp := &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			Content: "42",
			GenerationInfo: map[string]any{
				"InputTokens":  10,
				"OutputTokens": 2,
				"TotalTokens":  12,
			},
		}},
	}
	result := &assistants.Result{
		State:   assistants.StateDone,
		Text:    "42",
		Rounds:  1,
		History: history(),
	}

	calls := func() {
		sp.OnAssistantStart(ctx, ast, history())
		sp.OnAssistantLLMCallStart(ctx, ast, 1, history())
		sp.OnAssistantLLMCallEnd(ctx, ast, 1, resp)
		sp.OnToolStart(ctx, req)
		sp.OnToolEvent(ctx, &dispatcher.Event{CallID: req.ID, Tool: req.Name, Seq: 1, Level: tools.LevelInfo, Message: "calculating"})
		sp.OnToolEnd(ctx, req, tools.Success(req, 42), time.Millisecond)
		sp.OnToolEnd(ctx, req, tools.Fail(req, tools.FailureHandler, errors.New("boom")), time.Millisecond)
		sp.OnToolStart(ctx, missing)
		sp.OnToolEnd(ctx, missing, tools.Fail(missing, tools.FailureUnknownTool, errors.New("not found")), 0)
		sp.OnAssistantEnd(ctx, ast, result)
		sp.OnAssistantError(ctx, ast, errors.New("transport failed"), result)
	}

	// no run started: ignored
	calls()
	assert.Empty(t, sp.runs)

	sp.StartRun(ctx)
	calls()
	stats, output := sp.EndRun(ctx)
	require.NotNil(t, stats)

	assert.Equal(t, uint32(1), stats.AssistantCalls)
	assert.Equal(t, uint32(1), stats.AssistantCallsSucceeded)
	assert.Equal(t, uint32(1), stats.AssistantCallsFailed)
	assert.Equal(t, uint32(1), stats.AssistantLLMCalls)
	assert.Equal(t, uint32(2), stats.TotalMessages)
	assert.Equal(t, uint32(2), stats.Rounds)
	assert.Equal(t, uint32(2), stats.ToolsCalls)
	assert.Equal(t, uint32(1), stats.ToolsCallsSucceeded)
	assert.Equal(t, uint32(1), stats.ToolsCallsFailed)
	assert.Equal(t, uint32(1), stats.ToolNotFound)
	assert.Equal(t, uint32(1), stats.ToolEvents)
	assert.Equal(t, uint64(10), stats.LLMInputTokens)
	assert.Equal(t, uint64(2), stats.LLMOutputTokens)
	assert.Equal(t, uint64(12), stats.LLMTotalTokens)
	assert.NotZero(t, stats.LLMBytesOut)

	out := string(output)
	assert.Contains(t, out, "A1 *** Assistant Start ***")
	assert.Contains(t, out, "A1 Input: what is 6*7?")
	assert.Contains(t, out, "A1 *** LLM Call *** round 1, 2 messages")
	assert.Contains(t, out, "A1 *** LLM Call End *** round 1, 0 tool calls, 10 input tokens, 2 output tokens, 12 total tokens")
	assert.Contains(t, out, "calculate *** Tool Start *** call_1")
	assert.Contains(t, out, "calculate *** Progress *** info calculating")
	assert.Contains(t, out, "calculate Output: 42")
	assert.Contains(t, out, "calculate *** Tool Error *** handler boom")
	assert.Contains(t, out, "nope *** Tool Not Found ***")
	assert.Contains(t, out, "A1 *** Assistant End ***")
	assert.Contains(t, out, "A1 *** Error *** transport failed")
	assert.Contains(t, out, "[1] human:")
}

func Test_run_print_format(t *testing.T) {
	_, chatCtx := newTestChatContext()
	r := &run{chatCtx: chatCtx}
	oldTimeFn := TimeNowFn
	TimeNowFn = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }
	defer func() { TimeNowFn = oldTimeFn }()

	r.print("hello", "again")
	assert.Equal(t, "[2024-01-01 12:00:00 "+chatCtx.GetChatID()+"."+chatCtx.RunID()+"] hello again\n", string(r.bytes()))
}
