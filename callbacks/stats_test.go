package callbacks

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/agent"
	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChatContext() (context.Context, chatmodel.ChatContext) {
	chatCtx := chatmodel.NewChatContext("chatid", nil)
	ctx := chatmodel.WithChatContext(context.Background(), chatCtx)
	return ctx, chatCtx
}

func fixedTime(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)
	TimeNowFn = func() time.Time { return now }
	t.Cleanup(func() { TimeNowFn = time.Now })
}

func TestStats_StartRun_EndRun(t *testing.T) {
	fixedTime(t)

	sp := NewStats(ModeVerbose)
	ctx, cctx := newTestChatContext()
	sp.StartRun(ctx)
	require.NotNil(t, sp.runs[cctx.GetChatID()])

	name := "React Agent"
	action := &agent.Action{Tool: "calculator", Input: `{"expression":"2+2"}`}
	msgs := []llms.Message{
		llms.MessageFromTextParts(llms.RoleSystem, "system"),
		llms.MessageFromTextParts(llms.RoleUser, "what is 2+2?"),
	}

	sp.OnAgentStart(ctx, name, "what is 2+2?")
	sp.OnStateChange(ctx, name, agent.StateStart, agent.StateThinking)
	sp.OnLLMCallStart(ctx, name, msgs)
	sp.OnProtocolError(ctx, name, &agent.ProtocolError{Raw: "garbage", Reason: "empty response"})
	sp.OnLLMCallStart(ctx, name, msgs)
	sp.OnLLMCallEnd(ctx, name, action)
	sp.OnToolStart(ctx, "calculator", action.Input)
	sp.OnToolEnd(ctx, "calculator", action.Input, "4")
	sp.OnToolStart(ctx, "calculator", action.Input)
	sp.OnToolError(ctx, "calculator", action.Input, errors.New("division by zero"))
	sp.OnToolNotFound(ctx, "search")
	sp.OnLLMCallEnd(ctx, name, &agent.Action{Answer: "4"})
	sp.OnAgentEnd(ctx, name, &agent.Result{Answer: "4", Iterations: 3})
	sp.OnAgentError(ctx, name, "other", errors.New("timed out"))

	stats, buf := sp.EndRun(ctx)
	require.NotNil(t, stats)
	assert.Equal(t, "chatid", stats.ChatID)
	assert.Equal(t, time.Duration(0), stats.Duration)
	assert.Equal(t, uint32(1), stats.Queries)
	assert.Equal(t, uint32(1), stats.QueriesSucceeded)
	assert.Equal(t, uint32(1), stats.QueriesFailed)
	assert.Equal(t, uint32(3), stats.Iterations)
	assert.Equal(t, uint32(2), stats.LLMCalls)
	assert.Equal(t, uint32(4), stats.TotalMessages)
	assert.Equal(t, uint32(1), stats.ProtocolErrors)
	assert.Equal(t, uint32(2), stats.ToolsCalls)
	assert.Equal(t, uint32(1), stats.ToolsCallsSucceeded)
	assert.Equal(t, uint32(1), stats.ToolsCallsFailed)
	assert.Equal(t, uint32(1), stats.ToolNotFound)
	// system(6) + "system"(6) + user(4) + "what is 2+2?"(12), twice
	assert.Equal(t, uint64(56), stats.LLMBytesOut)
	assert.Equal(t, uint64(len("garbage")), stats.LLMBytesIn)

	out := string(buf)
	assert.True(t, strings.HasPrefix(out, "2024-05-01 10:30:00 chatid *** Run Started ***\n"))
	assert.Contains(t, out, "React Agent Input: what is 2+2?\n")
	assert.Contains(t, out, "React Agent State: Start -> Thinking\n")
	assert.Contains(t, out, "React Agent *** LLM Parse Error *** empty response\n")
	assert.Contains(t, out, "Response: garbage\n")
	assert.Contains(t, out, "React Agent *** LLM Call End *** action: calculator\n")
	assert.Contains(t, out, "React Agent *** LLM Call End *** final answer\n")
	assert.Contains(t, out, "calculator Output: 4\n")
	assert.Contains(t, out, "calculator *** Tool Error *** division by zero\n")
	assert.Contains(t, out, "*** Tool Not Found *** search\n")
	assert.Contains(t, out, "React Agent Answer: 4\n")
	assert.Contains(t, out, "React Agent *** Error *** timed out\n")
	assert.Contains(t, out, "Queries: 1, Failed: 1, Iterations: 3\n")
	assert.Contains(t, out, "Tool calls: 2, Failed: 1, Not Found: 1\n")
	assert.Contains(t, out, "LLM calls: 2, Messages: 4, Bytes Out: 56, Bytes In: 7, Protocol Errors: 1\n")
	assert.Contains(t, out, "*** Run Ended. Duration: 0s ***\n")
	assert.Contains(t, out, "[1] user:\n")

	_, ok := sp.runs[cctx.GetChatID()]
	assert.False(t, ok)

	// EndRun with no run (run already deleted)
	s2, b2 := sp.EndRun(ctx)
	assert.Nil(t, s2)
	assert.Nil(t, b2)
}

func TestStats_DefaultMode(t *testing.T) {
	sp := NewStats(ModeDefault)
	ctx, _ := newTestChatContext()
	sp.StartRun(ctx)

	sp.OnStateChange(ctx, "React Agent", agent.StateStart, agent.StateThinking)
	sp.OnToolStart(ctx, "calculator", "{}")
	sp.OnToolEnd(ctx, "calculator", "{}", "secret output")
	sp.OnProtocolError(ctx, "React Agent", &agent.ProtocolError{Raw: "garbage", Reason: "empty response"})

	stats, buf := sp.EndRun(ctx)
	require.NotNil(t, stats)
	out := string(buf)
	assert.NotContains(t, out, "State:")
	assert.NotContains(t, out, "secret output")
	assert.NotContains(t, out, "Response: garbage")
	assert.Contains(t, out, "calculator *** Tool End ***")
}

func TestStats_NoRun(t *testing.T) {
	sp := NewStats(ModeDefault)

	// no chat context
	ctx := context.Background()
	sp.StartRun(ctx)
	assert.Empty(t, sp.runs)

	// run not started
	ctx, _ = newTestChatContext()
	assert.NotPanics(t, func() {
		sp.OnAgentStart(ctx, "a", "q")
		sp.OnAgentEnd(ctx, "a", &agent.Result{})
		sp.OnAgentError(ctx, "a", "q", errors.New("x"))
		sp.OnStateChange(ctx, "a", agent.StateStart, agent.StateDone)
		sp.OnLLMCallStart(ctx, "a", nil)
		sp.OnLLMCallEnd(ctx, "a", &agent.Action{})
		sp.OnProtocolError(ctx, "a", &agent.ProtocolError{})
		sp.OnToolStart(ctx, "t", "")
		sp.OnToolEnd(ctx, "t", "", "")
		sp.OnToolError(ctx, "t", "", errors.New("x"))
		sp.OnToolNotFound(ctx, "t")
	})
	s, b := sp.EndRun(ctx)
	assert.Nil(t, s)
	assert.Nil(t, b)
}

func TestStats_Concurrent(t *testing.T) {
	sp := NewStats(ModeDefault)
	ctx, _ := newTestChatContext()
	sp.StartRun(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sp.OnToolStart(ctx, "calculator", "{}")
			sp.OnToolEnd(ctx, "calculator", "{}", "1")
		}()
	}
	wg.Wait()

	stats, _ := sp.EndRun(ctx)
	require.NotNil(t, stats)
	assert.Equal(t, uint32(10), stats.ToolsCalls)
	assert.Equal(t, uint32(10), stats.ToolsCallsSucceeded)
}
