package callbacks

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/effective-security/toolagent/agent"
	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/toolagent/pkg/llmutils"
)

var TimeNowFn = time.Now

type RunStats struct {
	ChatID string

	Duration            time.Duration
	Queries             uint32
	QueriesSucceeded    uint32
	QueriesFailed       uint32
	Iterations          uint32
	LLMCalls            uint32
	TotalMessages       uint32
	LLMBytesOut         uint64
	LLMBytesIn          uint64
	ProtocolErrors      uint32
	ToolsCalls          uint32
	ToolsCallsSucceeded uint32
	ToolsCallsFailed    uint32
	ToolNotFound        uint32
}

// Stats is a callback handler that collects the run statistics and the trace,
// per chat ID found in the context.
type Stats struct {
	runs map[string]*run
	mode Mode
	lock sync.Mutex
}

func NewStats(mode Mode) *Stats {
	return &Stats{
		runs: make(map[string]*run),
		mode: mode,
	}
}

// StartRun starts collecting for the chat ID of the context,
// the events of contexts without a chat ID are ignored.
func (l *Stats) StartRun(ctx context.Context) {
	chatID := chatmodel.GetChatID(ctx)
	if chatID == "" {
		return
	}

	r := &run{
		chatID:  chatID,
		stats:   RunStats{ChatID: chatID},
		started: TimeNowFn(),
	}

	l.lock.Lock()
	l.runs[chatID] = r
	l.lock.Unlock()

	r.print("*** Run Started ***")
}

// EndRun returns the stats and the trace of the run,
// or nil if no run was started for the chat ID of the context.
func (l *Stats) EndRun(ctx context.Context) (*RunStats, []byte) {
	run := l.getRun(ctx)
	if run == nil {
		return nil, nil
	}

	run.lock.Lock()
	stats := run.stats
	run.lock.Unlock()
	stats.Duration = TimeNowFn().Sub(run.started)

	run.print(fmt.Sprintf("Queries: %d, Failed: %d, Iterations: %d",
		stats.Queries,
		stats.QueriesFailed,
		stats.Iterations,
	))
	run.print(fmt.Sprintf("Tool calls: %d, Failed: %d, Not Found: %d",
		stats.ToolsCalls,
		stats.ToolsCallsFailed,
		stats.ToolNotFound,
	))
	run.print(fmt.Sprintf("LLM calls: %d, Messages: %d, Bytes Out: %d, Bytes In: %d, Protocol Errors: %d",
		stats.LLMCalls,
		stats.TotalMessages,
		stats.LLMBytesOut,
		stats.LLMBytesIn,
		stats.ProtocolErrors,
	))

	run.print(fmt.Sprintf("*** Run Ended. Duration: %s ***", stats.Duration))

	l.lock.Lock()
	delete(l.runs, run.chatID)
	l.lock.Unlock()

	return &stats, run.w.Bytes()
}

func (l *Stats) getRun(ctx context.Context) *run {
	chatID := chatmodel.GetChatID(ctx)
	if chatID == "" {
		return nil
	}

	l.lock.Lock()
	defer l.lock.Unlock()
	return l.runs[chatID]
}

func (l *Stats) OnAgentStart(ctx context.Context, name string, query string) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.Queries, 1)
	run.print(name, "*** Agent Start ***")
	run.print(name, "Input:", query)
}

func (l *Stats) OnAgentEnd(ctx context.Context, name string, res *agent.Result) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.QueriesSucceeded, 1)
	atomic.AddUint32(&run.stats.Iterations, uint32(res.Iterations))
	if l.mode == ModeVerbose {
		run.print(name, "Answer:", res.Answer)
	}
	run.print(name, "*** Agent End ***", fmt.Sprintf("%d iterations", res.Iterations))
}

func (l *Stats) OnAgentError(ctx context.Context, name string, query string, err error) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.QueriesFailed, 1)
	run.print(name, "*** Error ***", err.Error())
}

func (l *Stats) OnStateChange(ctx context.Context, name string, from, to agent.State) {
	if l.mode != ModeVerbose {
		return
	}
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	run.print(name, "State:", from.String(), "->", to.String())
}

func (l *Stats) OnLLMCallStart(ctx context.Context, name string, messages []llms.Message) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}

	atomic.AddUint64(&run.stats.LLMBytesOut, llmutils.CountMessagesContentSize(messages))
	atomic.AddUint32(&run.stats.LLMCalls, 1)
	count := uint32(len(messages))
	atomic.AddUint32(&run.stats.TotalMessages, count)

	run.print(name, "*** LLM Call ***", fmt.Sprintf("%d messages", count))
	if l.mode == ModeVerbose {
		run.print(name, printMessages(messages))
	}
}

func (l *Stats) OnLLMCallEnd(ctx context.Context, name string, action *agent.Action) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}

	atomic.AddUint64(&run.stats.LLMBytesIn, llmutils.CountMessagesContentSize([]llms.Message{action.Message()}))
	if action.IsFinal() {
		run.print(name, "*** LLM Call End ***", "final answer")
	} else {
		run.print(name, "*** LLM Call End ***", "action:", action.Tool)
	}
}

func (l *Stats) OnProtocolError(ctx context.Context, name string, err *agent.ProtocolError) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.ProtocolErrors, 1)
	atomic.AddUint64(&run.stats.LLMBytesIn, uint64(len(err.Raw)))
	run.print(name, "*** LLM Parse Error ***", err.Reason)
	if l.mode == ModeVerbose {
		run.print("Response:", err.Raw)
	}
}

func (l *Stats) OnToolStart(ctx context.Context, tool string, input string) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.ToolsCalls, 1)
	run.print(tool, "*** Tool Start ***")
	run.print(tool, "Input:", input)
}

func (l *Stats) OnToolEnd(ctx context.Context, tool string, input string, output string) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.ToolsCallsSucceeded, 1)
	if l.mode == ModeVerbose {
		run.print(tool, "Output:", output)
	}
	run.print(tool, "*** Tool End ***")
}

func (l *Stats) OnToolError(ctx context.Context, tool string, input string, err error) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.ToolsCallsFailed, 1)
	run.print(tool, "*** Tool Error ***", err.Error())
}

func (l *Stats) OnToolNotFound(ctx context.Context, tool string) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.ToolNotFound, 1)
	run.print("*** Tool Not Found ***", tool)
}

func printMessages(messages []llms.Message) string {
	var buf strings.Builder
	buf.WriteString("Messages:\n")
	for idx, msg := range messages {
		fmt.Fprintf(&buf, "[%d] %s:\n", idx, msg.Role)
		textParts := 0
		toolParts := 0
		toolResponseParts := 0
		for _, part := range msg.Parts {
			switch typ := part.(type) {
			case llms.TextContent:
				textParts++
			case llms.ToolCall:
				toolParts++
				buf.WriteString("  - ")
				buf.WriteString(typ.String())
				buf.WriteString("\n")
			case llms.ToolCallResponse:
				toolResponseParts++
				buf.WriteString("  - ")
				buf.WriteString(typ.String())
				buf.WriteString("\n")
			}
		}

		fmt.Fprintf(&buf, "  - %d texts, %d tool calls, %d tool responses\n", textParts, toolParts, toolResponseParts)
	}
	return buf.String()
}

type run struct {
	chatID  string
	w       bytes.Buffer
	started time.Time
	lock    sync.Mutex
	stats   RunStats
}

// print writes the entries to the run's output.
// The entries are written in the following format:
// [timestamp chatID] entry entry\n
func (r *run) print(entries ...string) {
	r.lock.Lock()
	defer r.lock.Unlock()

	ts := TimeNowFn().Format("2006-01-02 15:04:05")

	_, _ = r.w.WriteString(ts)
	_, _ = r.w.WriteString(" ")
	_, _ = r.w.WriteString(r.chatID)
	_, _ = r.w.WriteString(" ")

	for i, entry := range entries {
		if i > 0 {
			_, _ = r.w.WriteString(" ")
		}
		_, _ = r.w.WriteString(entry)
	}
	_, _ = r.w.WriteString("\n")
}
