package callbacks

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/effective-security/toolagent/agent"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/toolagent/tools"
	"github.com/effective-security/xlog"
)

// ensure that the callbacks implement the correct interfaces
var (
	_ agent.Callback = (*Noop)(nil)
	_ tools.Callback = (*Noop)(nil)
	_ agent.Callback = (*Printer)(nil)
	_ agent.Callback = (*PackageLogger)(nil)
	_ agent.Callback = (*Fanout)(nil)
	_ agent.Callback = (*Stats)(nil)
)

// Mode defines the mode for callback printing
type Mode int

const (
	// ModeDefault is the default mode for callback printing
	ModeDefault Mode = iota
	// ModeVerbose prints the thoughts, actions and observations
	ModeVerbose
)

// Fanout is a callback handler that forwards the events to multiple callbacks.
type Fanout struct {
	callbacks []agent.Callback
}

func NewFanout(callbacks ...agent.Callback) *Fanout {
	return &Fanout{callbacks: callbacks}
}

func (l *Fanout) Add(callback agent.Callback) {
	l.callbacks = append(l.callbacks, callback)
}

func (l *Fanout) OnAgentStart(ctx context.Context, name string, query string) {
	for _, callback := range l.callbacks {
		callback.OnAgentStart(ctx, name, query)
	}
}

func (l *Fanout) OnAgentEnd(ctx context.Context, name string, res *agent.Result) {
	for _, callback := range l.callbacks {
		callback.OnAgentEnd(ctx, name, res)
	}
}

func (l *Fanout) OnAgentError(ctx context.Context, name string, query string, err error) {
	for _, callback := range l.callbacks {
		callback.OnAgentError(ctx, name, query, err)
	}
}

func (l *Fanout) OnStateChange(ctx context.Context, name string, from, to agent.State) {
	for _, callback := range l.callbacks {
		callback.OnStateChange(ctx, name, from, to)
	}
}

func (l *Fanout) OnLLMCallStart(ctx context.Context, name string, messages []llms.Message) {
	for _, callback := range l.callbacks {
		callback.OnLLMCallStart(ctx, name, messages)
	}
}

func (l *Fanout) OnLLMCallEnd(ctx context.Context, name string, action *agent.Action) {
	for _, callback := range l.callbacks {
		callback.OnLLMCallEnd(ctx, name, action)
	}
}

func (l *Fanout) OnProtocolError(ctx context.Context, name string, err *agent.ProtocolError) {
	for _, callback := range l.callbacks {
		callback.OnProtocolError(ctx, name, err)
	}
}

func (l *Fanout) OnToolStart(ctx context.Context, tool string, input string) {
	for _, callback := range l.callbacks {
		callback.OnToolStart(ctx, tool, input)
	}
}

func (l *Fanout) OnToolEnd(ctx context.Context, tool string, input string, output string) {
	for _, callback := range l.callbacks {
		callback.OnToolEnd(ctx, tool, input, output)
	}
}

func (l *Fanout) OnToolError(ctx context.Context, tool string, input string, err error) {
	for _, callback := range l.callbacks {
		callback.OnToolError(ctx, tool, input, err)
	}
}

func (l *Fanout) OnToolNotFound(ctx context.Context, tool string) {
	for _, callback := range l.callbacks {
		callback.OnToolNotFound(ctx, tool)
	}
}

// Noop does nothing.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (l *Noop) OnAgentStart(ctx context.Context, name string, query string)                {}
func (l *Noop) OnAgentEnd(ctx context.Context, name string, res *agent.Result)             {}
func (l *Noop) OnAgentError(ctx context.Context, name string, query string, err error)     {}
func (l *Noop) OnStateChange(ctx context.Context, name string, from, to agent.State)       {}
func (l *Noop) OnLLMCallStart(ctx context.Context, name string, messages []llms.Message)   {}
func (l *Noop) OnLLMCallEnd(ctx context.Context, name string, action *agent.Action)        {}
func (l *Noop) OnProtocolError(ctx context.Context, name string, err *agent.ProtocolError) {}
func (l *Noop) OnToolStart(ctx context.Context, tool string, input string)                 {}
func (l *Noop) OnToolEnd(ctx context.Context, tool string, input string, output string)    {}
func (l *Noop) OnToolError(ctx context.Context, tool string, input string, err error)      {}
func (l *Noop) OnToolNotFound(ctx context.Context, tool string)                            {}

// Printer is a callback handler that prints to the Writer.
// In verbose mode it prints the reasoning trace of the agent.
type Printer struct {
	Out  io.Writer
	Mode Mode

	lock sync.Mutex
}

func NewPrinter(out io.Writer, mode Mode) *Printer {
	return &Printer{Out: out, Mode: mode}
}

func (l *Printer) OnAgentStart(ctx context.Context, name string, query string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "> Running %s with input:\n%s\n", name, query)
}

func (l *Printer) OnAgentEnd(ctx context.Context, name string, res *agent.Result) {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.Mode == ModeVerbose {
		fmt.Fprintf(l.Out, "> %s finished in %d iterations, %d tool calls\n", name, res.Iterations, res.ToolCalls())
	}
}

func (l *Printer) OnAgentError(ctx context.Context, name string, query string, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "> %s failed: %s\n", name, err.Error())
}

func (l *Printer) OnStateChange(ctx context.Context, name string, from, to agent.State) {}

func (l *Printer) OnLLMCallStart(ctx context.Context, name string, messages []llms.Message) {}

func (l *Printer) OnLLMCallEnd(ctx context.Context, name string, action *agent.Action) {
	if l.Mode != ModeVerbose {
		return
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	if action.Thought != "" {
		fmt.Fprintf(l.Out, "Thought: %s\n", action.Thought)
	}
	if action.IsFinal() {
		fmt.Fprintf(l.Out, "Answer: %s\n", action.Answer)
		return
	}
	fmt.Fprintf(l.Out, "Action: %s\n", action.Tool)
	fmt.Fprintf(l.Out, "Action Input: %s\n", action.Input)
}

func (l *Printer) OnProtocolError(ctx context.Context, name string, err *agent.ProtocolError) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "> %s: %s\n", name, err.Error())
	if l.Mode == ModeVerbose && err.Raw != "" {
		fmt.Fprintf(l.Out, "Response: %s\n", err.Raw)
	}
}

func (l *Printer) OnToolStart(ctx context.Context, tool string, input string) {
	if l.Mode == ModeVerbose {
		return
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "> Calling tool: %s\n", tool)
}

func (l *Printer) OnToolEnd(ctx context.Context, tool string, input string, output string) {
	if l.Mode != ModeVerbose {
		return
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Observation: %s\n", output)
}

func (l *Printer) OnToolError(ctx context.Context, tool string, input string, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.Mode == ModeVerbose {
		fmt.Fprintf(l.Out, "Observation: Error: %s\n", err.Error())
		return
	}
	fmt.Fprintf(l.Out, "> Tool %s failed: %s\n", tool, err.Error())
}

func (l *Printer) OnToolNotFound(ctx context.Context, tool string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "> Tool not found: %s\n", tool)
}

// PackageLogger is a callback handler that prints to the logger.
type PackageLogger struct {
	logger *xlog.PackageLogger
}

func NewPackageLogger(logger *xlog.PackageLogger) *PackageLogger {
	return &PackageLogger{logger: logger}
}

func (l *PackageLogger) OnAgentStart(ctx context.Context, name string, query string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "agent_start",
		"agent", name,
		"input", query,
	)
}

func (l *PackageLogger) OnAgentEnd(ctx context.Context, name string, res *agent.Result) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "agent_end",
		"agent", name,
		"iterations", res.Iterations,
		"result", res.Answer,
	)
}

func (l *PackageLogger) OnAgentError(ctx context.Context, name string, query string, err error) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "agent_error",
		"agent", name,
		"err", err.Error(),
	)
}

func (l *PackageLogger) OnStateChange(ctx context.Context, name string, from, to agent.State) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "state_change",
		"agent", name,
		"from", from.String(),
		"to", to.String(),
	)
}

func (l *PackageLogger) OnLLMCallStart(ctx context.Context, name string, messages []llms.Message) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "llm_call_start",
		"agent", name,
		"messages", len(messages),
	)
}

func (l *PackageLogger) OnLLMCallEnd(ctx context.Context, name string, action *agent.Action) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "llm_call_end",
		"agent", name,
		"tool", action.Tool,
		"final", action.IsFinal(),
	)
}

func (l *PackageLogger) OnProtocolError(ctx context.Context, name string, err *agent.ProtocolError) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "protocol_error",
		"agent", name,
		"err", err.Error(),
		"response", err.Raw,
	)
}

func (l *PackageLogger) OnToolStart(ctx context.Context, tool string, input string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_start",
		"tool", tool,
		"input", input,
	)
}

func (l *PackageLogger) OnToolEnd(ctx context.Context, tool string, input string, output string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_end",
		"tool", tool,
		"output", output,
	)
}

func (l *PackageLogger) OnToolError(ctx context.Context, tool string, input string, err error) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "tool_error",
		"tool", tool,
		"err", err.Error(),
	)
}

func (l *PackageLogger) OnToolNotFound(ctx context.Context, tool string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_not_found",
		"tool", tool,
	)
}
