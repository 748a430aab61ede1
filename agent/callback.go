package agent

import (
	"context"

	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/toolagent/tools"
)

// Callback receives the agent events.
// The callbacks are called synchronously from the agent loop.
type Callback interface {
	tools.Callback

	OnAgentStart(ctx context.Context, agent string, query string)
	OnAgentEnd(ctx context.Context, agent string, res *Result)
	OnAgentError(ctx context.Context, agent string, query string, err error)
	OnStateChange(ctx context.Context, agent string, from, to State)
	OnLLMCallStart(ctx context.Context, agent string, messages []llms.Message)
	OnLLMCallEnd(ctx context.Context, agent string, action *Action)
	OnProtocolError(ctx context.Context, agent string, err *ProtocolError)
}
