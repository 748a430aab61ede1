package agent

import (
	"github.com/effective-security/toolagent/pkg/llms"
)

// Action is the next step decided by the model:
// either a tool call, or the final answer
type Action struct {
	// Thought is the reasoning emitted with the action, if any
	Thought string `json:"thought,omitempty" yaml:"thought,omitempty" toml:"thought,omitempty"`
	// Tool is the name of the tool to call, empty for the final answer
	Tool string `json:"tool,omitempty" yaml:"tool,omitempty" toml:"tool,omitempty"`
	// Input is the tool arguments as a JSON object
	Input string `json:"input,omitempty" yaml:"input,omitempty" toml:"input,omitempty"`
	// ToolCallID identifies the call in native tool calling
	ToolCallID string `json:"tool_call_id,omitempty" yaml:"tool_call_id,omitempty" toml:"tool_call_id,omitempty"`
	// Answer is the final answer
	Answer string `json:"answer,omitempty" yaml:"answer,omitempty" toml:"answer,omitempty"`

	// message is the assistant message appended to the history
	message llms.Message
}

// IsFinal returns true when the action is the final answer
func (a *Action) IsFinal() bool {
	return a.Tool == ""
}

// Message returns the assistant message of the action
func (a *Action) Message() llms.Message {
	return a.message
}
