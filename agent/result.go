package agent

import (
	"github.com/effective-security/toolagent/pkg/llms"
)

// Step is a single Thinking iteration
type Step struct {
	Iteration int `json:"iteration" yaml:"iteration" toml:"iteration"`
	// Action is nil when the response could not be parsed
	Action *Action `json:"action,omitempty" yaml:"action,omitempty" toml:"action,omitempty"`
	// Observation is the tool result given back to the model
	Observation string `json:"observation,omitempty" yaml:"observation,omitempty" toml:"observation,omitempty"`
	Success     bool   `json:"success,omitempty" yaml:"success,omitempty" toml:"success,omitempty"`
	// Error is the protocol error of the iteration
	Error string `json:"error,omitempty" yaml:"error,omitempty" toml:"error,omitempty"`
}

// Result is the outcome of a query
type Result struct {
	Agent      string  `json:"agent" yaml:"agent" toml:"agent"`
	Query      string  `json:"query" yaml:"query" toml:"query"`
	Answer     string  `json:"answer,omitempty" yaml:"answer,omitempty" toml:"answer,omitempty"`
	State      State   `json:"state" yaml:"state" toml:"state"`
	Iterations int     `json:"iterations" yaml:"iterations" toml:"iterations"`
	Steps      []*Step `json:"steps,omitempty" yaml:"steps,omitempty" toml:"steps,omitempty"`
	Error      string  `json:"error,omitempty" yaml:"error,omitempty" toml:"error,omitempty"`

	// Messages is the conversation of the query, without the system prompt
	// and the retained history. It is discarded on timeout.
	Messages []llms.Message `json:"-" yaml:"-" toml:"-"`
}

// ToolCalls returns the number of dispatched tool calls
func (r *Result) ToolCalls() int {
	var n int
	for _, s := range r.Steps {
		if s.Action != nil && !s.Action.IsFinal() {
			n++
		}
	}
	return n
}
