package agent

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/x/values"
)

// Mode is the response protocol of the agent
type Mode string

const (
	// ModeReAct is the Thought/Action/Observation text protocol
	ModeReAct Mode = "react"
	// ModeFunction is the function calling protocol,
	// native when the provider supports it, JSON actions otherwise
	ModeFunction Mode = "function"
)

// Defaults
const (
	DefaultReActMaxIterations    = 10
	DefaultFunctionMaxIterations = 5
	DefaultQueryTimeout          = 60 * time.Second
)

// ParseMode returns the Mode for the name, case insensitive
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeReAct, "":
		return ModeReAct, nil
	case ModeFunction, "functions", "function_calling":
		return ModeFunction, nil
	}
	return "", errors.Newf("unsupported agent type: %q, expected react or function", s)
}

// DefaultMaxIterations returns the iteration budget of the mode
func (m Mode) DefaultMaxIterations() int {
	if m == ModeFunction {
		return DefaultFunctionMaxIterations
	}
	return DefaultReActMaxIterations
}

// AgentName returns the display name of the agent in the mode
func (m Mode) AgentName() string {
	if m == ModeFunction {
		return "Function Calling Agent"
	}
	return "React Agent"
}

// Config of the agent
type Config struct {
	// Mode is react or function
	Mode Mode `json:"mode,omitempty" yaml:"mode,omitempty" validate:"omitempty,oneof=react function"`
	// MaxIterations is the budget of Thinking steps per query,
	// when 0 the default of the mode is used
	MaxIterations int `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty" validate:"gte=0"`
	// QueryTimeout is the duration string of the query wall clock budget, 60s by default
	QueryTimeout string `json:"query_timeout,omitempty" yaml:"query_timeout,omitempty"`
	// Temperature is sent to the model when set
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	// MaxTokens is sent to the model when set
	MaxTokens int `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty" validate:"gte=0"`
	// RetainHistory keeps the queries and answers of the session
	// and sends them with the next query
	RetainHistory bool `json:"retain_history,omitempty" yaml:"retain_history,omitempty"`
	// DegradeOnProtocolError returns the unparsable response as the answer,
	// instead of failing after a retry
	DegradeOnProtocolError bool `json:"degrade_on_protocol_error,omitempty" yaml:"degrade_on_protocol_error,omitempty"`
}

// GetMode returns the mode, ReAct by default
func (c *Config) GetMode() Mode {
	return Mode(values.StringsCoalesce(string(c.Mode), string(ModeReAct)))
}

// GetMaxIterations returns the iteration budget
func (c *Config) GetMaxIterations() int {
	return values.NumbersCoalesce(c.MaxIterations, c.GetMode().DefaultMaxIterations())
}

// GetQueryTimeout returns the query timeout
func (c *Config) GetQueryTimeout() (time.Duration, error) {
	if c.QueryTimeout == "" {
		return DefaultQueryTimeout, nil
	}
	d, err := time.ParseDuration(c.QueryTimeout)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid query timeout: %q", c.QueryTimeout)
	}
	if d <= 0 {
		return 0, errors.Newf("invalid query timeout: %q", c.QueryTimeout)
	}
	return d, nil
}

// CallOptions returns the sampling options of the model call
func (c *Config) CallOptions() []llms.CallOption {
	var opts []llms.CallOption
	if c.Temperature != nil {
		opts = append(opts, llms.WithTemperature(*c.Temperature))
	}
	if c.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(c.MaxTokens))
	}
	return opts
}
