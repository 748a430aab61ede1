package agent

import (
	"github.com/effective-security/toolagent/store"
)

// Option configures the Agent
type Option func(*Agent)

// WithCallback sets the callback handler
func WithCallback(cb Callback) Option {
	return func(a *Agent) {
		a.callback = cb
	}
}

// WithStore sets the store of the retained history,
// used when RetainHistory is enabled
func WithStore(st store.MessageStore) Option {
	return func(a *Agent) {
		a.store = st
	}
}

// WithName overrides the name of the agent
func WithName(name string) Option {
	return func(a *Agent) {
		if name != "" {
			a.name = name
		}
	}
}
