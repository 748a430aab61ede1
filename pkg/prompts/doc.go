// Package prompts provides text/template based prompt templates with sprig functions,
// and the system prompts of the agent protocols.
package prompts
