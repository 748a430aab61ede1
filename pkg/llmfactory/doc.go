// Package llmfactory provides configuration and a caching factory for LLM model
// instantiation across the supported providers: a local chat-completions endpoint,
// OpenAI and Anthropic.
package llmfactory
