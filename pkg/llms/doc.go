// Package llms provides the provider independent types used to talk to chat
// completion models: messages, tool definitions, call options and the Model
// interface implemented by each provider subpackage.
//
// Providers:
//   - local: raw chat-completions endpoint (LM Studio, llama.cpp server, vLLM)
//   - openai: OpenAI API with native tool calling
//   - anthropic: Anthropic Messages API with native tool calling
package llms

//go:generate mockgen -destination=../../mocks/mockllms/llm_mock.gen.go -package mockllms github.com/effective-security/toolagent/pkg/llms Model
