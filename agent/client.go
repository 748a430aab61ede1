package agent

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/toolagent/pkg/llmutils"
	"github.com/effective-security/toolagent/pkg/metricskey"
	"github.com/effective-security/toolagent/tools"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
)

// Client asks the model for the next action,
// and parses the response according to the protocol of the agent mode
type Client struct {
	llm      llms.Model
	cfg      *Config
	name     string
	native   bool
	protocol protocol
}

// NewClient returns the client for the model.
// In function mode the native tool calling is used when the provider supports it,
// otherwise the model is instructed to reply with JSON actions.
func NewClient(llm llms.Model, cfg *Config) *Client {
	c := &Client{
		llm:  llm,
		cfg:  cfg,
		name: cfg.GetMode().AgentName(),
	}

	prov := llm.GetProviderType()
	switch {
	case cfg.GetMode() == ModeReAct:
		c.protocol = &reactProtocol{stopWords: prov.Supports(llms.CapabilityStopWords)}
	case prov.Supports(llms.CapabilityFunctionCalling):
		c.native = true
		c.protocol = &nativeProtocol{}
	default:
		c.protocol = &jsonActionProtocol{}
	}
	return c
}

// Model returns the model
func (c *Client) Model() llms.Model {
	return c.llm
}

// Native returns true when the provider tool calling is used
func (c *Client) Native() bool {
	return c.native
}

// SystemPrompt returns the system message describing the tools
func (c *Client) SystemPrompt(specs []*tools.Spec) (llms.Message, error) {
	text, err := c.protocol.systemPrompt(specs)
	if err != nil {
		return llms.Message{}, errors.WithMessage(err, "failed to build system prompt")
	}
	return llms.MessageFromTextParts(llms.RoleSystem, text), nil
}

// Complete sends the history to the model and returns the next action.
// An unparsable response is returned as *ProtocolError.
func (c *Client) Complete(ctx context.Context, history []llms.Message, defs []llms.Tool) (*Action, error) {
	opts := append(c.cfg.CallOptions(), c.protocol.callOptions(defs)...)

	agentName := c.name
	modelName := c.llm.GetName()

	bytesSent := llmutils.CountMessagesContentSize(history)
	metricskey.StatsLLMMessagesSent.IncrCounter(float64(len(history)), agentName, modelName)
	metricskey.StatsLLMBytesSent.IncrCounter(float64(bytesSent), agentName, modelName)

	started := time.Now()
	resp, err := c.llm.GenerateContent(ctx, history, opts...)
	metricskey.PerfLLMCall.MeasureSince(started, agentName, modelName)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to generate content from LLM")
	}

	bytesReceived := llmutils.CountResponseContentSize(resp)
	metricskey.StatsLLMBytesReceived.IncrCounter(float64(bytesReceived), agentName, modelName)
	metricskey.StatsLLMBytesTotal.IncrCounter(float64(bytesSent+bytesReceived), agentName, modelName)

	tokensIn, tokensOut, tokensTotal := llmutils.CountTokens(resp)
	metricskey.StatsLLMInputTokens.IncrCounter(float64(tokensIn), agentName, modelName)
	metricskey.StatsLLMOutputTokens.IncrCounter(float64(tokensOut), agentName, modelName)
	metricskey.StatsLLMTotalTokens.IncrCounter(float64(tokensTotal), agentName, modelName)

	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return nil, protocolError("", "no choices in the response")
	}

	choice := resp.Choices[0]
	action, err := c.protocol.parse(choice, defs)
	if err != nil {
		logger.ContextKV(ctx, xlog.DEBUG,
			"agent", agentName,
			"status", "failed_to_parse_llm_response",
			"content", slices.StringUpto(choice.Content, 256),
			"err", err.Error(),
		)
		return nil, err
	}
	return action, nil
}

// Recover returns the messages to append after the protocol error:
// the rejected response and the reminder of the format
func (c *Client) Recover(perr *ProtocolError, names []string) ([]llms.Message, error) {
	reminder, err := c.protocol.reminder(perr, names)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to build format reminder")
	}

	var msgs []llms.Message
	if perr.Raw != "" {
		msgs = append(msgs, llms.MessageFromTextParts(llms.RoleAssistant, perr.Raw))
	}
	return append(msgs, llms.MessageFromTextParts(llms.RoleUser, reminder)), nil
}

// Observation returns the message with the tool result
func (c *Client) Observation(action *Action, result *tools.ToolResult) llms.Message {
	return c.protocol.observation(action, result)
}
