// Package local implements llms.Model over a plain chat-completions endpoint,
// as served by LM Studio, llama.cpp server or vLLM.
//
// The request body is limited to {messages, model, temperature, max_tokens, stop}
// and the endpoint is not expected to support native tool calling.
package local

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolagent/pkg/llms", "local")

// ObservationPrefix is prepended to tool results rendered as user text
const ObservationPrefix = "Observation: "

// LLM is a client of a local chat-completions endpoint
type LLM struct {
	url        string
	model      string
	token      string
	httpClient Doer
}

var _ llms.Model = (*LLM)(nil)

// New returns a new local LLM.
func New(opts ...Option) (*LLM, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	o.url = values.StringsCoalesce(o.url, DefaultURL)
	if !strings.HasPrefix(o.url, "http://") && !strings.HasPrefix(o.url, "https://") {
		return nil, errors.Newf("local: invalid endpoint URL: %q", o.url)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: o.timeout}
	}

	return &LLM{
		url:        o.url,
		model:      values.StringsCoalesce(o.model, DefaultModel),
		token:      o.token,
		httpClient: o.httpClient,
	}, nil
}

// GetName implements the Model interface.
func (o *LLM) GetName() string {
	return o.model
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderLocal
}

// GenerateContent implements the Model interface.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.NewCallOptions(options...)

	payload, err := o.buildPayload(messages, opts)
	if err != nil {
		return nil, err
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"url", o.url,
		"model", values.StringsCoalesce(opts.Model, o.model),
		"messages", len(messages),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "local: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if o.token != "" {
		req.Header.Set("Authorization", "Bearer "+o.token)
	}

	r, err := o.httpClient.Do(req)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "local: send request"), llms.ErrTransport)
	}
	defer func() { _ = r.Body.Close() }()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "local: read body"), llms.ErrTransport)
	}

	if r.StatusCode < 200 || r.StatusCode > 299 {
		msg := gjson.GetBytes(body, "error.message").String()
		if msg == "" {
			msg = gjson.GetBytes(body, "error").String()
		}
		if msg == "" {
			msg = slices.StringUpto(strings.TrimSpace(string(body)), 256)
		}
		return nil, errors.Mark(
			errors.Newf("local: endpoint returned unexpected status code: %d: %s", r.StatusCode, msg),
			llms.ErrTransport)
	}

	return parseResponse(body)
}

func (o *LLM) buildPayload(messages []llms.Message, opts *llms.CallOptions) ([]byte, error) {
	payload := []byte(`{"messages":[]}`)
	var err error

	for _, m := range messages {
		role, content, err := renderMessage(m)
		if err != nil {
			return nil, err
		}
		payload, err = sjson.SetBytes(payload, "messages.-1", map[string]string{
			"role":    role,
			"content": content,
		})
		if err != nil {
			return nil, errors.Wrap(err, "local: build payload")
		}
	}

	payload, err = sjson.SetBytes(payload, "model", values.StringsCoalesce(opts.Model, o.model))
	if err != nil {
		return nil, errors.Wrap(err, "local: build payload")
	}
	if opts.TemperatureSet {
		if payload, err = sjson.SetBytes(payload, "temperature", opts.Temperature); err != nil {
			return nil, errors.Wrap(err, "local: build payload")
		}
	}
	if opts.MaxTokens > 0 {
		if payload, err = sjson.SetBytes(payload, "max_tokens", opts.MaxTokens); err != nil {
			return nil, errors.Wrap(err, "local: build payload")
		}
	}
	if len(opts.StopWords) > 0 {
		if payload, err = sjson.SetBytes(payload, "stop", opts.StopWords); err != nil {
			return nil, errors.Wrap(err, "local: build payload")
		}
	}
	return payload, nil
}

// renderMessage maps a message to a plain {role, content} pair,
// tool calls and results are rendered as text.
func renderMessage(m llms.Message) (string, string, error) {
	var parts []string
	for _, p := range m.Parts {
		switch pp := p.(type) {
		case llms.TextContent:
			parts = append(parts, pp.Text)
		case llms.ToolCall:
			if pp.FunctionCall != nil {
				parts = append(parts, "Action: "+pp.FunctionCall.Name+"\nAction Input: "+pp.FunctionCall.Arguments)
			}
		case llms.ToolCallResponse:
			parts = append(parts, ObservationPrefix+pp.Content)
		}
	}
	content := strings.Join(parts, "\n")

	switch m.Role {
	case llms.RoleSystem:
		return "system", content, nil
	case llms.RoleUser, llms.RoleTool:
		return "user", content, nil
	case llms.RoleAssistant:
		return "assistant", content, nil
	default:
		return "", "", errors.Wrapf(llms.ErrUnexpectedRole, "local: role %q", m.Role)
	}
}

func parseResponse(body []byte) (*llms.ContentResponse, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.Mark(
			errors.Newf("local: invalid JSON in response: %s", slices.StringUpto(string(body), 64)),
			llms.ErrMalformedResponse)
	}

	choices := gjson.GetBytes(body, "choices")
	if !choices.IsArray() || len(choices.Array()) == 0 {
		return nil, errors.Mark(errors.WithStack(llms.ErrEmptyResponse), llms.ErrMalformedResponse)
	}

	first := choices.Array()[0]
	content := first.Get("message.content")
	if !content.Exists() {
		content = first.Get("text")
	}
	if !content.Exists() || content.Type != gjson.String {
		return nil, errors.Mark(errors.New("local: no completion text in response"), llms.ErrMalformedResponse)
	}

	info := map[string]any{}
	if usage := gjson.GetBytes(body, "usage"); usage.Exists() {
		info["InputTokens"] = usage.Get("prompt_tokens").Int()
		info["OutputTokens"] = usage.Get("completion_tokens").Int()
		info["TotalTokens"] = usage.Get("total_tokens").Int()
	}

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{
				Content:        content.String(),
				StopReason:     first.Get("finish_reason").String(),
				GenerationInfo: info,
			},
		},
	}, nil
}
