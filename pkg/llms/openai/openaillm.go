package openai

import (
	"context"
	"encoding/json"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolagent/pkg/llms", "openai")

var (
	ErrMissingToken = errors.New("openai: missing API key, set it in the OPENAI_API_KEY environment variable")
)

// LLM is a client of the OpenAI chat completions API
type LLM struct {
	client openai.Client
	model  string
}

var _ llms.Model = (*LLM)(nil)

// New returns a new OpenAI LLM.
func New(opts ...Option) (*LLM, error) {
	o := &options{
		token:   os.Getenv(TokenEnvVarName),
		baseURL: os.Getenv(baseURLEnvVarName),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.token == "" {
		return nil, ErrMissingToken
	}

	sdkOpts := []option.RequestOption{
		option.WithAPIKey(o.token),
		option.WithBaseURL(values.StringsCoalesce(o.baseURL, DefaultBaseURL)),
		// transport failures are surfaced to the agent, not retried
		option.WithMaxRetries(0),
	}
	if o.organization != "" {
		sdkOpts = append(sdkOpts, option.WithOrganization(o.organization))
	}
	if o.httpClient != nil {
		sdkOpts = append(sdkOpts, option.WithHTTPClient(o.httpClient))
	}

	return &LLM{
		client: openai.NewClient(sdkOpts...),
		model:  values.StringsCoalesce(o.model, DefaultModel),
	}, nil
}

// GetName implements the Model interface.
func (o *LLM) GetName() string {
	return o.model
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderOpenAI
}

// GenerateContent implements the Model interface.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.NewCallOptions(options...)

	chatMsgs, err := ToChatMessages(messages)
	if err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(values.StringsCoalesce(opts.Model, o.model)),
		Messages: chatMsgs,
	}
	if opts.TemperatureSet {
		params.Temperature = openai.Float(opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(opts.MaxTokens))
	}
	if len(opts.StopWords) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: opts.StopWords}
	}
	if len(opts.Tools) > 0 {
		params.Tools, err = ToTools(opts.Tools)
		if err != nil {
			return nil, err
		}
	}

	result, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "openai: failed to create chat completion"), llms.ErrTransport)
	}
	if len(result.Choices) == 0 {
		return nil, errors.Mark(errors.WithStack(llms.ErrEmptyResponse), llms.ErrMalformedResponse)
	}

	choices := make([]*llms.ContentChoice, len(result.Choices))
	for i, c := range result.Choices {
		choices[i] = &llms.ContentChoice{
			Content:    c.Message.Content,
			StopReason: c.FinishReason,
			GenerationInfo: map[string]any{
				"InputTokens":  result.Usage.PromptTokens,
				"OutputTokens": result.Usage.CompletionTokens,
				"TotalTokens":  result.Usage.TotalTokens,
				"ID":           result.ID,
			},
		}
		for _, tc := range c.Message.ToolCalls {
			choices[i].ToolCalls = append(choices[i].ToolCalls, llms.ToolCall{
				ID:   tc.ID,
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"model", params.Model,
		"choices", len(choices),
		"tokens", result.Usage.TotalTokens,
	)

	return &llms.ContentResponse{Choices: choices}, nil
}

// ToChatMessages converts messages to the chat completions message params.
func ToChatMessages(messages []llms.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	res := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case llms.RoleSystem:
			res = append(res, openai.SystemMessage(m.GetText()))
		case llms.RoleUser:
			res = append(res, openai.UserMessage(m.GetText()))
		case llms.RoleAssistant:
			msg := &openai.ChatCompletionAssistantMessageParam{}
			if text := m.GetText(); text != "" {
				msg.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: openai.String(text),
				}
			}
			for _, tc := range m.ToolCalls() {
				if tc.FunctionCall == nil {
					continue
				}
				msg.ToolCalls = append(msg.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.FunctionCall.Name,
							Arguments: values.StringsCoalesce(tc.FunctionCall.Arguments, "{}"),
						},
					},
				})
			}
			res = append(res, openai.ChatCompletionMessageParamUnion{OfAssistant: msg})
		case llms.RoleTool:
			responses := m.ToolResponses()
			if len(responses) == 0 {
				return nil, errors.Newf("openai: expected tool response for role %v", m.Role)
			}
			for _, tr := range responses {
				res = append(res, openai.ToolMessage(tr.Content, tr.ToolCallID))
			}
		default:
			return nil, errors.WithMessagef(llms.ErrUnexpectedRole, "openai: role %v not supported", m.Role)
		}
	}
	return res, nil
}

// ToTools converts tool definitions to the chat completions tool params.
func ToTools(tools []llms.Tool) ([]openai.ChatCompletionToolUnionParam, error) {
	res := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		if tool.Function == nil {
			continue
		}
		params, err := toFunctionParameters(tool.Function.Parameters)
		if err != nil {
			return nil, errors.WithMessagef(err, "openai: invalid parameters for tool %q", tool.Function.Name)
		}
		res = append(res, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        tool.Function.Name,
			Description: openai.String(tool.Function.Description),
			Parameters:  params,
		}))
	}
	return res, nil
}

func toFunctionParameters(s *jsonschema.Schema) (openai.FunctionParameters, error) {
	if s == nil {
		return openai.FunctionParameters{
			"type":       "object",
			"properties": map[string]any{},
		}, nil
	}
	js, err := json.Marshal(s)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var params openai.FunctionParameters
	if err = json.Unmarshal(js, &params); err != nil {
		return nil, errors.WithStack(err)
	}
	return params, nil
}
