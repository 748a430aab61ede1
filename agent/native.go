package agent

import (
	"strings"

	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/toolagent/pkg/prompts"
	"github.com/effective-security/toolagent/tools"
	"github.com/effective-security/x/values"
	"github.com/google/uuid"
)

// nativeProtocol uses the tool calling of the provider API
type nativeProtocol struct{}

func (p *nativeProtocol) systemPrompt(specs []*tools.Spec) (string, error) {
	return prompts.NativeSystemPrompt.Format(promptValues(specs))
}

func (p *nativeProtocol) callOptions(defs []llms.Tool) []llms.CallOption {
	if len(defs) == 0 {
		return nil
	}
	return []llms.CallOption{llms.WithTools(defs)}
}

func (p *nativeProtocol) reminder(perr *ProtocolError, names []string) (string, error) {
	return prompts.NativeFormatReminder.Format(reminderValues(perr, names))
}

func (p *nativeProtocol) observation(action *Action, result *tools.ToolResult) llms.Message {
	return llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{
		ToolCallID: action.ToolCallID,
		Name:       action.Tool,
		Content:    result.Observation(),
	})
}

// parse takes the first tool call of the response,
// the rest are dropped so that every call in the history has a response
func (p *nativeProtocol) parse(choice *llms.ContentChoice, _ []llms.Tool) (*Action, error) {
	text := strings.TrimSpace(choice.Content)

	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil || strings.TrimSpace(tc.FunctionCall.Name) == "" {
			continue
		}
		call := llms.ToolCall{
			ID:   values.StringsCoalesce(tc.ID, "call_"+uuid.NewString()),
			Type: values.StringsCoalesce(tc.Type, "function"),
			FunctionCall: &llms.FunctionCall{
				Name:      tc.FunctionCall.Name,
				Arguments: values.StringsCoalesce(strings.TrimSpace(tc.FunctionCall.Arguments), "{}"),
			},
		}
		return &Action{
			Thought:    text,
			Tool:       call.FunctionCall.Name,
			Input:      call.FunctionCall.Arguments,
			ToolCallID: call.ID,
			message:    llms.MessageFromToolCalls(llms.RoleAssistant, call),
		}, nil
	}

	if text == "" {
		return nil, protocolError(text, "empty response")
	}
	return &Action{
		Answer:  text,
		message: llms.MessageFromTextParts(llms.RoleAssistant, text),
	}, nil
}
