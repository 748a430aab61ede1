package agent

import (
	"encoding/json"
	"strings"

	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/toolagent/pkg/llmutils"
	"github.com/effective-security/toolagent/pkg/prompts"
	"github.com/effective-security/toolagent/pkg/schema"
	"github.com/effective-security/toolagent/tools"
)

// protocol is the format of the model responses
type protocol interface {
	// systemPrompt returns the instructions for the model
	systemPrompt(specs []*tools.Spec) (string, error)
	// callOptions returns the options specific to the protocol
	callOptions(defs []llms.Tool) []llms.CallOption
	// parse returns the action from the response
	parse(choice *llms.ContentChoice, defs []llms.Tool) (*Action, error)
	// reminder returns the message asking the model to fix the format
	reminder(perr *ProtocolError, names []string) (string, error)
	// observation returns the message with the tool result
	observation(action *Action, result *tools.ToolResult) llms.Message
}

func toolDescriptions(specs []*tools.Spec) []prompts.ToolDescription {
	list := make([]prompts.ToolDescription, 0, len(specs))
	for _, s := range specs {
		list = append(list, prompts.ToolDescription{
			Name:        s.Name,
			Description: s.Description,
			Args:        s.ArgsJSON(),
		})
	}
	return list
}

func toolNames(specs []*tools.Spec) []string {
	names := make([]string, 0, len(specs))
	for _, s := range specs {
		names = append(names, s.Name)
	}
	return names
}

func promptValues(specs []*tools.Spec) map[string]any {
	return map[string]any{
		prompts.VarTools:     toolDescriptions(specs),
		prompts.VarToolNames: toolNames(specs),
	}
}

func reminderValues(perr *ProtocolError, names []string) map[string]any {
	return map[string]any{
		prompts.VarReason:    perr.Reason,
		prompts.VarToolNames: names,
	}
}

// textObservation renders the tool result as a user message,
// for the protocols without native tool calling
func textObservation(result *tools.ToolResult) llms.Message {
	return llms.MessageFromTextParts(llms.RoleUser, "Observation: "+result.Observation())
}

// toolInput returns the tool arguments as a JSON object.
// A value that is not an object is assigned to the single parameter of the tool.
func toolInput(raw, tool string, defs []llms.Tool) (string, bool) {
	raw = strings.TrimSpace(llmutils.TrimBackticks(strings.TrimSpace(raw)))
	if obj := llmutils.ExtractJSONObject([]byte(raw)); obj != nil {
		if json.Valid(obj) {
			return string(obj), true
		}
		return "", false
	}

	param := singleParam(tool, defs)
	if param == "" {
		return "", false
	}
	value := strings.Trim(raw, "\"'` ")
	return llmutils.ToJSON(map[string]string{param: value}), true
}

// singleParam returns the name of the only required parameter,
// or the only parameter of the tool
func singleParam(tool string, defs []llms.Tool) string {
	for _, def := range defs {
		if def.Function == nil || !strings.EqualFold(def.Function.Name, tool) {
			continue
		}
		params := schema.Properties(def.Function.Parameters)
		var required []string
		for _, p := range params {
			if p.Required {
				required = append(required, p.Name)
			}
		}
		switch {
		case len(required) == 1:
			return required[0]
		case len(params) == 1:
			return params[0].Name
		}
	}
	return ""
}
