package agent

import (
	"bytes"
	"strings"

	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/toolagent/pkg/llmutils"
	"github.com/effective-security/toolagent/pkg/prompts"
	"github.com/effective-security/toolagent/tools"
	"github.com/tidwall/gjson"
)

// jsonActionProtocol is the function calling over plain text,
// for the endpoints without native tool calling.
//
//	{"action": "calculator", "action_input": {"operation": "add", "a": 2, "b": 3}}
//	{"final_answer": "2 + 3 = 5"}
type jsonActionProtocol struct{}

func (p *jsonActionProtocol) systemPrompt(specs []*tools.Spec) (string, error) {
	return prompts.FunctionSystemPrompt.Format(promptValues(specs))
}

func (p *jsonActionProtocol) callOptions([]llms.Tool) []llms.CallOption {
	return nil
}

func (p *jsonActionProtocol) reminder(perr *ProtocolError, names []string) (string, error) {
	return prompts.FunctionFormatReminder.Format(reminderValues(perr, names))
}

func (p *jsonActionProtocol) observation(_ *Action, result *tools.ToolResult) llms.Message {
	return textObservation(result)
}

func (p *jsonActionProtocol) parse(choice *llms.ContentChoice, defs []llms.Tool) (*Action, error) {
	return ParseJSONAction(choice.Content, defs)
}

// ParseJSONAction parses the JSON action format.
// A response without an object naming "action" or "final_answer"
// is the final answer, braces in prose or code samples included.
func ParseJSONAction(text string, defs []llms.Tool) (*Action, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, protocolError(text, "empty response")
	}

	action := &Action{
		message: llms.MessageFromTextParts(llms.RoleAssistant, text),
	}

	obj := findActionObject([]byte(text))
	if obj == nil {
		action.Answer = text
		return action, nil
	}
	if !gjson.ValidBytes(obj) {
		return nil, protocolError(text, "response is not a valid JSON object")
	}

	res := gjson.ParseBytes(obj)
	action.Thought = res.Get("thought").String()

	if answer := res.Get("final_answer"); answer.Exists() {
		action.Answer = strings.TrimSpace(answer.String())
		if action.Answer == "" {
			return nil, protocolError(text, "empty final_answer")
		}
		return action, nil
	}

	name := res.Get("action")
	if !name.Exists() {
		// the keys are only nested in the object
		return nil, protocolError(text, `expected "action" or "final_answer"`)
	}
	action.Tool = strings.TrimSpace(name.String())
	if action.Tool == "" {
		return nil, protocolError(text, "empty action")
	}

	input := res.Get("action_input")
	switch {
	case !input.Exists() || input.Type == gjson.Null:
		action.Input = "{}"
	case input.IsObject():
		action.Input = input.Raw
	default:
		// some models send the arguments as a string
		in, ok := toolInput(input.String(), action.Tool, defs)
		if !ok {
			return nil, protocolError(text, "action_input for %s is not a JSON object", action.Tool)
		}
		action.Input = in
	}
	return action, nil
}

// findActionObject returns the first balanced object of bs
// that names the action keys, or nil
func findActionObject(bs []byte) []byte {
	for len(bs) > 0 {
		obj := llmutils.ExtractJSONObject(bs)
		if obj == nil {
			return nil
		}
		if bytes.Contains(obj, []byte(`"action"`)) || bytes.Contains(obj, []byte(`"final_answer"`)) {
			return obj
		}
		bs = bs[bytes.Index(bs, obj)+len(obj):]
	}
	return nil
}
