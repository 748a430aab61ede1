package agent

import (
	"regexp"
	"strings"

	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/toolagent/pkg/prompts"
	"github.com/effective-security/toolagent/tools"
)

// ReActStopWord stops the generation before the model makes up an observation
const ReActStopWord = "\nObservation:"

var (
	reThought     = regexp.MustCompile(`(?im)^\s*Thought\s*:\s*`)
	reAction      = regexp.MustCompile(`(?im)^\s*Action\s*:[ \t]*`)
	reActionInput = regexp.MustCompile(`(?im)^\s*Action\s+Input\s*:\s*`)
	reAnswer      = regexp.MustCompile(`(?im)^\s*(?:Final\s+)?Answer\s*:\s*`)
	reObservation = regexp.MustCompile(`(?im)^\s*Observation\s*:`)
)

type reactProtocol struct {
	stopWords bool
}

func (p *reactProtocol) systemPrompt(specs []*tools.Spec) (string, error) {
	return prompts.ReActSystemPrompt.Format(promptValues(specs))
}

func (p *reactProtocol) callOptions([]llms.Tool) []llms.CallOption {
	if !p.stopWords {
		return nil
	}
	return []llms.CallOption{llms.WithStopWords([]string{ReActStopWord})}
}

func (p *reactProtocol) reminder(perr *ProtocolError, names []string) (string, error) {
	return prompts.ReActFormatReminder.Format(reminderValues(perr, names))
}

func (p *reactProtocol) observation(_ *Action, result *tools.ToolResult) llms.Message {
	return textObservation(result)
}

func (p *reactProtocol) parse(choice *llms.ContentChoice, defs []llms.Tool) (*Action, error) {
	return ParseReAct(choice.Content, defs)
}

// ParseReAct parses the Thought/Action/Action Input/Answer format.
// A response without any of the markers is the final answer.
func ParseReAct(text string, defs []llms.Tool) (*Action, error) {
	text = strings.TrimSpace(text)
	// the model may continue with an invented observation
	if loc := reObservation.FindStringIndex(text); loc != nil {
		text = strings.TrimSpace(text[:loc[0]])
	}
	if text == "" {
		return nil, protocolError(text, "empty response")
	}

	action := &Action{
		message: llms.MessageFromTextParts(llms.RoleAssistant, text),
	}

	actionLoc := reAction.FindStringIndex(text)
	answerLoc := reAnswer.FindStringIndex(text)
	thoughtLoc := reThought.FindStringIndex(text)

	if thoughtLoc != nil {
		end := len(text)
		for _, loc := range [][]int{actionLoc, answerLoc} {
			if loc != nil && loc[0] >= thoughtLoc[1] && loc[0] < end {
				end = loc[0]
			}
		}
		action.Thought = strings.TrimSpace(text[thoughtLoc[1]:end])
	}

	switch {
	case answerLoc != nil && (actionLoc == nil || answerLoc[0] < actionLoc[0]):
		action.Answer = strings.TrimSpace(text[answerLoc[1]:])
		if action.Answer == "" {
			return nil, protocolError(text, "empty Answer")
		}
		return action, nil

	case actionLoc != nil:
		rest := text[actionLoc[1]:]
		line, _, _ := strings.Cut(rest, "\n")
		action.Tool = strings.Trim(strings.TrimSpace(line), "\"'`*")
		if action.Tool == "" {
			return nil, protocolError(text, "missing tool name after Action")
		}

		inputLoc := reActionInput.FindStringIndex(rest)
		if inputLoc == nil {
			return nil, protocolError(text, "missing Action Input for %s", action.Tool)
		}
		input, ok := toolInput(rest[inputLoc[1]:], action.Tool, defs)
		if !ok {
			return nil, protocolError(text, "Action Input for %s is not a valid JSON object", action.Tool)
		}
		action.Input = input
		return action, nil

	case thoughtLoc != nil:
		return nil, protocolError(text, "expected Action or Answer after Thought")
	}

	action.Answer = text
	return action, nil
}
