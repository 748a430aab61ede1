package prompts

import (
	"bytes"
	"maps"
	"strings"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/toolagent/pkg/llmutils"
)

// ErrMissingVariable is returned when a required input variable is not provided
var ErrMissingVariable = errors.New("missing input variable")

// PromptValue is the formatted prompt
type PromptValue interface {
	String() string
	Messages() []llms.Message
}

// FormatPrompter formats a prompt from the input values
type FormatPrompter interface {
	FormatPrompt(values map[string]any) (PromptValue, error)
	GetInputVariables() []string
}

// StringPromptValue is a prompt value that is a string.
type StringPromptValue string

func (v StringPromptValue) String() string {
	return string(v)
}

// Messages returns a single user message.
func (v StringPromptValue) Messages() []llms.Message {
	return []llms.Message{llms.MessageFromTextParts(llms.RoleUser, string(v))}
}

// ChatPromptValue is a prompt value that is a list of chat messages.
type ChatPromptValue []llms.Message

// String returns the chat message slice as a buffer string.
func (v ChatPromptValue) String() string {
	var buf strings.Builder
	llmutils.PrintMessages(&buf, v)
	return buf.String()
}

// Messages returns the ChatMessage slice.
func (v ChatPromptValue) Messages() []llms.Message {
	return v
}

// PromptTemplate is a text/template with sprig functions
type PromptTemplate struct {
	Template string
	// InputVariables must be present in the values passed to Format
	InputVariables []string
	// PartialVariables are merged under the values passed to Format
	PartialVariables map[string]any

	once   sync.Once
	parsed *template.Template
	err    error
}

var _ FormatPrompter = (*PromptTemplate)(nil)

// NewPromptTemplate returns a new prompt template.
func NewPromptTemplate(tmpl string, inputVars []string) *PromptTemplate {
	return &PromptTemplate{
		Template:       tmpl,
		InputVariables: inputVars,
	}
}

// WithPartialVariables sets values that are always available to the template
func (p *PromptTemplate) WithPartialVariables(values map[string]any) *PromptTemplate {
	p.PartialVariables = values
	return p
}

func (p *PromptTemplate) parse() (*template.Template, error) {
	p.once.Do(func() {
		p.parsed, p.err = template.New("prompt").
			Funcs(sprig.TxtFuncMap()).
			Option("missingkey=error").
			Parse(p.Template)
		if p.err != nil {
			p.err = errors.Wrap(p.err, "failed to parse prompt template")
		}
	})
	return p.parsed, p.err
}

// Format renders the template with the values
func (p *PromptTemplate) Format(values map[string]any) (string, error) {
	for _, name := range p.InputVariables {
		if _, ok := values[name]; !ok {
			return "", errors.WithMessagef(ErrMissingVariable, "%q", name)
		}
	}

	t, err := p.parse()
	if err != nil {
		return "", err
	}

	data := make(map[string]any, len(p.PartialVariables)+len(values))
	maps.Copy(data, p.PartialVariables)
	maps.Copy(data, values)

	var buf bytes.Buffer
	if err = t.Execute(&buf, data); err != nil {
		return "", errors.Wrap(err, "failed to execute prompt template")
	}
	return buf.String(), nil
}

// FormatPrompt renders the template as StringPromptValue
func (p *PromptTemplate) FormatPrompt(values map[string]any) (PromptValue, error) {
	s, err := p.Format(values)
	if err != nil {
		return nil, err
	}
	return StringPromptValue(s), nil
}

// GetInputVariables returns the required input variables
func (p *PromptTemplate) GetInputVariables() []string {
	return p.InputVariables
}

// MessageFormatter formats a message of a chat prompt
type MessageFormatter interface {
	FormatMessages(values map[string]any) ([]llms.Message, error)
	GetInputVariables() []string
}

// MessagePromptTemplate is a prompt template of a single chat message
type MessagePromptTemplate struct {
	Role   llms.Role
	Prompt *PromptTemplate
}

// NewSystemMessagePromptTemplate returns a system message template
func NewSystemMessagePromptTemplate(tmpl string, inputVars []string) *MessagePromptTemplate {
	return &MessagePromptTemplate{Role: llms.RoleSystem, Prompt: NewPromptTemplate(tmpl, inputVars)}
}

// NewUserMessagePromptTemplate returns a user message template
func NewUserMessagePromptTemplate(tmpl string, inputVars []string) *MessagePromptTemplate {
	return &MessagePromptTemplate{Role: llms.RoleUser, Prompt: NewPromptTemplate(tmpl, inputVars)}
}

// FormatMessages implements MessageFormatter
func (m *MessagePromptTemplate) FormatMessages(values map[string]any) ([]llms.Message, error) {
	text, err := m.Prompt.Format(values)
	if err != nil {
		return nil, err
	}
	return []llms.Message{llms.MessageFromTextParts(m.Role, text)}, nil
}

// GetInputVariables implements MessageFormatter
func (m *MessagePromptTemplate) GetInputVariables() []string {
	return m.Prompt.InputVariables
}

// ChatPromptTemplate is a list of message templates
type ChatPromptTemplate struct {
	Messages []MessageFormatter
}

var _ FormatPrompter = ChatPromptTemplate{}

// NewChatPromptTemplate returns a new chat prompt template
func NewChatPromptTemplate(messages []MessageFormatter) ChatPromptTemplate {
	return ChatPromptTemplate{Messages: messages}
}

// FormatPrompt implements FormatPrompter
func (c ChatPromptTemplate) FormatPrompt(values map[string]any) (PromptValue, error) {
	var res ChatPromptValue
	for _, m := range c.Messages {
		msgs, err := m.FormatMessages(values)
		if err != nil {
			return nil, err
		}
		res = append(res, msgs...)
	}
	return res, nil
}

// GetInputVariables implements FormatPrompter
func (c ChatPromptTemplate) GetInputVariables() []string {
	var vars []string
	for _, m := range c.Messages {
		vars = append(vars, m.GetInputVariables()...)
	}
	return vars
}
