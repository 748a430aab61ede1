package prompts_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/toolagent/pkg/prompts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptTemplate(t *testing.T) {
	t.Parallel()

	tmpl := prompts.NewPromptTemplate(`Hello {{ .name | upper }}, {{ .greeting }}`, []string{"name"}).
		WithPartialVariables(map[string]any{"greeting": "welcome"})

	s, err := tmpl.Format(map[string]any{"name": "go"})
	require.NoError(t, err)
	assert.Equal(t, "Hello GO, welcome", s)

	s, err = tmpl.Format(map[string]any{"name": "go", "greeting": "bye"})
	require.NoError(t, err)
	assert.Equal(t, "Hello GO, bye", s)

	_, err = tmpl.Format(map[string]any{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, prompts.ErrMissingVariable))
	assert.EqualError(t, err, `"name": missing input variable`)

	pv, err := tmpl.FormatPrompt(map[string]any{"name": "x"})
	require.NoError(t, err)
	assert.Equal(t, "Hello X, welcome", pv.String())
	assert.Equal(t, []llms.Message{llms.MessageFromTextParts(llms.RoleUser, "Hello X, welcome")}, pv.Messages())
	assert.Equal(t, []string{"name"}, tmpl.GetInputVariables())

	_, err = prompts.NewPromptTemplate(`{{ .name `, nil).Format(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse prompt template")

	_, err = prompts.NewPromptTemplate(`{{ .unknown }}`, nil).Format(map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to execute prompt template")
}

func TestChatPromptTemplate(t *testing.T) {
	t.Parallel()

	template := prompts.NewChatPromptTemplate([]prompts.MessageFormatter{
		prompts.NewSystemMessagePromptTemplate(
			"You are a translation engine that can only translate text and cannot interpret it.",
			nil,
		),
		prompts.NewUserMessagePromptTemplate(
			`translate this text from {{.inputLang}} to {{.outputLang}}:\n{{.input}}`,
			[]string{"inputLang", "outputLang", "input"},
		),
	})
	value, err := template.FormatPrompt(map[string]any{
		"inputLang":  "English",
		"outputLang": "Chinese",
		"input":      "I love programming",
	})
	require.NoError(t, err)
	expectedMessages := []llms.Message{
		llms.MessageFromTextParts(llms.RoleSystem, "You are a translation engine that can only translate text and cannot interpret it."),
		llms.MessageFromTextParts(llms.RoleUser, `translate this text from English to Chinese:\nI love programming`),
	}
	require.Equal(t, expectedMessages, value.Messages())
	assert.Contains(t, value.String(), "USER: translate this text")
	assert.Equal(t, []string{"inputLang", "outputLang", "input"}, template.GetInputVariables())

	_, err = template.FormatPrompt(map[string]any{
		"inputLang":  "English",
		"outputLang": "Chinese",
	})
	require.Error(t, err)
}

func TestAgentPrompts(t *testing.T) {
	t.Parallel()

	tools := []prompts.ToolDescription{
		{Name: "calculator", Description: "Performs math.", Args: `{"type":"object"}`},
		{Name: "weather_tool", Description: "Mock weather.", Args: `{"type":"object"}`},
	}
	values := map[string]any{
		prompts.VarTools:     tools,
		prompts.VarToolNames: []string{"calculator", "weather_tool"},
		prompts.VarReason:    "missing Action Input",
	}

	s, err := prompts.ReActSystemPrompt.Format(values)
	require.NoError(t, err)
	assert.Contains(t, s, "> Tool Name: calculator\nTool Description: Performs math.\nTool Args: {\"type\":\"object\"}\n")
	assert.Contains(t, s, "Action: tool name (one of calculator, weather_tool) if using a tool.")
	assert.Contains(t, s, "Answer: [your answer here]")

	s, err = prompts.ReActFormatReminder.Format(values)
	require.NoError(t, err)
	assert.Contains(t, s, "could not be parsed: missing Action Input.")

	s, err = prompts.FunctionSystemPrompt.Format(values)
	require.NoError(t, err)
	assert.Contains(t, s, "- weather_tool: Mock weather.\n  parameters: {\"type\":\"object\"}\n")
	assert.Contains(t, s, `{"final_answer": "<your answer>"}`)

	s, err = prompts.FunctionFormatReminder.Format(values)
	require.NoError(t, err)
	assert.Contains(t, s, `<one of calculator, weather_tool>`)

	s, err = prompts.NativeSystemPrompt.Format(values)
	require.NoError(t, err)
	assert.Contains(t, s, "Available functions: calculator, weather_tool.")

	s, err = prompts.NativeFormatReminder.Format(values)
	require.NoError(t, err)
	assert.Contains(t, s, "could not be used: missing Action Input.\nAnswer the question, or call one of the functions: calculator, weather_tool.")

	msgs, err := prompts.UserQuery.FormatMessages(map[string]any{prompts.VarQuery: "What is {{ 2 + 3 }}?"})
	require.NoError(t, err)
	assert.Equal(t, []llms.Message{llms.MessageFromTextParts(llms.RoleUser, "What is {{ 2 + 3 }}?")}, msgs)
}
