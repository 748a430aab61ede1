package agent_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/agent"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReAct(t *testing.T) {
	t.Parallel()

	defs := newRegistry(t).Schemas()

	tcases := []struct {
		name    string
		text    string
		tool    string
		input   string
		answer  string
		thought string
		expErr  string
	}{
		{
			name:    "action",
			text:    "Thought: I need to add the numbers.\nAction: calculator\nAction Input: {\"operation\": \"add\", \"a\": 2, \"b\": 3}",
			tool:    "calculator",
			input:   `{"operation": "add", "a": 2, "b": 3}`,
			thought: "I need to add the numbers.",
		},
		{
			name:    "empty_thought",
			text:    "Thought:\nAction: calculator\nAction Input: {\"operation\": \"square_root\", \"a\": 16}",
			tool:    "calculator",
			input:   `{"operation": "square_root", "a": 16}`,
			thought: "",
		},
		{
			name:  "invented_observation",
			text:  "Action: weather_tool\nAction Input: {\"location\": \"London\"}\nObservation: it is sunny\nThought: done\nAnswer: sunny",
			tool:  "weather_tool",
			input: `{"location": "London"}`,
		},
		{
			name:  "fenced_input",
			text:  "Thought: math\nAction: `calculator`\nAction Input: ```json\n{\"operation\":\"power\",\"a\":2,\"b\":8}\n```",
			tool:  "calculator",
			input: `{"operation":"power","a":2,"b":8}`,
		},
		{
			name:  "plain_input",
			text:  "Thought: look it up\nAction: python_package_info\nAction Input: \"numpy\"",
			tool:  "python_package_info",
			input: `{"package_name":"numpy"}`,
		},
		{
			name:    "answer",
			text:    "Thought: I can answer without using any more tools.\nAnswer: 2 + 3 = 5",
			answer:  "2 + 3 = 5",
			thought: "I can answer without using any more tools.",
		},
		{
			name:   "final_answer",
			text:   "Final Answer: Paris is rainy.",
			answer: "Paris is rainy.",
		},
		{
			name:   "answer_first",
			text:   "Thought: done\nAnswer: 42\n\nAction is not needed.",
			answer: "42\n\nAction is not needed.",
		},
		{
			name:   "plain_text",
			text:   "  The answer is 5.  ",
			answer: "The answer is 5.",
		},
		{
			name:   "empty",
			text:   " \n ",
			expErr: "unable to parse model response: empty response",
		},
		{
			name:   "only_observation",
			text:   "Observation: sunny",
			expErr: "unable to parse model response: empty response",
		},
		{
			name:   "thought_only",
			text:   "Thought: I should use a tool",
			expErr: "unable to parse model response: expected Action or Answer after Thought",
		},
		{
			name:   "empty_answer",
			text:   "Thought: done\nAnswer:",
			expErr: "unable to parse model response: empty Answer",
		},
		{
			name:   "missing_tool",
			text:   "Thought: x\nAction:\nAction Input: {}",
			expErr: "unable to parse model response: missing tool name after Action",
		},
		{
			name:   "missing_input",
			text:   "Thought: x\nAction: calculator",
			expErr: "unable to parse model response: missing Action Input for calculator",
		},
		{
			name:   "invalid_json",
			text:   "Action: calculator\nAction Input: {'operation': 'add'}",
			expErr: "unable to parse model response: Action Input for calculator is not a valid JSON object",
		},
		{
			name:   "plain_input_many_params",
			text:   "Action: calculator\nAction Input: two plus two",
			expErr: "unable to parse model response: Action Input for calculator is not a valid JSON object",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			a, err := agent.ParseReAct(tc.text, defs)
			if tc.expErr != "" {
				require.EqualError(t, err, tc.expErr)
				assert.True(t, errors.Is(err, agent.ErrProtocol))
				var perr *agent.ProtocolError
				require.True(t, errors.As(err, &perr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.tool, a.Tool)
			assert.Equal(t, tc.input, a.Input)
			assert.Equal(t, tc.answer, a.Answer)
			assert.Equal(t, tc.tool == "", a.IsFinal())
			if tc.thought != "" {
				assert.Equal(t, tc.thought, a.Thought)
			}
			assert.Equal(t, llms.RoleAssistant, a.Message().Role)
		})
	}
}

func TestParseReAct_KeepsRawMessage(t *testing.T) {
	t.Parallel()

	text := "Thought: add\nAction: calculator\nAction Input: {\"operation\": \"add\", \"a\": 1, \"b\": 1}\nObservation: 2"
	a, err := agent.ParseReAct(text, nil)
	require.NoError(t, err)
	assert.Equal(t,
		llms.MessageFromTextParts(llms.RoleAssistant, "Thought: add\nAction: calculator\nAction Input: {\"operation\": \"add\", \"a\": 1, \"b\": 1}"),
		a.Message())
}

func TestParseJSONAction(t *testing.T) {
	t.Parallel()

	defs := newRegistry(t).Schemas()

	tcases := []struct {
		name    string
		text    string
		tool    string
		input   string
		answer  string
		thought string
		expErr  string
	}{
		{
			name:  "action",
			text:  `{"action": "calculator", "action_input": {"operation": "multiply", "a": 6, "b": 7}}`,
			tool:  "calculator",
			input: `{"operation": "multiply", "a": 6, "b": 7}`,
		},
		{
			name:    "fenced_with_thought",
			text:    "```json\n{\"thought\": \"check weather\", \"action\": \"weather_tool\", \"action_input\": {\"location\": \"Tokyo\"}}\n```",
			tool:    "weather_tool",
			input:   `{"location": "Tokyo"}`,
			thought: "check weather",
		},
		{
			name:  "string_input",
			text:  `{"action": "python_package_info", "action_input": "pandas"}`,
			tool:  "python_package_info",
			input: `{"package_name":"pandas"}`,
		},
		{
			name:  "stringified_object",
			text:  `{"action": "weather_tool", "action_input": "{\"location\": \"Paris\"}"}`,
			tool:  "weather_tool",
			input: `{"location": "Paris"}`,
		},
		{
			name:  "no_input",
			text:  `{"action": "weather_tool"}`,
			tool:  "weather_tool",
			input: `{}`,
		},
		{
			name:   "final_answer",
			text:   `Here you go: {"final_answer": "6 × 7 = 42"}`,
			answer: "6 × 7 = 42",
		},
		{
			name:   "plain_text",
			text:   "The capital of France is Paris.",
			answer: "The capital of France is Paris.",
		},
		{
			name:   "empty",
			text:   "",
			expErr: "unable to parse model response: empty response",
		},
		{
			name:   "invalid_json",
			text:   `{"action": calculator}`,
			expErr: "unable to parse model response: response is not a valid JSON object",
		},
		{
			name:   "nested_keys",
			text:   `{"tool": {"action": "calculator"}}`,
			expErr: `unable to parse model response: expected "action" or "final_answer"`,
		},
		{
			name:   "unrelated_object",
			text:   `{"tool": "calculator"}`,
			answer: `{"tool": "calculator"}`,
		},
		{
			name:   "prose_with_set",
			text:   "The set is {1, 2, 3}.",
			answer: "The set is {1, 2, 3}.",
		},
		{
			name:   "prose_with_dict_literal",
			text:   "Create a frame with pd.DataFrame({'a': [1, 2]}) and print it.",
			answer: "Create a frame with pd.DataFrame({'a': [1, 2]}) and print it.",
		},
		{
			name:  "action_after_code_sample",
			text:  "Sample: {x: 1}\n{\"action\": \"calculator\", \"action_input\": {\"operation\": \"add\", \"a\": 1, \"b\": 2}}",
			tool:  "calculator",
			input: `{"operation": "add", "a": 1, "b": 2}`,
		},
		{
			name:   "empty_action",
			text:   `{"action": " "}`,
			expErr: "unable to parse model response: empty action",
		},
		{
			name:   "empty_final_answer",
			text:   `{"final_answer": ""}`,
			expErr: "unable to parse model response: empty final_answer",
		},
		{
			name:   "bad_input",
			text:   `{"action": "calculator", "action_input": 42}`,
			expErr: "unable to parse model response: action_input for calculator is not a JSON object",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			a, err := agent.ParseJSONAction(tc.text, defs)
			if tc.expErr != "" {
				require.EqualError(t, err, tc.expErr)
				assert.True(t, errors.Is(err, agent.ErrProtocol))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.tool, a.Tool)
			assert.Equal(t, tc.input, a.Input)
			assert.Equal(t, tc.answer, a.Answer)
			assert.Equal(t, tc.thought, a.Thought)
		})
	}
}
