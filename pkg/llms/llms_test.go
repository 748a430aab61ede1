package llms

import (
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderCapabilities(t *testing.T) {
	assert.False(t, ProviderLocal.Supports(CapabilityFunctionCalling))
	assert.True(t, ProviderLocal.Supports(CapabilitySelfHosted))
	assert.True(t, ProviderOpenAI.Supports(CapabilityFunctionCalling))
	assert.True(t, ProviderAnthropic.Supports(CapabilityFunctionCalling))
	assert.False(t, ProviderType("UNKNOWN").Supports(CapabilityText))

	pt, err := ParseProviderType(" openai ")
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, pt)

	_, err = ParseProviderType("bedrock")
	assert.EqualError(t, err, `unsupported provider type: "bedrock"`)
}

func TestCallOptions(t *testing.T) {
	opts := NewCallOptions(
		WithModel("m1"),
		WithMaxTokens(128),
		WithStopWords([]string{"\nObservation:"}),
		WithToolChoice("auto"),
	)
	assert.Equal(t, "m1", opts.Model)
	assert.Equal(t, 128, opts.MaxTokens)
	assert.False(t, opts.TemperatureSet)
	assert.Equal(t, []string{"\nObservation:"}, opts.StopWords)
	assert.Equal(t, "auto", opts.ToolChoice)

	opts = NewCallOptions(WithTemperature(0))
	assert.True(t, opts.TemperatureSet)
	assert.Equal(t, 0.0, opts.Temperature)

	opts = NewCallOptions(WithOptions(CallOptions{Model: "m2"}))
	assert.Equal(t, "m2", opts.Model)
}

func TestMessageContent(t *testing.T) {
	msg := MessageFromTextParts(RoleUser, "what is 2+2?")
	assert.Equal(t, "what is 2+2?\n", msg.GetContent())
	assert.Equal(t, "what is 2+2?", msg.GetText())
	assert.Empty(t, msg.ToolCalls())

	call := ToolCall{
		ID:   "call_1",
		Type: "function",
		FunctionCall: &FunctionCall{
			Name:      "calculator",
			Arguments: `{"operation":"add","a":2,"b":2}`,
		},
	}
	msg = MessageFromToolCalls(RoleAssistant, call)
	require.Len(t, msg.ToolCalls(), 1)
	assert.Equal(t, call, msg.ToolCalls()[0])
	assert.Equal(t, `Tool Call: {"id":"call_1","type":"function","function":{"name":"calculator","arguments":"{\"operation\":\"add\",\"a\":2,\"b\":2}"}}`+"\n", msg.GetContent())
	assert.Equal(t, `ToolCall: call_1 (calculator), input: {"operation":"add","a":2,"b":2}`, call.String())

	resp := ToolCallResponse{ToolCallID: "call_1", Name: "calculator", Content: "2 + 2 = 4"}
	msg = MessageFromToolResponse(RoleTool, resp)
	require.Len(t, msg.ToolResponses(), 1)
	assert.Equal(t, resp, msg.ToolResponses()[0])
	assert.Equal(t, "ToolCallResponse: call_1 (calculator), response size: 9", resp.String())
}

func TestMessageJSON(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		msg := MessageFromTextParts(RoleUser, "hello")
		js, err := json.Marshal(msg)
		require.NoError(t, err)
		assert.Equal(t, `{"role":"user","text":"hello"}`, string(js))

		var back Message
		require.NoError(t, json.Unmarshal(js, &back))
		assert.Equal(t, msg, back)
	})

	t.Run("parts", func(t *testing.T) {
		msg := MessageFromParts(RoleAssistant,
			TextPart("Thought: I need the calculator"),
			ToolCall{ID: "1", Type: "function", FunctionCall: &FunctionCall{Name: "calculator", Arguments: `{"a":1}`}},
		)
		js, err := json.Marshal(msg)
		require.NoError(t, err)
		assert.Equal(t, `{"role":"assistant","parts":[{"type":"text","text":"Thought: I need the calculator"},{"type":"tool_call","tool_call":{"id":"1","type":"function","function":{"name":"calculator","arguments":"{\"a\":1}"}}}]}`, string(js))

		var back Message
		require.NoError(t, json.Unmarshal(js, &back))
		assert.Equal(t, msg, back)

		tool := MessageFromToolResponse(RoleTool, ToolCallResponse{ToolCallID: "1", Name: "calculator", Content: "1"})
		js, err = json.Marshal([]Message{msg, tool})
		require.NoError(t, err)
		var list []Message
		require.NoError(t, json.Unmarshal(js, &list))
		assert.Equal(t, []Message{msg, tool}, list)
	})

	t.Run("errors", func(t *testing.T) {
		var m Message
		err := json.Unmarshal([]byte(`{"role":"robot","text":"x"}`), &m)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnexpectedRole))

		err = json.Unmarshal([]byte(`{"role":"user","parts":[{"type":"image"}]}`), &m)
		assert.EqualError(t, err, `unknown content part type: "image"`)
	})
}
