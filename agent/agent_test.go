package agent_test

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/agent"
	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/mocks/mockllms"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/toolagent/store"
	"github.com/effective-security/toolagent/tools"
	"github.com/effective-security/toolagent/tools/calculator"
	"github.com/effective-security/toolagent/tools/pkginfo"
	"github.com/effective-security/toolagent/tools/weather"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	wt, err := weather.New()
	require.NoError(t, err)
	reg, err := tools.NewRegistry(calculator.New(), pkginfo.New(), wt)
	require.NoError(t, err)
	return reg
}

// llmCall is a recorded GenerateContent request
type llmCall struct {
	messages []llms.Message
	opts     *llms.CallOptions
}

// scriptedModel replies with the choices in order,
// the last reply is repeated when the script is exhausted
type scriptedModel struct {
	lock    sync.Mutex
	replies []*llms.ContentChoice
	calls   []llmCall
}

func (s *scriptedModel) generate(_ context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	idx := min(len(s.calls), len(s.replies)-1)
	s.calls = append(s.calls, llmCall{
		messages: slices.Clone(messages),
		opts:     llms.NewCallOptions(options...),
	})
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{s.replies[idx]}}, nil
}

func (s *scriptedModel) Calls() []llmCall {
	s.lock.Lock()
	defer s.lock.Unlock()
	return slices.Clone(s.calls)
}

func newModel(t *testing.T, prov llms.ProviderType, replies ...string) (*mockllms.MockModel, *scriptedModel) {
	t.Helper()
	choices := make([]*llms.ContentChoice, 0, len(replies))
	for _, r := range replies {
		choices = append(choices, &llms.ContentChoice{Content: r})
	}
	return newModelWithChoices(t, prov, choices...)
}

func newModelWithChoices(t *testing.T, prov llms.ProviderType, choices ...*llms.ContentChoice) (*mockllms.MockModel, *scriptedModel) {
	t.Helper()
	ctrl := gomock.NewController(t)
	script := &scriptedModel{replies: choices}

	m := mockllms.NewMockModel(ctrl)
	m.EXPECT().GetName().Return("mock-model").AnyTimes()
	m.EXPECT().GetProviderType().Return(prov).AnyTimes()
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(script.generate).AnyTimes()
	return m, script
}

func userMsg(text string) llms.Message {
	return llms.MessageFromTextParts(llms.RoleUser, text)
}

func assistantMsg(text string) llms.Message {
	return llms.MessageFromTextParts(llms.RoleAssistant, text)
}

const (
	addAction    = "Thought: I need to add.\nAction: calculator\nAction Input: {\"operation\": \"add\", \"a\": 2, \"b\": 3}"
	answerAction = "Thought: I can answer without using any more tools.\nAnswer: 2 + 3 = 5"
)

func TestNew(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t)
	m, _ := newModel(t, llms.ProviderLocal, "hi")

	_, err := agent.New(nil, reg, agent.Config{})
	assert.EqualError(t, err, "model is required")
	_, err = agent.New(m, nil, agent.Config{})
	assert.EqualError(t, err, "tool registry is required")
	_, err = agent.New(m, reg, agent.Config{Mode: "planner"})
	assert.EqualError(t, err, `unsupported agent type: "planner", expected react or function`)
	_, err = agent.New(m, reg, agent.Config{MaxIterations: -1})
	assert.EqualError(t, err, "invalid max iterations: -1")
	_, err = agent.New(m, reg, agent.Config{QueryTimeout: "soon"})
	assert.ErrorContains(t, err, `invalid query timeout: "soon"`)

	a, err := agent.New(m, reg, agent.Config{})
	require.NoError(t, err)
	assert.Equal(t, "React Agent", a.Name())
	assert.Equal(t, agent.ModeReAct, a.Config().Mode)
	assert.False(t, a.Client().Native())

	a, err = agent.New(m, reg, agent.Config{Mode: "Function"}, agent.WithName("custom"))
	require.NoError(t, err)
	assert.Equal(t, "custom", a.Name())
	assert.Equal(t, agent.ModeFunction, a.Config().Mode)
	assert.False(t, a.Client().Native())
	assert.Equal(t, m, a.Client().Model())

	openai, _ := newModel(t, llms.ProviderOpenAI, "hi")
	a, err = agent.New(openai, reg, agent.Config{Mode: agent.ModeFunction})
	require.NoError(t, err)
	assert.Equal(t, "Function Calling Agent", a.Name())
	assert.True(t, a.Client().Native())

	a, err = agent.New(openai, reg, agent.Config{Mode: agent.ModeReAct})
	require.NoError(t, err)
	assert.False(t, a.Client().Native())
}

func TestReAct(t *testing.T) {
	t.Parallel()

	m, script := newModel(t, llms.ProviderLocal, addAction, answerAction)
	temperature := 0.1
	a, err := agent.New(m, newRegistry(t), agent.Config{
		Temperature: &temperature,
		MaxTokens:   512,
	})
	require.NoError(t, err)

	ctx := context.Background()
	res, err := a.Run(ctx, "What is 2 plus 3?")
	require.NoError(t, err)
	assert.Equal(t, agent.StateDone, res.State)
	assert.Equal(t, "2 + 3 = 5", res.Answer)
	assert.Equal(t, "React Agent", res.Agent)
	assert.Equal(t, 2, res.Iterations)
	assert.Equal(t, 1, res.ToolCalls())
	assert.Empty(t, res.Error)

	require.Len(t, res.Steps, 2)
	assert.Equal(t, "calculator", res.Steps[0].Action.Tool)
	assert.Equal(t, "I need to add.", res.Steps[0].Action.Thought)
	assert.Equal(t, "2 + 3 = 5", res.Steps[0].Observation)
	assert.True(t, res.Steps[0].Success)
	assert.True(t, res.Steps[1].Action.IsFinal())

	expected := []llms.Message{
		userMsg("What is 2 plus 3?"),
		assistantMsg(addAction),
		userMsg("Observation: 2 + 3 = 5"),
		assistantMsg(answerAction),
	}
	if diff := cmp.Diff(expected, res.Messages); diff != "" {
		t.Errorf("unexpected messages (-want +got):\n%s", diff)
	}

	calls := script.Calls()
	require.Len(t, calls, 2)
	first := calls[0]
	require.Len(t, first.messages, 2)
	assert.Equal(t, llms.RoleSystem, first.messages[0].Role)
	sys := first.messages[0].GetText()
	assert.Contains(t, sys, "> Tool Name: calculator\n")
	assert.Contains(t, sys, "> Tool Name: python_package_info\n")
	assert.Contains(t, sys, "> Tool Name: weather_tool\n")
	assert.Contains(t, sys, "(one of calculator, python_package_info, weather_tool)")
	assert.Equal(t, []string{agent.ReActStopWord}, first.opts.StopWords)
	assert.Empty(t, first.opts.Tools)
	assert.True(t, first.opts.TemperatureSet)
	assert.Equal(t, 0.1, first.opts.Temperature)
	assert.Equal(t, 512, first.opts.MaxTokens)
	assert.Len(t, calls[1].messages, 4)

	assert.Equal(t, "2 + 3 = 5", a.Query(ctx, "What is 2 plus 3?"))
}

func TestReAct_PlainAnswer(t *testing.T) {
	t.Parallel()

	m, script := newModel(t, llms.ProviderLocal, "Hello! How can I help you today?")
	a, err := agent.New(m, newRegistry(t), agent.Config{})
	require.NoError(t, err)

	res, err := a.Run(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello! How can I help you today?", res.Answer)
	assert.Equal(t, 1, res.Iterations)
	assert.Len(t, script.Calls(), 1)
}

func TestBudgetExceeded(t *testing.T) {
	t.Parallel()

	m, script := newModel(t, llms.ProviderLocal, addAction)
	cb := &recorder{}
	a, err := agent.New(m, newRegistry(t), agent.Config{MaxIterations: 3}, agent.WithCallback(cb))
	require.NoError(t, err)

	res, err := a.Run(context.Background(), "add forever")
	require.Error(t, err)
	assert.True(t, errors.Is(err, agent.ErrBudgetExceeded))
	assert.EqualError(t, err, "iteration budget exceeded: no answer after 3 iterations")
	assert.Equal(t, agent.StateFailed, res.State)
	assert.Equal(t, err.Error(), res.Error)
	assert.Equal(t, 3, res.Iterations)
	assert.Equal(t, 3, res.ToolCalls())
	assert.Len(t, script.Calls(), 3)

	// query, then an action and an observation per iteration
	assert.Len(t, res.Messages, 3*2+1)
	assert.Equal(t, 3, cb.count("state:Thinking->ToolDispatch"))
	assert.Equal(t, 1, cb.count("state:Thinking->Failed"))
	assert.Equal(t, 1, cb.count("agent_error"))

	assert.Equal(t, "An error occurred: iteration budget exceeded: no answer after 3 iterations",
		a.Query(context.Background(), "add forever"))
}

func TestHistoryBound(t *testing.T) {
	t.Parallel()

	for maxIterations := 1; maxIterations <= 4; maxIterations++ {
		t.Run(fmt.Sprintf("max_%d", maxIterations), func(t *testing.T) {
			replies := []string{"Thought: hmm", addAction, "Action: search\nAction Input: {\"q\": \"x\"}", "Thought: ?"}
			m, script := newModel(t, llms.ProviderLocal, replies...)
			a, err := agent.New(m, newRegistry(t), agent.Config{MaxIterations: maxIterations})
			require.NoError(t, err)

			res, _ := a.Run(context.Background(), "q")
			assert.LessOrEqual(t, len(res.Messages), maxIterations*2+1)
			assert.LessOrEqual(t, len(script.Calls()), maxIterations+1)
		})
	}
}

func TestProtocolError(t *testing.T) {
	t.Parallel()

	t.Run("failed_after_retry", func(t *testing.T) {
		m, script := newModel(t, llms.ProviderLocal, "Thought: I should use a tool")
		cb := &recorder{}
		a, err := agent.New(m, newRegistry(t), agent.Config{}, agent.WithCallback(cb))
		require.NoError(t, err)

		res, err := a.Run(context.Background(), "weather?")
		require.Error(t, err)
		assert.True(t, errors.Is(err, agent.ErrProtocol))
		assert.EqualError(t, err, "model response could not be parsed after retry: unable to parse model response: expected Action or Answer after Thought")
		assert.Equal(t, agent.StateFailed, res.State)
		assert.Len(t, script.Calls(), 2)
		assert.LessOrEqual(t, len(script.Calls()), agent.DefaultReActMaxIterations+1)
		assert.Equal(t, 2, cb.count("protocol_error"))

		require.Len(t, res.Messages, 3)
		assert.Equal(t, assistantMsg("Thought: I should use a tool"), res.Messages[1])
		assert.Contains(t, res.Messages[2].GetText(), "could not be parsed: expected Action or Answer after Thought.")
		require.Len(t, res.Steps, 2)
		assert.Nil(t, res.Steps[0].Action)
		assert.NotEmpty(t, res.Steps[0].Error)
	})

	t.Run("recovered", func(t *testing.T) {
		m, script := newModel(t, llms.ProviderLocal, "Thought: hmm", answerAction)
		a, err := agent.New(m, newRegistry(t), agent.Config{})
		require.NoError(t, err)

		res, err := a.Run(context.Background(), "2+3?")
		require.NoError(t, err)
		assert.Equal(t, "2 + 3 = 5", res.Answer)
		assert.Equal(t, 2, res.Iterations)

		calls := script.Calls()
		require.Len(t, calls, 2)
		second := calls[1].messages
		require.Len(t, second, 4)
		assert.Equal(t, llms.RoleUser, second[3].Role)
		assert.Contains(t, second[3].GetText(), "Respond again using exactly one of the formats")
	})

	t.Run("not_consecutive", func(t *testing.T) {
		m, script := newModel(t, llms.ProviderLocal, "Thought: hmm", addAction, "Thought: hmm again", answerAction)
		a, err := agent.New(m, newRegistry(t), agent.Config{})
		require.NoError(t, err)

		res, err := a.Run(context.Background(), "2+3?")
		require.NoError(t, err)
		assert.Equal(t, "2 + 3 = 5", res.Answer)
		assert.Len(t, script.Calls(), 4)
	})

	t.Run("degraded", func(t *testing.T) {
		m, script := newModel(t, llms.ProviderLocal, "Thought: The weather is nice")
		a, err := agent.New(m, newRegistry(t), agent.Config{DegradeOnProtocolError: true})
		require.NoError(t, err)

		res, err := a.Run(context.Background(), "weather?")
		require.NoError(t, err)
		assert.Equal(t, agent.StateDone, res.State)
		assert.Equal(t, "Thought: The weather is nice", res.Answer)
		assert.Len(t, script.Calls(), 2)
	})

	t.Run("no_choices", func(t *testing.T) {
		m, script := newModelWithChoices(t, llms.ProviderLocal, nil)
		a, err := agent.New(m, newRegistry(t), agent.Config{DegradeOnProtocolError: true})
		require.NoError(t, err)

		_, err = a.Run(context.Background(), "weather?")
		require.Error(t, err)
		assert.True(t, errors.Is(err, agent.ErrProtocol))
		assert.Contains(t, err.Error(), "no choices in the response")
		assert.Len(t, script.Calls(), 2)
	})
}

func TestUnknownTool(t *testing.T) {
	t.Parallel()

	m, script := newModel(t, llms.ProviderLocal,
		"Thought: search it\nAction: web_search\nAction Input: {\"query\": \"golang\"}",
		"Thought: I cannot search.\nAnswer: I do not have a search tool.")
	cb := &recorder{}
	a, err := agent.New(m, newRegistry(t), agent.Config{}, agent.WithCallback(cb))
	require.NoError(t, err)

	res, err := a.Run(context.Background(), "search golang")
	require.NoError(t, err)
	assert.Equal(t, "I do not have a search tool.", res.Answer)
	assert.Equal(t, 2, res.Iterations)
	require.Len(t, res.Steps, 2)
	assert.False(t, res.Steps[0].Success)
	assert.Equal(t,
		`Error: unknown tool "web_search", available tools: calculator, python_package_info, weather_tool`,
		res.Steps[0].Observation)
	assert.Equal(t, 1, cb.count("tool_not_found:web_search"))

	calls := script.Calls()
	require.Len(t, calls, 2)
	last := calls[1].messages[len(calls[1].messages)-1]
	assert.True(t, strings.HasPrefix(last.GetText(), "Observation: Error: unknown tool"))
}

func TestToolFailure(t *testing.T) {
	t.Parallel()

	m, _ := newModel(t, llms.ProviderLocal,
		"Thought: divide\nAction: calculator\nAction Input: {\"operation\": \"divide\", \"a\": 10, \"b\": 0}",
		"Thought: cannot\nAnswer: You cannot divide by zero.")
	cb := &recorder{}
	a, err := agent.New(m, newRegistry(t), agent.Config{}, agent.WithCallback(cb))
	require.NoError(t, err)

	res, err := a.Run(context.Background(), "10/0")
	require.NoError(t, err)
	assert.Equal(t, "You cannot divide by zero.", res.Answer)
	assert.False(t, res.Steps[0].Success)
	assert.Contains(t, res.Steps[0].Observation, "divide by zero")
	assert.Equal(t, 1, cb.count("tool_error:calculator"))
}

func TestTransportError(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	m := mockllms.NewMockModel(ctrl)
	m.EXPECT().GetName().Return("mock-model").AnyTimes()
	m.EXPECT().GetProviderType().Return(llms.ProviderLocal).AnyTimes()
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, errors.Mark(errors.New("connection refused"), llms.ErrTransport)).
		Times(2)

	a, err := agent.New(m, newRegistry(t), agent.Config{})
	require.NoError(t, err)

	res, err := a.Run(context.Background(), "2+3?")
	require.Error(t, err)
	assert.True(t, errors.Is(err, llms.ErrTransport))
	assert.Equal(t, agent.StateFailed, res.State)
	assert.Equal(t, 1, res.Iterations)

	assert.Equal(t, "An error occurred: failed to generate content from LLM: connection refused",
		a.Query(context.Background(), "2+3?"))
}

func TestTimeout(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	m := mockllms.NewMockModel(ctrl)
	m.EXPECT().GetName().Return("mock-model").AnyTimes()
	m.EXPECT().GetProviderType().Return(llms.ProviderLocal).AnyTimes()
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ []llms.Message, _ ...llms.CallOption) (*llms.ContentResponse, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}).AnyTimes()

	a, err := agent.New(m, newRegistry(t), agent.Config{QueryTimeout: "50ms"})
	require.NoError(t, err)

	started := time.Now()
	res, err := a.Run(context.Background(), "slow")
	require.Error(t, err)
	assert.Less(t, time.Since(started), 5*time.Second)
	assert.True(t, errors.Is(err, agent.ErrTimeout))
	assert.EqualError(t, err, "query processing timed out after 50ms")
	assert.Equal(t, agent.StateFailed, res.State)
	assert.Nil(t, res.Messages)

	assert.Equal(t, "An error occurred: query processing timed out after 50ms", a.Query(context.Background(), "slow"))
}

func TestTimeout_LateAnswerNotRetained(t *testing.T) {
	t.Parallel()

	returned := make(chan struct{})
	ctrl := gomock.NewController(t)
	m := mockllms.NewMockModel(ctrl)
	m.EXPECT().GetName().Return("mock-model").AnyTimes()
	m.EXPECT().GetProviderType().Return(llms.ProviderLocal).AnyTimes()
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ []llms.Message, _ ...llms.CallOption) (*llms.ContentResponse, error) {
			// the backend does not honor the context
			defer close(returned)
			time.Sleep(150 * time.Millisecond)
			return &llms.ContentResponse{
				Choices: []*llms.ContentChoice{{Content: "Answer: late"}},
			}, nil
		}).Times(1)

	st := store.NewMemoryStore()
	a, err := agent.New(m, newRegistry(t),
		agent.Config{QueryTimeout: "50ms", RetainHistory: true},
		agent.WithStore(st))
	require.NoError(t, err)

	ctx := chatmodel.WithChatContext(context.Background(), chatmodel.NewChatContext("session-late", nil))
	res, err := a.Run(ctx, "slow")
	require.Error(t, err)
	assert.True(t, errors.Is(err, agent.ErrTimeout))
	assert.Equal(t, agent.StateFailed, res.State)

	<-returned
	// give the abandoned loop the time to finish
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, st.Messages(ctx))
}

func TestCanceled(t *testing.T) {
	t.Parallel()

	m, script := newModel(t, llms.ProviderLocal, answerAction)
	a, err := agent.New(m, newRegistry(t), agent.Config{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := a.Run(ctx, "2+3?")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, agent.ErrTimeout))
	assert.Equal(t, agent.StateFailed, res.State)
	assert.Empty(t, script.Calls())
}

func TestNativeFunctionCalling(t *testing.T) {
	t.Parallel()

	m, script := newModelWithChoices(t, llms.ProviderOpenAI,
		&llms.ContentChoice{
			ToolCalls: []llms.ToolCall{
				{
					ID:   "call_1",
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      "weather_tool",
						Arguments: `{"location": "london", "date": "2024-05-01"}`,
					},
				},
				{
					ID:   "call_2",
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      "calculator",
						Arguments: `{"operation": "add", "a": 1, "b": 1}`,
					},
				},
			},
		},
		&llms.ContentChoice{Content: "It is cloudy in London."},
	)
	a, err := agent.New(m, newRegistry(t), agent.Config{Mode: agent.ModeFunction})
	require.NoError(t, err)

	res, err := a.Run(context.Background(), "Weather in London on 2024-05-01?")
	require.NoError(t, err)
	assert.Equal(t, "It is cloudy in London.", res.Answer)
	assert.Equal(t, 1, res.ToolCalls())

	observation := "The weather in London on 2024-05-01 is cloudy with a temperature of 65°F."
	assert.Equal(t, observation, res.Steps[0].Observation)

	expected := []llms.Message{
		userMsg("Weather in London on 2024-05-01?"),
		llms.MessageFromToolCalls(llms.RoleAssistant, llms.ToolCall{
			ID:   "call_1",
			Type: "function",
			FunctionCall: &llms.FunctionCall{
				Name:      "weather_tool",
				Arguments: `{"location": "london", "date": "2024-05-01"}`,
			},
		}),
		llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{
			ToolCallID: "call_1",
			Name:       "weather_tool",
			Content:    observation,
		}),
		assistantMsg("It is cloudy in London."),
	}
	if diff := cmp.Diff(expected, res.Messages); diff != "" {
		t.Errorf("unexpected messages (-want +got):\n%s", diff)
	}

	calls := script.Calls()
	require.Len(t, calls, 2)
	require.Len(t, calls[0].opts.Tools, 3)
	assert.Equal(t, "calculator", calls[0].opts.Tools[0].Function.Name)
	assert.Empty(t, calls[0].opts.StopWords)
	assert.Contains(t, calls[0].messages[0].GetText(), "Available functions: calculator, python_package_info, weather_tool.")
}

func TestNativeFunctionCalling_GeneratedID(t *testing.T) {
	t.Parallel()

	m, _ := newModelWithChoices(t, llms.ProviderAnthropic,
		&llms.ContentChoice{
			Content: "Let me check.",
			ToolCalls: []llms.ToolCall{
				{FunctionCall: &llms.FunctionCall{Name: "python_package_info", Arguments: ""}},
			},
		},
		&llms.ContentChoice{Content: "I need a package name."},
	)
	a, err := agent.New(m, newRegistry(t), agent.Config{Mode: agent.ModeFunction})
	require.NoError(t, err)

	res, err := a.Run(context.Background(), "tell me about a package")
	require.NoError(t, err)
	action := res.Steps[0].Action
	assert.True(t, strings.HasPrefix(action.ToolCallID, "call_"))
	assert.Equal(t, "Let me check.", action.Thought)
	assert.Equal(t, "{}", action.Input)
	assert.False(t, res.Steps[0].Success)
	assert.Contains(t, res.Steps[0].Observation, `"package_name" is required`)

	resp := res.Messages[2].ToolResponses()
	require.Len(t, resp, 1)
	assert.Equal(t, action.ToolCallID, resp[0].ToolCallID)
}

func TestJSONActionFunctionCalling(t *testing.T) {
	t.Parallel()

	m, script := newModel(t, llms.ProviderLocal,
		`{"action": "weather_tool", "action_input": {"location": "Paris", "date": "2024-05-01"}}`,
		`{"final_answer": "It is rainy in Paris."}`)
	a, err := agent.New(m, newRegistry(t), agent.Config{Mode: agent.ModeFunction})
	require.NoError(t, err)
	assert.False(t, a.Client().Native())

	res, err := a.Run(context.Background(), "Weather in Paris?")
	require.NoError(t, err)
	assert.Equal(t, "It is rainy in Paris.", res.Answer)
	assert.Equal(t, "The weather in Paris on 2024-05-01 is rainy with a temperature of 70°F.", res.Steps[0].Observation)

	calls := script.Calls()
	require.Len(t, calls, 2)
	assert.Empty(t, calls[0].opts.Tools)
	assert.Empty(t, calls[0].opts.StopWords)
	sys := calls[0].messages[0].GetText()
	assert.Contains(t, sys, "- weather_tool: ")
	assert.Contains(t, sys, `{"final_answer": "<your answer>"}`)
	assert.Equal(t,
		userMsg("Observation: The weather in Paris on 2024-05-01 is rainy with a temperature of 70°F."),
		calls[1].messages[3])
}

func TestJSONActionFunctionCalling_BracesInAnswer(t *testing.T) {
	t.Parallel()

	answer := "Use pd.DataFrame({'a': [1, 2]}) to build a frame from {1, 2}."
	m, script := newModel(t, llms.ProviderLocal, answer)
	a, err := agent.New(m, newRegistry(t), agent.Config{Mode: agent.ModeFunction})
	require.NoError(t, err)

	res, err := a.Run(context.Background(), "How do I build a DataFrame?")
	require.NoError(t, err)
	assert.Equal(t, agent.StateDone, res.State)
	assert.Equal(t, answer, res.Answer)
	assert.Len(t, script.Calls(), 1)
}

func TestFunctionDefaultBudget(t *testing.T) {
	t.Parallel()

	m, script := newModel(t, llms.ProviderLocal,
		`{"action": "calculator", "action_input": {"operation": "square_root", "a": 16}}`)
	a, err := agent.New(m, newRegistry(t), agent.Config{Mode: agent.ModeFunction})
	require.NoError(t, err)

	res, err := a.Run(context.Background(), "sqrt 16 forever")
	require.Error(t, err)
	assert.True(t, errors.Is(err, agent.ErrBudgetExceeded))
	assert.Equal(t, agent.DefaultFunctionMaxIterations, res.ToolCalls())
	assert.Len(t, script.Calls(), agent.DefaultFunctionMaxIterations)
	assert.Equal(t, "√16 = 4", res.Steps[0].Observation)
}

func TestRetainHistory(t *testing.T) {
	t.Parallel()

	m, script := newModel(t, llms.ProviderLocal, "Answer: first", "Answer: second")
	st := store.NewMemoryStore()
	a, err := agent.New(m, newRegistry(t), agent.Config{RetainHistory: true}, agent.WithStore(st))
	require.NoError(t, err)

	ctx := chatmodel.WithChatContext(context.Background(), chatmodel.NewChatContext("session-1", nil))

	res, err := a.Run(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, "first", res.Answer)

	res, err = a.Run(ctx, "q2")
	require.NoError(t, err)
	assert.Equal(t, "second", res.Answer)
	assert.Equal(t, []llms.Message{userMsg("q2"), assistantMsg("Answer: second")}, res.Messages)

	calls := script.Calls()
	require.Len(t, calls, 2)
	expected := []llms.Message{
		userMsg("q1"),
		assistantMsg("first"),
		userMsg("q2"),
	}
	if diff := cmp.Diff(expected, calls[1].messages[1:]); diff != "" {
		t.Errorf("unexpected messages (-want +got):\n%s", diff)
	}
	assert.Len(t, st.Messages(ctx), 4)

	// without a session the history is not retained, the query still succeeds
	res, err = a.Run(context.Background(), "q3")
	require.NoError(t, err)
	assert.Equal(t, "second", res.Answer)
}

func TestNoRetainHistory(t *testing.T) {
	t.Parallel()

	m, script := newModel(t, llms.ProviderLocal, "Answer: first")
	st := store.NewMemoryStore()
	a, err := agent.New(m, newRegistry(t), agent.Config{}, agent.WithStore(st))
	require.NoError(t, err)

	ctx := chatmodel.WithChatContext(context.Background(), chatmodel.NewChatContext("session-2", nil))
	_, err = a.Run(ctx, "q1")
	require.NoError(t, err)
	_, err = a.Run(ctx, "q2")
	require.NoError(t, err)

	calls := script.Calls()
	require.Len(t, calls, 2)
	assert.Len(t, calls[1].messages, 2)
	assert.Empty(t, st.Messages(ctx))
}

func TestCallbackEvents(t *testing.T) {
	t.Parallel()

	m, _ := newModel(t, llms.ProviderLocal, addAction, answerAction)
	cb := &recorder{}
	a, err := agent.New(m, newRegistry(t), agent.Config{}, agent.WithCallback(cb))
	require.NoError(t, err)

	_, err = a.Run(context.Background(), "2+3")
	require.NoError(t, err)

	expected := []string{
		"agent_start:2+3",
		"state:Start->Thinking",
		"llm_start:2",
		"llm_end:calculator",
		"state:Thinking->ToolDispatch",
		"tool_start:calculator",
		"tool_end:calculator:2 + 3 = 5",
		"state:ToolDispatch->Thinking",
		"llm_start:4",
		"llm_end:",
		"state:Thinking->Done",
		"agent_end:2 + 3 = 5",
	}
	assert.Equal(t, expected, cb.Events())
}

// recorder is a Callback that records the events
type recorder struct {
	lock   sync.Mutex
	events []string
}

var _ agent.Callback = (*recorder)(nil)

func (r *recorder) add(format string, args ...any) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) Events() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return slices.Clone(r.events)
}

func (r *recorder) count(event string) int {
	var n int
	for _, e := range r.Events() {
		if e == event {
			n++
		}
	}
	return n
}

func (r *recorder) OnAgentStart(_ context.Context, _ string, query string) {
	r.add("agent_start:%s", query)
}

func (r *recorder) OnAgentEnd(_ context.Context, _ string, res *agent.Result) {
	r.add("agent_end:%s", res.Answer)
}

func (r *recorder) OnAgentError(_ context.Context, _ string, _ string, _ error) {
	r.add("agent_error")
}

func (r *recorder) OnStateChange(_ context.Context, _ string, from, to agent.State) {
	r.add("state:%s->%s", from, to)
}

func (r *recorder) OnLLMCallStart(_ context.Context, _ string, messages []llms.Message) {
	r.add("llm_start:%d", len(messages))
}

func (r *recorder) OnLLMCallEnd(_ context.Context, _ string, action *agent.Action) {
	r.add("llm_end:%s", action.Tool)
}

func (r *recorder) OnProtocolError(_ context.Context, _ string, _ *agent.ProtocolError) {
	r.add("protocol_error")
}

func (r *recorder) OnToolStart(_ context.Context, tool string, _ string) {
	r.add("tool_start:%s", tool)
}

func (r *recorder) OnToolEnd(_ context.Context, tool string, _ string, output string) {
	r.add("tool_end:%s:%s", tool, output)
}

func (r *recorder) OnToolError(_ context.Context, tool string, _ string, _ error) {
	r.add("tool_error:%s", tool)
}

func (r *recorder) OnToolNotFound(_ context.Context, tool string) {
	r.add("tool_not_found:%s", tool)
}
