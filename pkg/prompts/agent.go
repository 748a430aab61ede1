package prompts

// ToolDescription is a tool as presented to the model in a system prompt
type ToolDescription struct {
	Name        string
	Description string
	// Args is the JSON schema of the tool parameters
	Args string
}

// Input variables of the agent prompts
const (
	VarTools     = "tools"
	VarToolNames = "tool_names"
	VarReason    = "reason"
	VarQuery     = "query"
)

// ReActSystemPrompt instructs the model to use the Thought/Action/Answer text protocol
var ReActSystemPrompt = NewPromptTemplate(`You are designed to help with a variety of tasks, from answering questions to providing summaries and other types of analyses.

## Tools

You have access to the tools below. You decide which tools to use, in which order, to complete the task.
A task may need to be split into steps, using a different tool at each step.

{{ range .tools -}}
> Tool Name: {{ .Name }}
Tool Description: {{ .Description }}
Tool Args: {{ .Args }}

{{ end -}}
## Output Format

Answer in the same language as the question, and use the following format:

Thought: I need to use a tool to help me answer the question.
Action: tool name (one of {{ .tool_names | join ", " }}) if using a tool.
Action Input: the input to the tool as a JSON object, e.g. {"input": "hello world", "num_beams": 5}

ALWAYS start with a Thought.
NEVER surround your response with markdown code markers.
Action Input MUST be valid JSON. Do NOT write {'input': 'hello world'}.

When a tool is used, the user will respond with:

Observation: tool response

Repeat the format above until you have enough information to answer without using more tools.
Then respond in one of the following two formats:

Thought: I can answer without using any more tools.
Answer: [your answer here]

Thought: I cannot answer the question with the provided tools.
Answer: [your answer here]
`, []string{VarTools, VarToolNames})

// ReActFormatReminder is sent after a response that could not be parsed
var ReActFormatReminder = NewPromptTemplate(`Your previous response could not be parsed: {{ .reason }}.
Respond again using exactly one of the formats:

Thought: ...
Action: one of {{ .tool_names | join ", " }}
Action Input: {"arg": "value"}

or

Thought: ...
Answer: ...`, []string{VarReason, VarToolNames})

// FunctionSystemPrompt instructs the model to reply with a JSON action,
// used with endpoints that have no native tool calling
var FunctionSystemPrompt = NewPromptTemplate(`You are a helpful assistant that answers questions by calling functions.

Available functions:
{{ range .tools -}}
- {{ .Name }}: {{ .Description }}
  parameters: {{ .Args }}
{{ end }}
To call a function, reply with a single JSON object and nothing else:
{"action": "<function name>", "action_input": {<arguments>}}

Function results are returned to you as "Observation: <result>".
Call one function at a time. When you know the answer, reply with:
{"final_answer": "<your answer>"}
`, []string{VarTools})

// FunctionFormatReminder is sent after a JSON action that could not be parsed
var FunctionFormatReminder = NewPromptTemplate(`Your previous response could not be parsed: {{ .reason }}.
Reply with a single JSON object, either {"action": "<one of {{ .tool_names | join ", " }}>", "action_input": {...}} or {"final_answer": "..."}.`,
	[]string{VarReason, VarToolNames})

// NativeSystemPrompt is used with models that support native tool calling
var NativeSystemPrompt = NewPromptTemplate(`You are a helpful assistant.
Use the provided functions when they help to answer the question, one function at a time.
{{- if .tools }}
Available functions: {{ .tool_names | join ", " }}.
{{- end }}
When you have enough information, answer the question directly.
`, []string{VarTools, VarToolNames})

// UserQuery is the first user message of a run
var UserQuery = NewUserMessagePromptTemplate(`{{ .query }}`, []string{VarQuery})

// NativeFormatReminder is sent after an empty response in native tool calling
var NativeFormatReminder = NewPromptTemplate(`Your previous response could not be used: {{ .reason }}.
Answer the question, or call one of the functions: {{ .tool_names | join ", " }}.`,
	[]string{VarReason, VarToolNames})
