package tools

import (
	"context"

	"github.com/invopop/jsonschema"
)

//go:generate mockgen -destination=../mocks/mocktools/tools_mock.gen.go -package mocktools github.com/effective-security/toolagent/tools ITool,Callback

// ITool is a tool for the llm agent to interact with different applications.
type ITool interface {
	// Name returns the name of the Tool.
	Name() string
	// Description returns the description of the tool, to be used in the prompt.
	// Should not exceed LLM model limit.
	Description() string
	// Parameters returns the JSON schema of the tool arguments, to be used in the prompt.
	Parameters() *jsonschema.Schema

	// Call executes the tool with the given JSON input and returns the result.
	// If the tool fails to parse the input, it should return ErrValidation error.
	Call(context.Context, string) (string, error)
}

// Callback receives tool events
type Callback interface {
	OnToolStart(ctx context.Context, tool string, input string)
	OnToolEnd(ctx context.Context, tool string, input string, output string)
	OnToolError(ctx context.Context, tool string, input string, err error)
	OnToolNotFound(ctx context.Context, tool string)
}

type Tool[I any] interface {
	ITool
	Run(context.Context, *I) (string, error)
}
