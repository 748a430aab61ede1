package tools

import (
	"context"
	"reflect"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/encoding"
	"github.com/effective-security/toolagent/pkg/schema"
	"github.com/invopop/jsonschema"
)

// RunFunc is the implementation of a typed tool
type RunFunc[I any] func(ctx context.Context, input *I) (string, error)

// Func is a tool with the parameters schema reflected from the input type I
type Func[I any] struct {
	name        string
	description string
	params      *jsonschema.Schema
	parser      *encoding.TypedOutputParser[I]
	run         RunFunc[I]
}

var _ Tool[struct{}] = (*Func[struct{}])(nil)

// NewFunc returns a new typed tool.
// The input type I must be a struct, `jsonschema` tags describe the parameters
// and `validate` tags are checked before run.
func NewFunc[I any](name, description string, run RunFunc[I]) (*Func[I], error) {
	if name == "" {
		return nil, errors.New("tool name is empty")
	}
	if run == nil {
		return nil, errors.Newf("tool %q has no implementation", name)
	}

	var zero I
	sc, err := schema.New(reflect.TypeOf(zero))
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to create schema for tool %q", name)
	}
	parser, err := encoding.NewTypedOutputParser[I](encoding.ModeJSON)
	if err != nil {
		return nil, err
	}

	return &Func[I]{
		name:        name,
		description: description,
		params:      sc.Parameters,
		parser:      parser.WithValidation(true),
		run:         run,
	}, nil
}

// MustFunc returns a new typed tool, or panics on error
func MustFunc[I any](name, description string, run RunFunc[I]) *Func[I] {
	f, err := NewFunc(name, description, run)
	if err != nil {
		panic(err)
	}
	return f
}

func (f *Func[I]) Name() string {
	return f.name
}

func (f *Func[I]) Description() string {
	return f.description
}

func (f *Func[I]) Parameters() *jsonschema.Schema {
	return f.params
}

func (f *Func[I]) Run(ctx context.Context, input *I) (string, error) {
	return f.run(ctx, input)
}

func (f *Func[I]) Call(ctx context.Context, input string) (string, error) {
	if input == "" {
		input = "{}"
	}
	req, err := f.parser.Parse(input)
	if err != nil {
		return "", errors.Mark(errors.WithMessagef(err, "invalid input for tool %q", f.name), ErrValidation)
	}
	return f.Run(ctx, req)
}
