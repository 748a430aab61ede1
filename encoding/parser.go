package encoding

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// TypedOutputParser parses model output into Go structs.
type TypedOutputParser[T any] struct {
	enc      Encoder
	name     string
	validate bool
}

// NewTypedOutputParser creates an output parser that decodes text into T
// with the encoder of the mode.
func NewTypedOutputParser[T any](mode Mode) (*TypedOutputParser[T], error) {
	enc, err := NewEncoder(mode)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create encoder")
	}

	var zero T
	return &TypedOutputParser[T]{
		enc:  enc,
		name: fmt.Sprintf("%T parser", zero),
	}, nil
}

// WithValidation enables validation of the parsed value by `validate` tags
func (p *TypedOutputParser[T]) WithValidation(validate bool) *TypedOutputParser[T] {
	p.validate = validate
	return p
}

// Parse parses the output of an LLM call.
func (p *TypedOutputParser[T]) Parse(text string) (*T, error) {
	var target T
	if err := p.enc.Unmarshal([]byte(text), &target); err != nil {
		return nil, errors.Wrap(err, "failed to decode")
	}
	if validator, ok := p.enc.(Validator); ok && p.validate {
		if err := validator.Validate(target); err != nil {
			return nil, errors.Wrap(err, "failed to validate")
		}
	}
	return &target, nil
}

// Type returns the string type key uniquely identifying this class of parser
func (p *TypedOutputParser[T]) Type() string {
	return p.name
}
