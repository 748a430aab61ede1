package json

import (
	"encoding/json"

	"github.com/bububa/ljson"
	"github.com/effective-security/toolagent/pkg/llmutils"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type Encoder struct {
	indent bool
}

func NewEncoder() *Encoder {
	return &Encoder{indent: true}
}

// WithIndent sets indentation of the marshaled output
func (e *Encoder) WithIndent(indent bool) *Encoder {
	e.indent = indent
	return e
}

func (e *Encoder) Marshal(v any) ([]byte, error) {
	if e.indent {
		return json.MarshalIndent(v, "", "\t")
	}
	return json.Marshal(v)
}

// Unmarshal decodes JSON leniently: surrounding text and code fences are removed,
// and numbers or booleans sent as strings are accepted.
func (e *Encoder) Unmarshal(bs []byte, ret any) error {
	data := llmutils.CleanJSON(bs)
	return ljson.Unmarshal(data, ret)
}

func (e *Encoder) Validate(req any) error {
	return validate.Struct(req)
}
