package toml

import (
	"github.com/BurntSushi/toml"
	"github.com/effective-security/toolagent/pkg/llmutils"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type Encoder struct{}

func NewEncoder() *Encoder {
	return &Encoder{}
}

func (e *Encoder) Marshal(v any) ([]byte, error) {
	return toml.Marshal(v)
}

func (e *Encoder) Unmarshal(bs []byte, ret any) error {
	data := llmutils.BytesTrimBackticks(bs)
	return toml.Unmarshal(data, ret)
}

func (e *Encoder) Validate(req any) error {
	return validate.Struct(req)
}
