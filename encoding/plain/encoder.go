package plain

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

type Stringer interface {
	String() string
}

type Unmarshaler interface {
	Unmarshal(bs []byte) error
}

// Encoder renders values as text
type Encoder struct{}

func NewEncoder() *Encoder {
	return new(Encoder)
}

func (e *Encoder) Marshal(v any) ([]byte, error) {
	switch s := v.(type) {
	case Stringer:
		return []byte(s.String()), nil
	case string:
		return []byte(s), nil
	case []byte:
		return s, nil
	case *string:
		return []byte(*s), nil
	}
	return []byte(fmt.Sprintf("%v", v)), nil
}

func (e *Encoder) Unmarshal(bs []byte, ret any) error {
	switch s := ret.(type) {
	case Unmarshaler:
		return s.Unmarshal(bs)
	case *string:
		*s = strings.TrimSpace(string(bs))
	case *[]byte:
		*s = bs
	default:
		return errors.Newf("plain: unsupported target type %T", ret)
	}
	return nil
}
