package agent

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrProtocol is returned when the model response can not be parsed
	ErrProtocol = errors.New("protocol error")
	// ErrBudgetExceeded is returned when the iteration budget is exhausted
	ErrBudgetExceeded = errors.New("iteration budget exceeded")
	// ErrTimeout is returned when the query processing exceeded the timeout
	ErrTimeout = errors.New("query timeout")
)

// ProtocolError is returned when the model response does not follow
// the expected format
type ProtocolError struct {
	// Raw is the response text as received from the model
	Raw    string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("unable to parse model response: %s", e.Reason)
}

// Unwrap allows errors.Is(err, ErrProtocol)
func (e *ProtocolError) Unwrap() error {
	return ErrProtocol
}

func protocolError(raw, format string, args ...any) *ProtocolError {
	return &ProtocolError{
		Raw:    raw,
		Reason: fmt.Sprintf(format, args...),
	}
}
