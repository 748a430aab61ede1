package agent

// State is the state of the agent loop
type State int

const (
	StateStart State = iota
	StateThinking
	StateToolDispatch
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateStart:        "Start",
	StateThinking:     "Thinking",
	StateToolDispatch: "ToolDispatch",
	StateDone:         "Done",
	StateFailed:       "Failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

// IsTerminal returns true for Done and Failed
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

// MarshalText implements encoding.TextMarshaler
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
