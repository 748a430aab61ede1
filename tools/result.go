package tools

// ToolResult is the outcome of a tool invocation
type ToolResult struct {
	// Tool is the name of the invoked tool
	Tool string `json:"tool"`
	// Output is the tool output on success, or a human readable error message
	Output  string `json:"output"`
	Success bool   `json:"success"`
	// Err is the failure cause, nil on success
	Err error `json:"-"`
}

// Observation returns the text given back to the model
func (r *ToolResult) Observation() string {
	if r.Success {
		return r.Output
	}
	return "Error: " + r.Output
}

func (r *ToolResult) String() string {
	return r.Observation()
}

func failed(tool string, err error) *ToolResult {
	return &ToolResult{
		Tool:    tool,
		Output:  err.Error(),
		Success: false,
		Err:     err,
	}
}
