// Package tools defines the Tool interface for LLM agents and the Registry
// that validates tool arguments against the parameter schema before dispatch.
// Tool failures, including panics, are reported as failed ToolResults.
package tools
