// Package agent implements the tool using control loop.
//
// The loop is an explicit state machine:
//
//	Start -> Thinking -> (ToolDispatch -> Thinking)* -> Done | Failed
//
// ReAct and function calling are two configurations of the same machine,
// they differ in the system prompt, the response protocol and the default
// iteration budget.
package agent

import "github.com/effective-security/xlog"

var logger = xlog.NewPackageLogger("github.com/effective-security/toolagent", "agent")
