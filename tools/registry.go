package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/toolagent/pkg/llmutils"
	"github.com/effective-security/toolagent/pkg/metricskey"
	"github.com/effective-security/toolagent/pkg/schema"
	"github.com/effective-security/xlog"
	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolagent", "tools")

var (
	// ErrDuplicateTool is returned when a tool with the same name is already registered
	ErrDuplicateTool = errors.New("duplicate tool")
	// ErrUnknownTool is returned when a tool is not registered
	ErrUnknownTool = errors.New("unknown tool")
	// ErrValidation is returned when tool arguments are invalid
	ErrValidation = errors.New("validation error")
)

// Spec describes a registered tool
type Spec struct {
	Name        string
	Description string
	// Params are the top level parameters in declaration order
	Params []schema.Property
	Schema *jsonschema.Schema
}

// ArgsJSON returns the parameters schema as JSON
func (s *Spec) ArgsJSON() string {
	if s.Schema == nil {
		return "{}"
	}
	return llmutils.ToJSON(s.Schema)
}

type entry struct {
	tool ITool
	spec *Spec
}

// Registry is a set of named tools, immutable after registration
type Registry struct {
	lock  sync.RWMutex
	tools *orderedmap.OrderedMap[string, *entry]
}

// NewRegistry returns a registry with the tools
func NewRegistry(list ...ITool) (*Registry, error) {
	r := &Registry{
		tools: orderedmap.New[string, *entry](),
	}
	for _, t := range list {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register adds the tool, the name is case-insensitive
func (r *Registry) Register(t ITool) error {
	if t == nil {
		return errors.New("tool is nil")
	}
	name := t.Name()
	if strings.TrimSpace(name) == "" {
		return errors.New("tool name is empty")
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	k := key(name)
	if _, ok := r.tools.Get(k); ok {
		return errors.WithMessagef(ErrDuplicateTool, "%q", name)
	}

	params := t.Parameters()
	r.tools.Set(k, &entry{
		tool: t,
		spec: &Spec{
			Name:        name,
			Description: t.Description(),
			Params:      schema.Properties(params),
			Schema:      params,
		},
	})
	return nil
}

func (r *Registry) get(name string) (*entry, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	e, ok := r.tools.Get(key(name))
	if !ok {
		return nil, errors.Mark(
			errors.Newf("unknown tool %q, available tools: %s", name, strings.Join(r.names(), ", ")),
			ErrUnknownTool)
	}
	return e, nil
}

// Lookup returns the tool spec, or ErrUnknownTool
func (r *Registry) Lookup(name string) (*Spec, error) {
	e, err := r.get(name)
	if err != nil {
		return nil, err
	}
	return e.spec, nil
}

// Tool returns the registered tool, or ErrUnknownTool
func (r *Registry) Tool(name string) (ITool, error) {
	e, err := r.get(name)
	if err != nil {
		return nil, err
	}
	return e.tool, nil
}

func (r *Registry) names() []string {
	names := make([]string, 0, r.tools.Len())
	for pair := r.tools.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Value.spec.Name)
	}
	return names
}

// Names returns the tool names in the registration order
func (r *Registry) Names() []string {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.names()
}

// Len returns the number of tools
func (r *Registry) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.tools.Len()
}

// Specs returns the tool specs in the registration order
func (r *Registry) Specs() []*Spec {
	r.lock.RLock()
	defer r.lock.RUnlock()

	specs := make([]*Spec, 0, r.tools.Len())
	for pair := r.tools.Oldest(); pair != nil; pair = pair.Next() {
		specs = append(specs, pair.Value.spec)
	}
	return specs
}

// Schemas returns the tool definitions for the model
func (r *Registry) Schemas() []llms.Tool {
	specs := r.Specs()
	res := make([]llms.Tool, 0, len(specs))
	for _, s := range specs {
		res = append(res, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Schema,
			},
		})
	}
	return res
}

// InvokeJSON decodes the JSON arguments and invokes the tool
func (r *Registry) InvokeJSON(ctx context.Context, name string, raw string) *ToolResult {
	args := map[string]any{}
	raw = strings.TrimSpace(raw)
	if raw != "" && raw != "null" {
		if err := json.Unmarshal(llmutils.CleanJSON([]byte(raw)), &args); err != nil {
			spec, lerr := r.Lookup(name)
			if lerr != nil {
				return r.Invoke(ctx, name, nil)
			}
			return failed(spec.Name, &ValidationError{
				Tool:   spec.Name,
				Reason: "arguments must be a JSON object",
			})
		}
	}
	return r.Invoke(ctx, name, args)
}

// Invoke validates the arguments and runs the tool.
// It never panics, failures are returned as ToolResult with Success=false.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) *ToolResult {
	e, err := r.get(name)
	if err != nil {
		metricskey.StatsToolCallsNotFound.IncrCounter(1, name)
		logger.ContextKV(ctx, xlog.WARNING, "reason", "not_found", "tool", name)
		return failed(name, err)
	}
	spec := e.spec

	validArgs, err := ValidateArgs(spec.Name, spec.Params, args)
	if err != nil {
		metricskey.StatsToolCallsFailed.IncrCounter(1, spec.Name)
		logger.ContextKV(ctx, xlog.DEBUG, "reason", "validation", "tool", spec.Name, "err", err.Error())
		return failed(spec.Name, err)
	}

	input := llmutils.ToJSON(validArgs)

	started := time.Now()
	output, err := call(ctx, e.tool, input)
	metricskey.PerfToolCall.MeasureSince(started, spec.Name)

	if err != nil {
		metricskey.StatsToolCallsFailed.IncrCounter(1, spec.Name)
		logger.ContextKV(ctx, xlog.DEBUG, "reason", "call", "tool", spec.Name, "err", err.Error())
		return failed(spec.Name, err)
	}

	metricskey.StatsToolCallsSucceeded.IncrCounter(1, spec.Name)
	return &ToolResult{
		Tool:    spec.Name,
		Output:  output,
		Success: true,
	}
}

func call(ctx context.Context, t ITool, input string) (output string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.ContextKV(ctx, xlog.ERROR,
				"reason", "panic",
				"tool", t.Name(),
				"panic", rec,
				"stack", string(debug.Stack()))
			err = errors.Newf("tool %q failed: %s", t.Name(), fmt.Sprint(rec))
		}
	}()
	return t.Call(ctx, input)
}
