package agent

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/toolagent/pkg/metricskey"
	"github.com/effective-security/toolagent/store"
	"github.com/effective-security/toolagent/tools"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
)

// Agent answers queries by alternating model calls and tool invocations
type Agent struct {
	client   *Client
	registry *tools.Registry
	cfg      Config
	name     string
	timeout  time.Duration
	callback Callback
	store    store.MessageStore
}

// New returns the agent for the model and the tools
func New(llm llms.Model, registry *tools.Registry, cfg Config, opts ...Option) (*Agent, error) {
	if llm == nil {
		return nil, errors.New("model is required")
	}
	if registry == nil {
		return nil, errors.New("tool registry is required")
	}

	mode, err := ParseMode(string(cfg.Mode))
	if err != nil {
		return nil, err
	}
	cfg.Mode = mode
	if cfg.MaxIterations < 0 {
		return nil, errors.Newf("invalid max iterations: %d", cfg.MaxIterations)
	}
	timeout, err := cfg.GetQueryTimeout()
	if err != nil {
		return nil, err
	}

	a := &Agent{
		client:   NewClient(llm, &cfg),
		registry: registry,
		cfg:      cfg,
		name:     mode.AgentName(),
		timeout:  timeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Name returns the name of the agent
func (a *Agent) Name() string {
	return a.name
}

// Config returns the effective configuration
func (a *Agent) Config() Config {
	return a.cfg
}

// Client returns the model client
func (a *Agent) Client() *Client {
	return a.client
}

// Query returns the answer, or the error description.
// It never fails.
func (a *Agent) Query(ctx context.Context, query string) string {
	res, err := a.Run(ctx, query)
	if err != nil {
		return "An error occurred: " + err.Error()
	}
	return res.Answer
}

// Run processes the query within the query timeout.
// The returned Result is never nil, on failure its State is StateFailed.
func (a *Agent) Run(ctx context.Context, query string) (*Result, error) {
	started := time.Now()
	agentName := a.name

	if a.callback != nil {
		a.callback.OnAgentStart(ctx, agentName, query)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		r := &Result{Agent: agentName, Query: query, State: StateStart}
		err := a.loop(ctx, r)
		done <- outcome{res: r, err: err}
	}()

	var res *Result
	var err error
	select {
	case o := <-done:
		res, err = o.res, o.err
	case <-ctx.Done():
		// the loop is abandoned, it stops on the next context check
		res = &Result{Agent: agentName, Query: query, State: StateFailed}
		err = ctx.Err()
	}

	metricskey.PerfAgentRun.MeasureSince(started, agentName)

	if err == nil {
		metricskey.StatsAgentRunsSucceeded.IncrCounter(1, agentName)
		logger.ContextKV(ctx, xlog.DEBUG,
			"agent", agentName,
			"status", "done",
			"iterations", res.Iterations,
			"tool_calls", res.ToolCalls(),
			"elapsed", time.Since(started).String(),
		)
		if a.callback != nil {
			a.callback.OnAgentEnd(ctx, agentName, res)
		}
		return res, nil
	}

	reason := "error"
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		reason = "timeout"
		err = errors.Mark(errors.Newf("query processing timed out after %s", a.timeout), ErrTimeout)
		res.Messages = nil
		metricskey.StatsAgentRunsTimedOut.IncrCounter(1, agentName)
	case errors.Is(err, ErrBudgetExceeded):
		reason = "budget"
	case errors.Is(err, ErrProtocol):
		reason = "protocol"
	case errors.Is(err, llms.ErrTransport):
		reason = "transport"
	case errors.Is(err, context.Canceled):
		reason = "canceled"
	}

	res.State = StateFailed
	res.Error = err.Error()
	metricskey.StatsAgentRunsFailed.IncrCounter(1, agentName, reason)
	logger.ContextKV(ctx, xlog.ERROR,
		"agent", agentName,
		"reason", reason,
		"query", slices.StringUpto(query, 64),
		"iterations", res.Iterations,
		"err", err.Error(),
	)
	if a.callback != nil {
		a.callback.OnAgentError(ctx, agentName, query, err)
	}
	return res, err
}

func (a *Agent) transition(ctx context.Context, r *Result, to State) {
	from := r.State
	r.State = to
	if a.callback != nil {
		a.callback.OnStateChange(ctx, a.name, from, to)
	}
}

// loop runs the state machine until Done or Failed.
// It updates r as it goes, and returns the error of the Failed state.
func (a *Agent) loop(ctx context.Context, r *Result) error {
	specs := a.registry.Specs()
	defs := a.registry.Schemas()
	names := a.registry.Names()
	maxIterations := a.cfg.GetMaxIterations()

	// Start
	system, err := a.client.SystemPrompt(specs)
	if err != nil {
		a.transition(ctx, r, StateFailed)
		return err
	}

	history := []llms.Message{system}
	if a.cfg.RetainHistory && a.store != nil {
		history = append(history, a.store.Messages(ctx)...)
	}
	first := len(history)
	userQuery := llms.MessageFromTextParts(llms.RoleUser, r.Query)
	history = append(history, userQuery)

	defer func() {
		r.Messages = append([]llms.Message(nil), history[first:]...)
	}()

	protocolErrors := 0
	for {
		// Thinking
		r.Iterations++
		a.transition(ctx, r, StateThinking)
		if r.Iterations > maxIterations {
			r.Iterations = maxIterations
			a.transition(ctx, r, StateFailed)
			return errors.Mark(
				errors.Newf("iteration budget exceeded: no answer after %d iterations", maxIterations),
				ErrBudgetExceeded)
		}
		metricskey.StatsAgentIterations.IncrCounter(1, a.name)

		if err = ctx.Err(); err != nil {
			a.transition(ctx, r, StateFailed)
			return errors.WithStack(err)
		}

		if a.callback != nil {
			a.callback.OnLLMCallStart(ctx, a.name, history)
		}
		action, err := a.client.Complete(ctx, history, defs)
		if ctx.Err() != nil {
			// the response came after the deadline or the cancellation
			a.transition(ctx, r, StateFailed)
			return errors.WithStack(ctx.Err())
		}
		if err != nil {
			var perr *ProtocolError
			if !errors.As(err, &perr) {
				a.transition(ctx, r, StateFailed)
				return err
			}

			protocolErrors++
			metricskey.StatsAgentProtocolErrors.IncrCounter(1, a.name)
			r.Steps = append(r.Steps, &Step{Iteration: r.Iterations, Error: perr.Error()})
			if a.callback != nil {
				a.callback.OnProtocolError(ctx, a.name, perr)
			}

			if protocolErrors > 1 {
				if a.cfg.DegradeOnProtocolError && strings.TrimSpace(perr.Raw) != "" {
					r.Answer = strings.TrimSpace(perr.Raw)
					history = append(history, llms.MessageFromTextParts(llms.RoleAssistant, r.Answer))
					return a.done(ctx, r, userQuery)
				}
				a.transition(ctx, r, StateFailed)
				return errors.WithMessage(err, "model response could not be parsed after retry")
			}

			recovery, rerr := a.client.Recover(perr, names)
			if rerr != nil {
				a.transition(ctx, r, StateFailed)
				return rerr
			}
			history = append(history, recovery...)
			continue
		}
		protocolErrors = 0

		if a.callback != nil {
			a.callback.OnLLMCallEnd(ctx, a.name, action)
		}
		history = append(history, action.Message())

		if action.IsFinal() {
			r.Answer = action.Answer
			r.Steps = append(r.Steps, &Step{Iteration: r.Iterations, Action: action, Success: true})
			return a.done(ctx, r, userQuery)
		}

		// ToolDispatch
		a.transition(ctx, r, StateToolDispatch)
		result := a.dispatch(ctx, action)
		r.Steps = append(r.Steps, &Step{
			Iteration:   r.Iterations,
			Action:      action,
			Observation: result.Observation(),
			Success:     result.Success,
		})
		history = append(history, a.client.Observation(action, result))
	}
}

// done moves r to Done and retains the query and the answer.
// The state of a query that ran past its deadline is discarded.
func (a *Agent) done(ctx context.Context, r *Result, userQuery llms.Message) error {
	if err := ctx.Err(); err != nil {
		a.transition(ctx, r, StateFailed)
		return errors.WithStack(err)
	}
	a.transition(ctx, r, StateDone)

	if a.cfg.RetainHistory && a.store != nil {
		// only the query and the answer are kept for the next queries
		err := a.store.Add(ctx, userQuery, llms.MessageFromTextParts(llms.RoleAssistant, r.Answer))
		if err != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"agent", a.name,
				"reason", "retain_history",
				"err", err.Error(),
			)
		}
	}
	return nil
}

func (a *Agent) dispatch(ctx context.Context, action *Action) *tools.ToolResult {
	if a.callback != nil {
		a.callback.OnToolStart(ctx, action.Tool, action.Input)
	}

	result := a.registry.InvokeJSON(ctx, action.Tool, action.Input)

	logger.ContextKV(ctx, xlog.DEBUG,
		"agent", a.name,
		"status", "tool_called",
		"tool", action.Tool,
		"success", result.Success,
	)

	if a.callback != nil {
		switch {
		case result.Success:
			a.callback.OnToolEnd(ctx, action.Tool, action.Input, result.Output)
		case errors.Is(result.Err, tools.ErrUnknownTool):
			a.callback.OnToolNotFound(ctx, action.Tool)
		default:
			a.callback.OnToolError(ctx, action.Tool, action.Input, result.Err)
		}
	}
	return result
}
