package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/agent"
	"github.com/effective-security/toolagent/callbacks"
	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/config"
	"github.com/effective-security/toolagent/encoding"
	"github.com/effective-security/toolagent/knowledgebase"
	"github.com/effective-security/toolagent/pkg/llmfactory"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/toolagent/store"
	"github.com/effective-security/toolagent/tools"
	"github.com/effective-security/toolagent/tools/calculator"
	"github.com/effective-security/toolagent/tools/pkginfo"
	"github.com/effective-security/toolagent/tools/weather"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolagent", "cmd")

type appOptions struct {
	// provider is the name or the API type of the LLM provider
	provider     string
	format       string
	forceRebuild bool
	stats        bool

	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

type app struct {
	opts    *appOptions
	agent   *agent.Agent
	kb      *knowledgebase.KnowledgeBase
	stats   *callbacks.Stats
	format  encoding.Mode
	encoder encoding.Encoder
	timeout time.Duration
	chatCtx chatmodel.ChatContext
}

func newApp(ctx context.Context, cfg *config.Config, opts *appOptions) (*app, error) {
	xlog.SetFormatter(xlog.NewStringFormatter(opts.errOut))
	xlog.SetGlobalLogLevel(cfg.Log.GetLevel())

	format, err := encoding.ParseMode(opts.format)
	if err != nil {
		return nil, err
	}
	encoder, err := encoding.NewEncoder(format)
	if err != nil {
		return nil, err
	}
	timeout, err := cfg.Agent.GetQueryTimeout()
	if err != nil {
		return nil, err
	}

	model, err := newModel(cfg, opts.provider)
	if err != nil {
		return nil, err
	}

	kb, err := newKnowledgeBase(&cfg.KnowledgeBase)
	if err != nil {
		return nil, err
	}
	if opts.forceRebuild {
		if err = kb.Initialize(ctx, true); err != nil {
			return nil, errors.WithMessage(err, "failed to build the knowledge base")
		}
	}

	registry, err := newRegistry(kb)
	if err != nil {
		return nil, err
	}

	cb := callbacks.NewFanout(callbacks.NewPackageLogger(logger))
	if cfg.Log.Verbose {
		cb.Add(callbacks.NewPrinter(opts.out, callbacks.ModeVerbose))
	}
	var stats *callbacks.Stats
	if opts.stats {
		mode := callbacks.ModeDefault
		if cfg.Log.Verbose {
			mode = callbacks.ModeVerbose
		}
		stats = callbacks.NewStats(mode)
		cb.Add(stats)
	}

	agentOpts := []agent.Option{agent.WithCallback(cb)}
	if cfg.Agent.RetainHistory {
		st, err := store.New(&cfg.Store)
		if err != nil {
			return nil, err
		}
		agentOpts = append(agentOpts, agent.WithStore(st))
	}

	ag, err := agent.New(model, registry, cfg.Agent, agentOpts...)
	if err != nil {
		return nil, err
	}

	chatCtx := chatmodel.NewChatContext("", nil)
	logger.KV(xlog.INFO,
		"status", "started",
		"agent", ag.Name(),
		"model", model.GetName(),
		"provider", string(model.GetProviderType()),
		"chat_id", chatCtx.GetChatID(),
		"tools", strings.Join(registry.Names(), ","),
	)

	return &app{
		opts:    opts,
		agent:   ag,
		kb:      kb,
		stats:   stats,
		format:  format,
		encoder: encoder,
		timeout: timeout,
		chatCtx: chatCtx,
	}, nil
}

func newModel(cfg *config.Config, provider string) (llms.Model, error) {
	f := llmfactory.New(&cfg.LLM)
	if provider == "" {
		provider = cfg.LLM.DefaultProvider
	}
	if provider == "" {
		return f.DefaultModel()
	}
	return f.ModelByProvider(provider)
}

func newKnowledgeBase(cfg *knowledgebase.Config) (*knowledgebase.KnowledgeBase, error) {
	embed, err := knowledgebase.NewEmbedder(cfg.Embedding)
	if err != nil {
		return nil, err
	}
	docs, err := cfg.Documents()
	if err != nil {
		return nil, err
	}
	return knowledgebase.New(cfg, embed, docs)
}

func newRegistry(kb *knowledgebase.KnowledgeBase) (*tools.Registry, error) {
	weatherTool, err := weather.New()
	if err != nil {
		return nil, err
	}
	return tools.NewRegistry(
		calculator.New(),
		pkginfo.New(),
		weatherTool,
		knowledgebase.NewTool(kb),
	)
}

// RunOnce processes a single query
func (a *app) RunOnce(ctx context.Context, query string) error {
	ctx = chatmodel.WithChatContext(ctx, a.chatCtx)
	_, err := a.process(ctx, query)
	return err
}

// Loop reads the queries from the input until exit or the end of the input
func (a *app) Loop(ctx context.Context) error {
	ctx = chatmodel.WithChatContext(ctx, a.chatCtx)

	fmt.Fprintln(a.opts.out, "Running in iterative mode. Type 'exit' to quit.")
	reader := bufio.NewReader(a.opts.in)
	for {
		fmt.Fprint(a.opts.out, "\nEnter your query: ")
		line, tooLong, err := readLine(reader, maxQuerySize)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return errors.WithMessage(err, "failed to read the query")
		}
		if tooLong {
			fmt.Fprintf(a.opts.out, "Response: An error occurred: the query exceeds %d bytes\n", maxQuerySize)
			continue
		}
		query := strings.TrimSpace(line)
		if query == "" {
			continue
		}
		if isExit(query) {
			fmt.Fprintln(a.opts.out, "Exiting...")
			return nil
		}

		fmt.Fprintln(a.opts.out, "Processing query...")
		timedOut, err := a.process(ctx, query)
		if err != nil {
			return err
		}
		if timedOut {
			fmt.Fprintln(a.opts.out, "Moving on to the next query...")
		}
		if ctx.Err() != nil {
			return errors.WithStack(ctx.Err())
		}
	}
	fmt.Fprintln(a.opts.out)
	return nil
}

// maxQuerySize is the limit of a query line in iterative mode
var maxQuerySize = 1 << 20

// readLine returns the next line of r without the line break.
// The rest of a line longer than limit is discarded and tooLong is set.
// io.EOF is returned only when no more input is available.
func readLine(r *bufio.Reader, limit int) (line string, tooLong bool, err error) {
	var buf []byte
	for {
		chunk, rerr := r.ReadSlice('\n')
		if !tooLong && len(buf)+len(chunk) <= limit+1 {
			buf = append(buf, chunk...)
		} else {
			tooLong = true
			buf = nil
		}

		switch {
		case errors.Is(rerr, bufio.ErrBufferFull):
			continue
		case errors.Is(rerr, io.EOF):
			if len(buf) == 0 && !tooLong {
				return "", false, io.EOF
			}
		case rerr != nil:
			return "", false, errors.WithStack(rerr)
		}

		line = strings.TrimRight(string(buf), "\r\n")
		if len(line) > limit {
			return "", true, nil
		}
		return line, tooLong, nil
	}
}

func isExit(query string) bool {
	switch strings.ToLower(query) {
	case "exit", "quit", "bye":
		return true
	}
	return false
}

// process runs the query and prints the response.
// The failures of the query are printed as the response,
// only the output errors are returned.
func (a *app) process(ctx context.Context, query string) (timedOut bool, err error) {
	if a.stats != nil {
		a.stats.StartRun(ctx)
		defer func() {
			if _, trace := a.stats.EndRun(ctx); len(trace) > 0 {
				_, _ = a.opts.errOut.Write(trace)
			}
		}()
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "query",
		"chat_id", a.chatCtx.GetChatID(),
		"number", a.chatCtx.NextQuery(),
	)

	res, runErr := a.agent.Run(ctx, query)
	if errors.Is(runErr, agent.ErrTimeout) {
		fmt.Fprintf(a.opts.out, "Query processing timed out after %d seconds\n", int(a.timeout.Seconds()))
		return true, nil
	}

	if a.format != encoding.ModePlainText {
		bs, encErr := a.encoder.Marshal(res)
		if encErr != nil {
			return false, errors.WithMessage(encErr, "failed to encode the result")
		}
		_, err = a.opts.out.Write(bs)
		if err == nil && !strings.HasSuffix(string(bs), "\n") {
			_, err = fmt.Fprintln(a.opts.out)
		}
		return false, errors.WithStack(err)
	}

	response := res.Answer
	if runErr != nil {
		response = "An error occurred: " + runErr.Error()
	}
	_, err = fmt.Fprintf(a.opts.out, "Response: %s\n", response)
	return false, errors.WithStack(err)
}
