package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/effective-security/toolagent/agent"
	"github.com/effective-security/toolagent/config"
	"github.com/effective-security/toolagent/pkg/llmutils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of the environment variables overriding the flags
const EnvPrefix = "TOOLAGENT"

// flags bound to viper keys
const (
	flagConfig        = "config"
	flagAgent         = "agent"
	flagQuery         = "query"
	flagLLM           = "llm"
	flagFormat        = "format"
	flagForceRebuild  = "force-rebuild"
	flagMaxIterations = "max-iterations"
	flagTimeout       = "timeout"
	flagRetainHistory = "retain-history"
	flagVerbose       = "verbose"
	flagStats         = "stats"
	flagLogLevel      = "log-level"

	flagPrintConfig       = "print-config"
	flagPrintConfigSchema = "print-config-schema"
)

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "toolagent",
		Short: "Answer queries with an LLM agent and tools",
		Long: `toolagent answers queries with an LLM agent using the calculator,
python_package_info, weather_tool and ai_knowledge_base tools.

Without --query it runs in iterative mode, reading queries from the input.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if v.GetBool(flagPrintConfigSchema) {
				_, err := fmt.Fprintln(out, llmutils.ToJSONIndent(config.Schema()))
				return err
			}

			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			if v.GetBool(flagPrintConfig) {
				_, err = fmt.Fprint(out, llmutils.ToYAML(cfg.Redacted()))
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, &appOptions{
				provider:     v.GetString(flagLLM),
				format:       v.GetString(flagFormat),
				forceRebuild: v.GetBool(flagForceRebuild),
				stats:        v.GetBool(flagStats),
				in:           in,
				out:          out,
				errOut:       errOut,
			})
			if err != nil {
				return err
			}

			if query := v.GetString(flagQuery); query != "" {
				return a.RunOnce(ctx, query)
			}
			return a.Loop(ctx)
		},
	}
	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	f := cmd.Flags()
	f.StringP(flagConfig, "c", "", "configuration file, YAML or JSON")
	f.StringP(flagAgent, "a", "", "agent type: react or function")
	f.StringP(flagQuery, "q", "", "query to process, runs in iterative mode if not set")
	f.String(flagLLM, "", "LLM provider: local, openai or anthropic")
	f.StringP(flagFormat, "f", "text", "output format: text, json, yaml or toml")
	f.Bool(flagForceRebuild, false, "rebuild the knowledge base index on start")
	f.Int(flagMaxIterations, 0, "maximum number of reasoning iterations per query")
	f.String(flagTimeout, "", "query timeout, e.g. 60s")
	f.Bool(flagRetainHistory, false, "send the previous queries and answers with the next query")
	f.BoolP(flagVerbose, "v", false, "print the thoughts, actions and observations of the agent")
	f.Bool(flagStats, false, "print the run statistics after each query")
	f.String(flagLogLevel, "", "log level: error, warning, info or debug")
	f.Bool(flagPrintConfig, false, "print the effective configuration as YAML and exit")
	f.Bool(flagPrintConfigSchema, false, "print the JSON schema of the configuration file and exit")

	_ = v.BindPFlags(f)
	return cmd
}

// loadConfig loads the configuration file and applies the flags
// and the environment variables set by the user
func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg, err := config.Load(v.GetString(flagConfig))
	if err != nil {
		return nil, err
	}

	if v.IsSet(flagAgent) {
		mode, err := agent.ParseMode(v.GetString(flagAgent))
		if err != nil {
			return nil, err
		}
		cfg.Agent.Mode = mode
	}
	if v.IsSet(flagMaxIterations) {
		cfg.Agent.MaxIterations = v.GetInt(flagMaxIterations)
	}
	if v.IsSet(flagTimeout) {
		cfg.Agent.QueryTimeout = v.GetString(flagTimeout)
	}
	if v.IsSet(flagRetainHistory) {
		cfg.Agent.RetainHistory = v.GetBool(flagRetainHistory)
	}
	if v.IsSet(flagVerbose) {
		cfg.Log.Verbose = v.GetBool(flagVerbose)
	}
	if v.IsSet(flagLogLevel) {
		cfg.Log.Level = v.GetString(flagLogLevel)
	}
	if v.GetString(flagLLM) != "" {
		cfg.LLM.DefaultProvider = v.GetString(flagLLM)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
