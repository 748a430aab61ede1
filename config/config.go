// Package config provides the configuration of the toolagent application:
// the agent, the model providers, the knowledge base and the message store.
package config

import (
	"net/url"
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/agent"
	"github.com/effective-security/toolagent/knowledgebase"
	"github.com/effective-security/toolagent/pkg/llmfactory"
	"github.com/effective-security/toolagent/pkg/schema"
	"github.com/effective-security/toolagent/store"
	"github.com/effective-security/x/configloader"
	"github.com/effective-security/xlog"
	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
)

// Default provider settings
const (
	DefaultProvider       = "local"
	DefaultLocalURL       = "http://127.0.0.1:1234/v1/chat/completions"
	DefaultLocalModel     = "mistral-7b-instruct-v0.3"
	DefaultOpenAIModel    = "gpt-3.5-turbo"
	DefaultAnthropicModel = "claude-3-5-haiku-latest"
	DefaultRequestTimeout = "60s"
)

var validate = validator.New()

// Config of the application
type Config struct {
	Agent         agent.Config         `json:"agent" yaml:"agent"`
	LLM           llmfactory.Config    `json:"llm" yaml:"llm"`
	KnowledgeBase knowledgebase.Config `json:"knowledge_base" yaml:"knowledge_base"`
	Store         store.Config         `json:"store" yaml:"store"`
	Log           LogConfig            `json:"log" yaml:"log"`
}

// LogConfig of the application
type LogConfig struct {
	// Level is one of error, warning, info, debug
	Level string `json:"level,omitempty" yaml:"level,omitempty" validate:"omitempty,oneof=error warning notice info debug trace"`
	// Verbose prints the reasoning trace of the agent
	Verbose bool `json:"verbose,omitempty" yaml:"verbose,omitempty"`
}

// GetLevel returns the xlog level, WARNING by default
func (c *LogConfig) GetLevel() xlog.LogLevel {
	switch strings.ToLower(c.Level) {
	case "error":
		return xlog.ERROR
	case "notice":
		return xlog.NOTICE
	case "info":
		return xlog.INFO
	case "debug", "trace":
		return xlog.DEBUG
	}
	return xlog.WARNING
}

// Default returns the configuration used when no file is provided
func Default() *Config {
	return &Config{
		Agent: agent.Config{
			Mode:         agent.ModeReAct,
			QueryTimeout: agent.DefaultQueryTimeout.String(),
		},
		LLM: llmfactory.Config{
			DefaultProvider: DefaultProvider,
			Providers: []*llmfactory.ProviderConfig{
				{
					Name:           "local",
					APIType:        "LOCAL",
					BaseURL:        DefaultLocalURL,
					DefaultModel:   DefaultLocalModel,
					RequestTimeout: DefaultRequestTimeout,
				},
				{
					// the token is read from OPENAI_API_KEY
					Name:           "openai",
					APIType:        "OPENAI",
					DefaultModel:   DefaultOpenAIModel,
					RequestTimeout: DefaultRequestTimeout,
				},
				{
					// the token is read from ANTHROPIC_API_KEY
					Name:           "anthropic",
					APIType:        "ANTHROPIC",
					DefaultModel:   DefaultAnthropicModel,
					RequestTimeout: DefaultRequestTimeout,
				},
			},
		},
		KnowledgeBase: knowledgebase.Config{
			PersistDir: knowledgebase.DefaultPersistDir,
			Collection: knowledgebase.DefaultCollection,
			TopK:       knowledgebase.DefaultTopK,
			Embedding: knowledgebase.EmbeddingConfig{
				Provider:   knowledgebase.EmbeddingProviderHash,
				Dimensions: knowledgebase.DefaultDimensions,
			},
		},
		Store: store.Config{
			Provider: store.ProviderMemory,
			Prefix:   store.DefaultPrefix,
		},
		Log: LogConfig{
			Level: "warning",
		},
	}
}

// Load returns the configuration from the file over the defaults,
// ${ENV} variables in the file are expanded.
// If file is empty, the defaults are returned.
func Load(file string) (*Config, error) {
	cfg := Default()
	if file != "" {
		// the file replaces the default providers
		cfg.LLM.Providers = nil
		err := configloader.UnmarshalAndExpand(file, cfg)
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to load config %q", file)
		}
		if len(cfg.LLM.Providers) == 0 {
			cfg.LLM.Providers = Default().LLM.Providers
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate returns an error if the configuration is invalid
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	if _, err := agent.ParseMode(string(c.Agent.Mode)); err != nil {
		return err
	}
	if _, err := c.Agent.GetQueryTimeout(); err != nil {
		return err
	}
	for _, p := range c.LLM.Providers {
		if _, err := p.GetRequestTimeout(); err != nil {
			return err
		}
	}
	return nil
}

// Schema returns the json schema of the configuration file
func Schema() *jsonschema.Schema {
	return schema.JSONSchema(reflect.TypeOf(Config{}))
}

// redacted replaces the secrets in Redacted
const redacted = "***"

// Redacted returns a copy of the configuration with the tokens
// and the store password masked
func (c *Config) Redacted() *Config {
	r := *c
	r.LLM.Providers = make([]*llmfactory.ProviderConfig, len(c.LLM.Providers))
	for i, p := range c.LLM.Providers {
		cp := *p
		if cp.Token != "" {
			cp.Token = redacted
		}
		r.LLM.Providers[i] = &cp
	}
	if r.KnowledgeBase.Embedding.Token != "" {
		r.KnowledgeBase.Embedding.Token = redacted
	}
	if r.Store.RedisURL != "" {
		if u, err := url.Parse(r.Store.RedisURL); err == nil {
			r.Store.RedisURL = u.Redacted()
		} else {
			r.Store.RedisURL = redacted
		}
	}
	return &r
}
