package llmfactory

import (
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/toolagent/pkg/llms/anthropic"
	"github.com/effective-security/toolagent/pkg/llms/local"
	"github.com/effective-security/toolagent/pkg/llms/openai"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolagent/pkg", "llmfactory")

// NewLLM is a wrapper for CreateLLM to allow for overriding the default implementation.
var NewLLM = CreateLLM

// Factory is the interface for creating and managing LLM models.
type Factory interface {
	// DefaultModel returns the model of the default provider.
	DefaultModel() (llms.Model, error)
	// ModelByProvider returns a model by the provider name or API type, e.g.
	// local, openai, ANTHROPIC
	ModelByProvider(provider string) (llms.Model, error)
	// ModelByName returns an LLM model by its name,
	// if the model is not found, it will return the default model.
	ModelByName(preferredModels ...string) (llms.Model, error)
}

// Load returns a factory from the config file
func Load(location string) (Factory, error) {
	cfg, err := LoadConfig(location)
	if err != nil {
		return nil, err
	}
	return New(cfg), nil
}

type factory struct {
	cfg             *Config
	defaultProvider *ProviderConfig
	byProvider      map[string]llms.Model
	byName          map[string]llms.Model
	lock            sync.Mutex
}

// New creates a new LLM factory
func New(cfg *Config) Factory {
	f := &factory{
		cfg:        cfg,
		byProvider: make(map[string]llms.Model),
		byName:     make(map[string]llms.Model),
	}

	if cfg.DefaultProvider != "" {
		for _, provider := range cfg.Providers {
			if provider.Matches(cfg.DefaultProvider) {
				f.defaultProvider = provider
				break
			}
		}
	}

	if f.defaultProvider == nil && len(f.cfg.Providers) > 0 {
		f.defaultProvider = f.cfg.Providers[0]
	}

	return f
}

// CreateLLM returns a new model for the provider
func CreateLLM(cfg *ProviderConfig, preferredModels ...string) (llms.Model, error) {
	provType, err := llms.ParseProviderType(cfg.APIType)
	if err != nil {
		return nil, err
	}
	timeout, err := cfg.GetRequestTimeout()
	if err != nil {
		return nil, err
	}

	switch provType {
	case llms.ProviderLocal:
		return newLocal(cfg, timeout, preferredModels...)
	case llms.ProviderOpenAI:
		return newOpenAI(cfg, timeout, preferredModels...)
	case llms.ProviderAnthropic:
		return newAnthropic(cfg, timeout, preferredModels...)
	}
	return nil, errors.Newf("unsupported provider type: %s", provType)
}

func newLocal(cfg *ProviderConfig, timeout time.Duration, preferredModels ...string) (llms.Model, error) {
	opts := []local.Option{
		local.WithModel(cfg.FindModel(preferredModels...)),
		local.WithRequestTimeout(timeout),
	}
	if cfg.Token != "" {
		opts = append(opts, local.WithToken(cfg.Token))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, local.WithURL(cfg.BaseURL))
	}
	return local.New(opts...)
}

func newOpenAI(cfg *ProviderConfig, timeout time.Duration, preferredModels ...string) (llms.Model, error) {
	opts := []openai.Option{
		openai.WithModel(cfg.FindModel(preferredModels...)),
	}
	if cfg.Token != "" {
		opts = append(opts, openai.WithToken(cfg.Token))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.OrgID != "" {
		opts = append(opts, openai.WithOrganization(cfg.OrgID))
	}
	if timeout > 0 {
		opts = append(opts, openai.WithHTTPClient(&http.Client{Timeout: timeout}))
	}
	return openai.New(opts...)
}

func newAnthropic(cfg *ProviderConfig, timeout time.Duration, preferredModels ...string) (llms.Model, error) {
	var opts []anthropic.Option
	if model := cfg.FindModel(preferredModels...); model != "" {
		opts = append(opts, anthropic.WithModel(model))
	}
	if cfg.Token != "" {
		opts = append(opts, anthropic.WithToken(cfg.Token))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}
	if timeout > 0 {
		opts = append(opts, anthropic.WithHTTPClient(&http.Client{Timeout: timeout}))
	}
	return anthropic.New(opts...)
}

// DefaultModel returns the model of the default provider
func (f *factory) DefaultModel() (llms.Model, error) {
	if len(f.cfg.Providers) == 0 || f.defaultProvider == nil {
		return nil, errors.New("no providers configured")
	}
	return f.ModelByProvider(f.defaultProvider.Name)
}

func (f *factory) ModelByProvider(provider string) (llms.Model, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	if model, ok := f.byProvider[provider]; ok {
		return model, nil
	}

	for _, cfg := range f.cfg.Providers {
		if cfg.Matches(provider) {
			model, err := NewLLM(cfg)
			if err != nil {
				return nil, errors.WithMessagef(err, "failed to create LLM for provider %q", cfg.Name)
			}

			logger.KV(xlog.DEBUG,
				"status", "created_llm",
				"type", cfg.APIType,
				"name", cfg.Name,
				"model", model.GetName())

			f.byProvider[provider] = model
			return model, nil
		}
	}
	return nil, errors.Newf("provider not found: %s", provider)
}

func (f *factory) ModelByName(modelNames ...string) (llms.Model, error) {
	f.lock.Lock()
	for _, modelName := range modelNames {
		if model, ok := f.byName[modelName]; ok {
			f.lock.Unlock()
			return model, nil
		}

		for _, cfg := range f.cfg.Providers {
			if slices.Contains(cfg.AvailableModels, modelName) {
				model, err := NewLLM(cfg, modelName)
				if err != nil {
					logger.KV(xlog.ERROR,
						"reason", "NewLLM",
						"type", cfg.APIType,
						"model", modelName,
						"err", err.Error(),
					)
					continue
				}

				logger.KV(xlog.DEBUG,
					"status", "created_llm",
					"type", cfg.APIType,
					"name", cfg.Name,
					"model", modelName)

				f.byName[modelName] = model
				f.lock.Unlock()
				return model, nil
			}
		}
	}
	f.lock.Unlock()
	return f.DefaultModel()
}
