package llmfactory

import (
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/configloader"
)

type Config struct {
	// Providers specifies the list of providers to use
	Providers []*ProviderConfig `json:"providers" yaml:"providers" validate:"dive"`
	// DefaultProvider specifies the default provider to use
	DefaultProvider string `json:"default_provider" yaml:"default_provider"`
}

// ProviderConfig specifies a model endpoint
type ProviderConfig struct {
	// Name is the name used to select the provider, e.g. `--llm local`
	Name string `json:"name" yaml:"name" validate:"required"`
	// APIType specifies the type of API to use: LOCAL|OPENAI|ANTHROPIC
	APIType string `json:"api_type" yaml:"api_type" validate:"required"`
	// BaseURL is the endpoint URL; for LOCAL it is the full chat-completions URL
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Token   string `json:"token,omitempty" yaml:"token,omitempty"`
	// OrgID specifies which organization's quota and billing should be used when making API requests.
	OrgID           string   `json:"org_id,omitempty" yaml:"org_id,omitempty"`
	DefaultModel    string   `json:"default_model,omitempty" yaml:"default_model,omitempty"`
	AvailableModels []string `json:"available_models,omitempty" yaml:"available_models,omitempty"`
	// RequestTimeout is the timeout of a single HTTP request, e.g. 30s
	RequestTimeout string `json:"request_timeout,omitempty" yaml:"request_timeout,omitempty"`
}

// FindModel returns the first of the models available in the provider,
// or the default model
func (c *ProviderConfig) FindModel(models ...string) string {
	for _, model := range models {
		if slices.Contains(c.AvailableModels, model) {
			return model
		}
	}
	return c.DefaultModel
}

// Matches returns true if the provider has the name or API type
func (c *ProviderConfig) Matches(name string) bool {
	return strings.EqualFold(c.Name, name) || strings.EqualFold(c.APIType, name)
}

// GetRequestTimeout returns the parsed request timeout, zero if not set
func (c *ProviderConfig) GetRequestTimeout() (time.Duration, error) {
	if c.RequestTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid request_timeout for provider %q", c.Name)
	}
	return d, nil
}

// LoadConfig from file
func LoadConfig(file string) (*Config, error) {
	cfg := new(Config)
	if file == "" {
		return cfg, nil
	}

	err := configloader.UnmarshalAndExpand(file, cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}
