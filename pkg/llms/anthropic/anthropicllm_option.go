package anthropic

import (
	"github.com/anthropics/anthropic-sdk-go/option"
)

// TokenEnvVarName is the environment variable of the API key,
// used when the provider configuration has no token
const TokenEnvVarName = "ANTHROPIC_API_KEY" //nolint:gosec

// Options of the Anthropic client.
// llmfactory sets them from an ANTHROPIC provider configuration.
type Options struct {
	// Token defaults to $ANTHROPIC_API_KEY
	Token string
	// Model is used when the call options do not name one
	Model   string
	BaseURL string
	// HTTPClient carries the request_timeout of the provider
	HTTPClient option.HTTPClient
}

// Option configures the client
type Option func(*Options)

// WithToken sets the API key, the `token` of the provider configuration
func WithToken(token string) Option {
	return func(opts *Options) {
		opts.Token = token
	}
}

// WithModel sets the model, the `default_model` of the provider configuration
// or the first of its `available_models` requested by the caller
func WithModel(model string) Option {
	return func(opts *Options) {
		opts.Model = model
	}
}

// WithBaseURL sets the API endpoint, e.g. a proxy in front of the Anthropic API
func WithBaseURL(baseURL string) Option {
	return func(opts *Options) {
		opts.BaseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client, http.DefaultClient by default
func WithHTTPClient(client option.HTTPClient) Option {
	return func(opts *Options) {
		opts.HTTPClient = client
	}
}
