package local

import (
	"net/http"
	"time"
)

const (
	// DefaultURL is the chat-completions endpoint of LM Studio
	DefaultURL = "http://127.0.0.1:1234/v1/chat/completions"
	// DefaultModel is the model loaded in the local server
	DefaultModel = "mistral-7b-instruct-v0.3"
)

// Doer performs a HTTP request.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type options struct {
	url        string
	model      string
	token      string
	httpClient Doer
	timeout    time.Duration
}

// Option is a functional option for the local client.
type Option func(*options)

// WithURL sets the full URL of the chat-completions endpoint.
func WithURL(url string) Option {
	return func(opts *options) {
		opts.url = url
	}
}

// WithModel sets the model name sent in the request.
func WithModel(model string) Option {
	return func(opts *options) {
		opts.model = model
	}
}

// WithToken sets an optional bearer token.
func WithToken(token string) Option {
	return func(opts *options) {
		opts.token = token
	}
}

// WithHTTPClient allows setting a custom HTTP client.
// If not set, a client with the request timeout is used.
func WithHTTPClient(client Doer) Option {
	return func(opts *options) {
		opts.httpClient = client
	}
}

// WithRequestTimeout sets the timeout of a single HTTP request,
// ignored when WithHTTPClient is used.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(opts *options) {
		opts.timeout = timeout
	}
}
