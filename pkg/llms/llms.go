package llms

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	// ErrTransport is returned when the model endpoint can not be reached,
	// or replies with a non-2xx status.
	ErrTransport = errors.New("transport error")
	// ErrMalformedResponse is returned when the endpoint replied with a body
	// that can not be parsed as a completion.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrEmptyResponse is returned when the completion has no choices.
	ErrEmptyResponse = errors.New("no response")
)

// ProviderType is the type of provider.
type ProviderType string

const (
	// ProviderLocal is a self-hosted chat-completions endpoint.
	ProviderLocal ProviderType = "LOCAL"
	// ProviderOpenAI is the OpenAI API.
	ProviderOpenAI ProviderType = "OPENAI"
	// ProviderAnthropic is the Anthropic API.
	ProviderAnthropic ProviderType = "ANTHROPIC"
)

// ParseProviderType returns the ProviderType for the name, case insensitive.
func ParseProviderType(s string) (ProviderType, error) {
	pt := ProviderType(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := providerCapabilities[pt]; !ok {
		return "", errors.Newf("unsupported provider type: %q", s)
	}
	return pt, nil
}

// Model is an interface chat models implement.
type Model interface {
	// GetName returns the name of the model.
	GetName() string
	// GetProviderType returns the type of provider.
	GetProviderType() ProviderType
	// GenerateContent asks the model to generate content from a sequence of
	// messages.
	GenerateContent(ctx context.Context, messages []Message, options ...CallOption) (*ContentResponse, error)
}

// Capability is a bitmask indicating supported features of an LLM provider.
type Capability uint64

const (
	// Basic text or chat generation
	CapabilityText Capability = 1 << iota

	// Function/tool calling
	CapabilityFunctionCalling
	CapabilityMultiToolCalling

	// Open weight models / self-hosted
	CapabilitySelfHosted

	// System prompt support
	CapabilitySystemPrompt

	// Stop sequences
	CapabilityStopWords
)

var providerCapabilities = map[ProviderType]Capability{
	ProviderLocal: CapabilityText |
		CapabilitySelfHosted |
		CapabilitySystemPrompt |
		CapabilityStopWords,

	ProviderOpenAI: CapabilityText |
		CapabilityFunctionCalling |
		CapabilityMultiToolCalling |
		CapabilitySystemPrompt |
		CapabilityStopWords,

	ProviderAnthropic: CapabilityText |
		CapabilityFunctionCalling |
		CapabilityMultiToolCalling |
		CapabilitySystemPrompt |
		CapabilityStopWords,
}

// ProviderCapabilities returns the capabilities of the provider
func ProviderCapabilities(pt ProviderType) Capability {
	return providerCapabilities[pt]
}

// Supports returns true if the provider supports the capability
func (p ProviderType) Supports(cap Capability) bool {
	return ProviderCapabilities(p)&cap != 0
}
