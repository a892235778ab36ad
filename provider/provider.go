package provider

import (
	"context"
	"errors"
	"time"

	openai_provider "github.com/arguslabs/argus/provider/openai"
)

// Client represents different LLM providers
type Client string

const (
	OpenAI    Client = "openai"
	Anthropic Client = "anthropic"
	Gemini    Client = "gemini"
)

// Chat types live with the OpenAI implementation; the aliases keep callers on
// this package so another backend can be added without touching them.
type (
	Message      = openai_provider.Message
	Usage        = openai_provider.Usage
	ChatRequest  = openai_provider.ChatRequest
	ChatResponse = openai_provider.ChatResponse
)

// Provider is the interface that all LLM implementations must satisfy
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// Options configures the provider constructed by NewProvider. An empty
// BaseURL means the provider's public endpoint.
type Options struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	Headers map[string]string
}

// NewProvider creates a new LLM client based on the provided configuration
func NewProvider(client Client, opts Options) (Provider, error) {
	switch client {
	case OpenAI:
		if opts.APIKey == "" {
			return nil, errors.New("openai provider: api key not set")
		}
		return openai_provider.NewClient(opts.APIKey, opts.BaseURL, opts.Timeout, opts.Headers), nil
	case Anthropic:
		return nil, errors.New("anthropic client not implemented yet")
	case Gemini:
		return nil, errors.New("gemini client not implemented yet")
	default:
		return nil, errors.New("unsupported LLM provider")
	}
}
