package web_search

import (
	"context"
	"errors"

	"github.com/arguslabs/argus/config"
	"github.com/arguslabs/argus/tools/web_search/brave"
	"github.com/arguslabs/argus/tools/web_search/models"
	"github.com/arguslabs/argus/tools/web_search/serper"
	"github.com/arguslabs/argus/tools/web_search/tavily"
)

// WebSearcher runs one query and returns up to k normalized results.
type WebSearcher interface {
	Search(ctx context.Context, q string, k int) ([]models.Result, error)
}

type Provider string

const (
	TavilyProvider Provider = "tavily"
	SerperProvider Provider = "serper"
	BraveProvider  Provider = "brave"
)

var ErrUnsupportedProvider = errors.New("unsupported search provider")

// NewWebSearcher builds the configured provider's searcher.
func NewWebSearcher(cfg config.SearchConfig) (WebSearcher, error) {
	switch Provider(cfg.Provider) {
	case TavilyProvider:
		if cfg.TavilyAPIKey == "" {
			return nil, errors.New("tavily: api key not set")
		}
		return tavily.Search{ApiKey: cfg.TavilyAPIKey, Timeout: cfg.Timeout}, nil
	case SerperProvider:
		if cfg.SerperAPIKey == "" {
			return nil, errors.New("serper: api key not set")
		}
		return serper.Search{ApiKey: cfg.SerperAPIKey, Timeout: cfg.Timeout}, nil
	case BraveProvider:
		if cfg.BraveAPIKey == "" {
			return nil, errors.New("brave: api key not set")
		}
		return brave.Search{ApiKey: cfg.BraveAPIKey, Timeout: cfg.Timeout}, nil
	default:
		return nil, ErrUnsupportedProvider
	}
}
