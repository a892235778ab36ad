package web_scrape

import (
	"context"
	"time"

	"github.com/arguslabs/argus/config"
	"github.com/arguslabs/argus/tools/web_scrape/chromedp"
)

const (
	DefaultTimeout  = 30 * time.Second
	MaxCharsDefault = 15000
)

// WebScraper fetches a URL and returns its main textual content. Unreachable
// or unparseable pages return a bracketed marker string instead of an error
// so a tool loop can hand the outcome straight back to the model.
type WebScraper interface {
	Scrape(ctx context.Context, url string) (string, error)
}

// NewWebScraper builds a scraper from config. With UseHeadless set, pages
// are rendered through a headless browser before extraction; otherwise a
// plain HTTP fetch with politeness delays and retries is used.
func NewWebScraper(cfg config.ScrapeConfig) WebScraper {
	if cfg.UseHeadless {
		return &chromedp.Fetch{
			Timeout:  cfg.HeadlessTimeout,
			MaxChars: cfg.HeadlessMaxChars,
		}
	}
	return NewHTTPScraper(cfg)
}
