package web_scrape

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/arguslabs/argus/config"
)

var userAgents = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:123.0) Gecko/20100101 Firefox/123.0",
}

// HTTPScraper fetches pages over plain HTTP with per-domain politeness
// delays, user-agent rotation, and exponential backoff retries.
type HTTPScraper struct {
	client          *http.Client
	maxRetries      int
	maxChars        int
	politenessDelay time.Duration

	mu          sync.Mutex
	lastRequest map[string]time.Time
}

// NewHTTPScraper builds an HTTPScraper from config, filling zero values with
// the package defaults.
func NewHTTPScraper(cfg config.ScrapeConfig) *HTTPScraper {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = MaxCharsDefault
	}
	return &HTTPScraper{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		maxRetries:      maxRetries,
		maxChars:        maxChars,
		politenessDelay: cfg.PolitenessDelay,
		lastRequest:     make(map[string]time.Time),
	}
}

func (s *HTTPScraper) Scrape(ctx context.Context, rawURL string) (string, error) {
	if err := s.waitPoliteness(ctx, rawURL); err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		text, retryable, err := s.fetchOnce(ctx, rawURL)
		if err == nil {
			return text, nil
		}
		if !retryable {
			return "", err
		}
		lastErr = err

		backoff := time.Duration(1<<attempt)*time.Second + time.Duration(rand.Int63n(int64(time.Second)))
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Sprintf("[Scrape failed after %d attempts: %v]", s.maxRetries, lastErr), nil
}

// fetchOnce returns the extracted text, or an error with a retryable flag.
// Hard failures (403, 404, PDF) surface as marker text with a nil error since
// retrying cannot help.
func (s *HTTPScraper) fetchOnce(ctx context.Context, rawURL string) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", false, err
	}
	req.Header.Set("User-Agent", userAgents[rand.Intn(len(userAgents))])

	resp, err := s.client.Do(req)
	if err != nil {
		return "", true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusNotFound:
		return fmt.Sprintf("[HTTP %d for %s]", resp.StatusCode, rawURL), false, nil
	case resp.StatusCode >= 400:
		return "", true, fmt.Errorf("http status %d", resp.StatusCode)
	}

	if ct := resp.Header.Get("Content-Type"); strings.Contains(ct, "pdf") {
		return fmt.Sprintf("[PDF content at %s, extraction not supported]", rawURL), false, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", true, err
	}

	text := s.extractText(string(body), rawURL)
	if text == "" {
		return fmt.Sprintf("[No extractable content at %s]", rawURL), false, nil
	}
	if len(text) > s.maxChars {
		text = text[:s.maxChars]
	}
	return text, false, nil
}

func (s *HTTPScraper) extractText(html, rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		u = &url.URL{}
	}
	article, err := readability.FromReader(strings.NewReader(html), u)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(article.TextContent)
}

// waitPoliteness enforces the per-domain minimum delay between requests.
func (s *HTTPScraper) waitPoliteness(ctx context.Context, rawURL string) error {
	if s.politenessDelay <= 0 {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}

	s.mu.Lock()
	last, ok := s.lastRequest[u.Host]
	now := time.Now()
	wait := time.Duration(0)
	if ok {
		if elapsed := now.Sub(last); elapsed < s.politenessDelay {
			wait = s.politenessDelay - elapsed
		}
	}
	s.lastRequest[u.Host] = now.Add(wait)
	s.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}
