package web_scrape

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/arguslabs/argus/config"
)

const articleHTML = `<!DOCTYPE html>
<html><head><title>Acme Capital under investigation</title></head>
<body>
<nav>Home | About</nav>
<article>
<h1>Acme Capital under investigation</h1>
<p>Regulators opened an inquiry into Acme Capital's offshore fund structure
after a whistleblower filing described undisclosed related-party loans made
between 2019 and 2022. The filing names two directors and a Cayman entity.</p>
<p>Acme denied wrongdoing in a statement and said it would cooperate fully
with the inquiry. Shares fell four percent on the news.</p>
</article>
<footer>Copyright</footer>
</body></html>`

func newScraper(t *testing.T) *HTTPScraper {
	t.Helper()
	return NewHTTPScraper(config.ScrapeConfig{
		Timeout:    5 * time.Second,
		MaxRetries: 3,
		MaxChars:   15000,
	})
}

func TestScrapeExtractsArticleText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, articleHTML)
	}))
	defer srv.Close()

	got, err := newScraper(t).Scrape(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if !strings.Contains(got, "whistleblower filing") {
		t.Fatalf("extracted text missing article body: %q", got)
	}
	if strings.Contains(got, "<p>") {
		t.Fatalf("extracted text contains markup: %q", got)
	}
}

func TestScrapeForbiddenReturnsMarker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	got, err := newScraper(t).Scrape(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	want := fmt.Sprintf("[HTTP 403 for %s]", srv.URL)
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestScrapePDFReturnsMarker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprint(w, "%PDF-1.4")
	}))
	defer srv.Close()

	got, err := newScraper(t).Scrape(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if !strings.HasPrefix(got, "[PDF content at ") {
		t.Fatalf("got %q", got)
	}
}

func TestScrapeRetriesServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, articleHTML)
	}))
	defer srv.Close()

	got, err := newScraper(t).Scrape(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if !strings.Contains(got, "Acme Capital") {
		t.Fatalf("unexpected text after retries: %q", got)
	}
}

func TestScrapeExhaustedRetriesReturnsFailureMarker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	got, err := newScraper(t).Scrape(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if !strings.HasPrefix(got, "[Scrape failed after 3 attempts") {
		t.Fatalf("got %q", got)
	}
}

func TestScrapeTruncatesLongPages(t *testing.T) {
	long := strings.Repeat("Lorem ipsum dolor sit amet consectetur. ", 2000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, "<html><head><title>T</title></head><body><article><h1>T</h1><p>%s</p></article></body></html>", long)
	}))
	defer srv.Close()

	s := NewHTTPScraper(config.ScrapeConfig{Timeout: 5 * time.Second, MaxRetries: 1, MaxChars: 500})
	got, err := s.Scrape(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if len(got) > 500 {
		t.Fatalf("len = %d, want <= 500", len(got))
	}
}

func TestPolitenessDelayBetweenSameDomainRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, articleHTML)
	}))
	defer srv.Close()

	s := NewHTTPScraper(config.ScrapeConfig{
		Timeout:         5 * time.Second,
		MaxRetries:      1,
		MaxChars:        15000,
		PolitenessDelay: 150 * time.Millisecond,
	})

	ctx := context.Background()
	start := time.Now()
	if _, err := s.Scrape(ctx, srv.URL); err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if _, err := s.Scrape(ctx, srv.URL); err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Fatalf("second request not delayed, elapsed %v", elapsed)
	}
}
