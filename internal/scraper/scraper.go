// Package scraper implements the Fetcher (C1): a two-stage
// acquisition cascade (managed scraper, then headless-browser
// fallback) that returns rendered HTML and an optional full-page
// screenshot for a URL.
package scraper

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	htmlmd "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"brandscan/internal/model"
	"brandscan/internal/urlpolicy"
)

// ErrUnavailable is returned when every strategy in the cascade fails
// for a URL; per §4.1 this is a per-URL warning to the caller, not a
// fatal pipeline error.
var ErrUnavailable = errors.New("fetcher: no strategy produced usable content")

// Request is a single fetch request.
type Request struct {
	URL            string
	Timeout        time.Duration
	UserAgent      string
	Headers        map[string]string
	WantScreenshot bool
	FullPageShot   bool
}

// Result is what a single strategy produced.
type Result struct {
	HTML       string
	Markdown   string
	Screenshot *model.Screenshot
	Engine     string
}

// Strategy is one stage of the Fetcher cascade.
type Strategy interface {
	Fetch(ctx context.Context, req Request) (*Result, error)
}

// looksLikeHTML mirrors §4.1's "begins with a tag character" rule:
// the Fetcher never claims partial/non-HTML bodies as successful
// HTML.
func looksLikeHTML(body string) bool {
	trimmed := strings.TrimSpace(body)
	return strings.HasPrefix(trimmed, "<")
}

// Fetcher runs the managed-scraper strategy, falling back to the
// headless-browser strategy on any failure or non-HTML body.
type Fetcher struct {
	Managed Strategy
	Browser Strategy
}

// NewFetcher builds the standard two-stage cascade.
func NewFetcher(managed, browser Strategy) *Fetcher {
	return &Fetcher{Managed: managed, Browser: browser}
}

// Fetch runs the cascade for a single URL. It never returns HTML that
// did not look like HTML at the transport layer.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (*Result, error) {
	if f.Managed != nil {
		res, err := f.Managed.Fetch(ctx, req)
		if err == nil && res != nil && looksLikeHTML(res.HTML) {
			return res, nil
		}
	}
	if f.Browser != nil {
		res, err := f.Browser.Fetch(ctx, req)
		if err == nil && res != nil && looksLikeHTML(res.HTML) {
			return res, nil
		}
		// One retry on browser crash/transient failure, per §4.1.
		res, err = f.Browser.Fetch(ctx, req)
		if err == nil && res != nil && looksLikeHTML(res.HTML) {
			return res, nil
		}
	}
	return nil, ErrUnavailable
}

// HTTPStrategy is the first-stage strategy: a plain net/http GET of the
// target URL. It calls no external managed-scraper service, and the
// ManagedScraperURL setting is not read. The sitemap and social-link fetches build
// their own HTTP clients and do not use it.
type HTTPStrategy struct {
	client *http.Client
}

// NewHTTPStrategy builds the HTTP client with a dial-time guard: every
// connection's resolved IP is re-checked against the SSRF policy right
// before the socket connects, closing the DNS-rebinding TOCTOU gap
// left by a hostname-only check earlier in the pipeline.
func NewHTTPStrategy(timeout time.Duration) *HTTPStrategy {
	return &HTTPStrategy{client: &http.Client{Timeout: timeout, Transport: urlpolicy.GuardedTransport(timeout)}}
}

func (s *HTTPStrategy) Fetch(ctx context.Context, req Request) (*Result, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.UserAgent != "" {
		httpReq.Header.Set("User-Agent", req.UserAgent)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	htmlStr := string(body)

	converter := htmlmd.NewConverter(u.Hostname(), true, nil)
	markdown, mdErr := converter.ConvertString(htmlStr)
	if mdErr != nil {
		if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body)); err == nil {
			markdown = doc.Text()
		}
	}

	return &Result{HTML: htmlStr, Markdown: markdown, Engine: "http"}, nil
}
