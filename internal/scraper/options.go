package scraper

import (
	"strings"
	"time"
)

// RequestOptions is a higher-level set of options for constructing a
// low-level scraper.Request. Country becomes an Accept-Language header
// (the lowercased country code). The scan pipeline builds its requests
// directly and does not use these options, and the browser strategy
// does not apply Request.Headers.
type RequestOptions struct {
	URL            string
	Headers        map[string]string
	TimeoutMs      int
	UserAgent      string
	Country        string
	WantScreenshot bool
	FullPageShot   bool
}

// BuildRequestFromOptions builds a scraper.Request from higher-level
// RequestOptions, applying shared behavior such as an Accept-Language
// header derived from Country.
func BuildRequestFromOptions(opts RequestOptions) Request {
	headers := map[string]string{}
	for k, v := range opts.Headers {
		headers[k] = v
	}
	if opts.Country != "" {
		headers["Accept-Language"] = strings.ToLower(opts.Country)
	}

	var timeout time.Duration
	if opts.TimeoutMs > 0 {
		timeout = time.Duration(opts.TimeoutMs) * time.Millisecond
	}

	return Request{
		URL:            opts.URL,
		Headers:        headers,
		Timeout:        timeout,
		UserAgent:      opts.UserAgent,
		WantScreenshot: opts.WantScreenshot,
		FullPageShot:   opts.FullPageShot,
	}
}
