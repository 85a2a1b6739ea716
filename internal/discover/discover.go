// Package discover implements the Link Discoverer (C2): anchor
// extraction from homepage HTML plus sitemap(s), restricted to the
// same root-word domain as the seed.
package discover

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	robotstxt "github.com/temoto/robotstxt"

	"brandscan/internal/model"
	"brandscan/internal/urlpolicy"
)

// Options controls a discovery pass.
type Options struct {
	SeedURL        string
	HomepageHTML   string // already-fetched homepage body, avoids a second round-trip
	UserAgent      string
	Timeout        time.Duration
	RespectRobots  bool
	MaxLinksParsed int
}

// sitemapPriorityKeywords is the ordered list used to pick a
// sub-sitemap out of a sitemap index (§4.2, §9 open question #2).
var sitemapPriorityKeywords = []string{"page", "post", "company", "about", "article"}

// sanitizeHref mirrors the reference's `_sanitize_href`: strips
// escaped quotes and backslashes that sometimes leak into href
// attributes from badly-escaped templates.
func sanitizeHref(href string) string {
	href = strings.ReplaceAll(href, `\"`, "")
	href = strings.ReplaceAll(href, `\`, "")
	href = strings.TrimSpace(href)
	return strings.Trim(href, `"'`)
}

// Discover extracts candidate links from the homepage DOM and from
// /sitemap.xml (including sitemap-index resolution), restricted to
// the seed's root-word domain.
func Discover(ctx context.Context, opts Options) ([]model.DiscoveredLink, error) {
	if opts.SeedURL == "" {
		return nil, errors.New("seed url is required")
	}
	base, err := url.Parse(opts.SeedURL)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: opts.Timeout, Transport: urlpolicy.GuardedTransport(opts.Timeout)}

	var robotsData *robotstxt.RobotsData
	if opts.RespectRobots {
		robotsData, _ = fetchRobots(ctx, client, base, opts.UserAgent)
	}

	seen := make(map[string]model.DiscoveredLink)
	rootWord := urlpolicy.RootWord(opts.SeedURL)

	add := func(raw, text string, origin model.LinkOrigin) {
		if opts.MaxLinksParsed > 0 && len(seen) >= opts.MaxLinksParsed {
			return
		}
		raw = sanitizeHref(raw)
		if raw == "" {
			return
		}
		u, err := base.Parse(raw)
		if err != nil {
			return
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return
		}
		if rootWord == "" || urlpolicy.RootWord(u.String()) != rootWord {
			return
		}
		if robotsData != nil {
			grp := robotsData.FindGroup(opts.UserAgent)
			if grp != nil && !grp.Test(u.String()) {
				return
			}
		}
		normalized := normalize(u)
		if _, exists := seen[normalized]; exists {
			return
		}
		seen[normalized] = model.DiscoveredLink{
			URL:        normalized,
			AnchorText: strings.TrimSpace(text),
			Origin:     origin,
		}
	}

	if opts.HomepageHTML != "" {
		collectFromHTMLString(opts.HomepageHTML, add)
	} else if err := collectFromHTML(ctx, client, base, add); err != nil {
		// Non-fatal: sitemap discovery may still succeed.
	}

	if err := collectFromSitemap(ctx, client, base, opts.UserAgent, add); err != nil {
		// Non-fatal: homepage anchors may be the only source.
	}

	out := make([]model.DiscoveredLink, 0, len(seen))
	for _, l := range seen {
		out = append(out, l)
	}
	return out, nil
}

// normalize clears the URL's fragment and trims
// trailing-slash noise so duplicates collapse as required by §3.
func normalize(u *url.URL) string {
	clone := *u
	clone.Fragment = ""
	s := clone.String()
	if len(s) > 1 && strings.HasSuffix(s, "/") {
		s = strings.TrimRight(s, "/")
	}
	return s
}

func fetchRobots(ctx context.Context, client *http.Client, base *url.URL, userAgent string) (*robotstxt.RobotsData, error) {
	robotsURL := &url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/robots.txt"}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil, err
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("non-200 robots.txt")
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return robotstxt.FromStatusAndBytes(resp.StatusCode, body)
}

type sitemapURLEntry struct {
	Loc string `xml:"loc"`
}

type sitemapURLSet struct {
	URLs []sitemapURLEntry `xml:"url"`
}

type sitemapIndexEntry struct {
	Loc string `xml:"loc"`
}

type sitemapIndex struct {
	Sitemaps []sitemapIndexEntry `xml:"sitemap"`
}

// collectFromSitemap fetches /sitemap.xml and, if it is a sitemap
// index, resolves the priority sub-sitemap per §4.2/§9.
func collectFromSitemap(ctx context.Context, client *http.Client, base *url.URL, userAgent string, add func(url, title string, origin model.LinkOrigin)) error {
	body, err := fetchURL(ctx, client, &url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/sitemap.xml"}, userAgent)
	if err != nil {
		return err
	}

	var idx sitemapIndex
	if err := xml.Unmarshal(body, &idx); err == nil && len(idx.Sitemaps) > 0 {
		target := pickPrioritySitemap(idx.Sitemaps)
		subBody, err := fetchURL(ctx, client, mustParseAbs(base, target), userAgent)
		if err != nil {
			return err
		}
		return addSitemapURLs(subBody, add)
	}

	return addSitemapURLs(body, add)
}

func pickPrioritySitemap(entries []sitemapIndexEntry) string {
	for _, keyword := range sitemapPriorityKeywords {
		for _, e := range entries {
			if strings.Contains(strings.ToLower(e.Loc), keyword) {
				return e.Loc
			}
		}
	}
	return entries[0].Loc
}

func mustParseAbs(base *url.URL, ref string) *url.URL {
	u, err := base.Parse(ref)
	if err != nil {
		return base
	}
	return u
}

func addSitemapURLs(body []byte, add func(url, title string, origin model.LinkOrigin)) error {
	var us sitemapURLSet
	if err := xml.Unmarshal(body, &us); err != nil {
		return err
	}
	for _, ue := range us.URLs {
		add(ue.Loc, "", model.OriginSitemap)
	}
	return nil
}

func fetchURL(ctx context.Context, client *http.Client, u *url.URL, userAgent string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("non-200 response")
	}
	return io.ReadAll(resp.Body)
}

func collectFromHTML(ctx context.Context, client *http.Client, base *url.URL, add func(url, title string, origin model.LinkOrigin)) error {
	body, err := fetchURL(ctx, client, base, "")
	if err != nil {
		return err
	}
	return collectFromHTMLBytes(body, add)
}

func collectFromHTMLString(html string, add func(url, title string, origin model.LinkOrigin)) {
	_ = collectFromHTMLBytes([]byte(html), add)
}

func collectFromHTMLBytes(body []byte, add func(url, title string, origin model.LinkOrigin)) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		add(href, sel.Text(), model.OriginHTML)
	})
	return nil
}
