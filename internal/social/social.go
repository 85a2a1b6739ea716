// Package social implements the Social Text Harvester (C6): detects
// per-platform profile links on the homepage and fetches a short,
// cleaned text distillate from the single best link per platform.
package social

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"brandscan/internal/urlpolicy"
)

const maxBlockChars = 2000

type platform struct {
	name        string
	domainRegex *regexp.Regexp
	idPatterns  []*regexp.Regexp
}

var platforms = []platform{
	{"twitter", regexp.MustCompile(`(?i)(twitter|x)\.com`), compileAll(`(?i)twitter`, `(?i)x-twitter`, `(?i)tweet`, `(?i)fa-x-twitter`, `(?i)fa-twitter`, `(?i)icon-twitter`)},
	{"linkedin", regexp.MustCompile(`(?i)linkedin\.com`), compileAll(`(?i)linkedin`, `(?i)fa-linkedin`, `(?i)icon-linkedin`)},
	{"facebook", regexp.MustCompile(`(?i)facebook\.com`), compileAll(`(?i)facebook`, `(?i)fb`, `(?i)fa-facebook`, `(?i)icon-facebook`)},
	{"instagram", regexp.MustCompile(`(?i)instagram\.com`), compileAll(`(?i)instagram`, `(?i)insta`, `(?i)fa-instagram`, `(?i)icon-instagram`)},
	{"youtube", regexp.MustCompile(`(?i)youtube\.com`), compileAll(`(?i)youtube`, `(?i)yt`, `(?i)fa-youtube`, `(?i)icon-youtube`)},
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

var containerClassRe = regexp.MustCompile(`(?i)(social|footer|header|contact|follow|icons|menu)`)

// Harvest finds the best link per platform in homepage HTML, fetches
// each with a short timeout, and returns a combined, labeled
// distillate plus the set of per-platform blocks.
func Harvest(ctx context.Context, homepageHTML, baseURL string, userAgent string) (string, map[string]string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(homepageHTML))
	if err != nil {
		return "", nil
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", nil
	}

	const timeout = 20 * time.Second
	client := &http.Client{Timeout: timeout, Transport: urlpolicy.GuardedTransport(timeout)}
	blocks := make(map[string]string)
	var combined strings.Builder

	for _, p := range platforms {
		best := bestLink(doc, base, p)
		if best == "" {
			continue
		}
		text := fetchAndClean(ctx, client, best, userAgent)
		if text == "" {
			continue
		}
		if len(text) > maxBlockChars {
			text = text[:maxBlockChars]
		}
		label := strings.ToUpper(p.name[:1]) + p.name[1:]
		blocks[p.name] = text
		combined.WriteString("\n\n--- Social Media Content (")
		combined.WriteString(label)
		combined.WriteString(") ---\n")
		combined.WriteString(text)
	}

	return strings.TrimSpace(combined.String()), blocks
}

func bestLink(doc *goquery.Document, base *url.URL, p platform) string {
	candidates := []*goquery.Selection{}
	doc.Find("footer, header, nav, div, ul, p").Each(func(_ int, container *goquery.Selection) {
		class, _ := container.Attr("class")
		if !containerClassRe.MatchString(class) {
			return
		}
		container.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			candidates = append(candidates, a)
		})
	})
	if len(candidates) == 0 {
		doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			candidates = append(candidates, a)
		})
	}

	good := make(map[string]struct{})
	for _, a := range candidates {
		href, _ := a.Attr("href")
		ariaLabel := strings.ToLower(attrOr(a, "aria-label"))
		title := strings.ToLower(attrOr(a, "title"))
		text := strings.ToLower(strings.TrimSpace(a.Text()))
		class := strings.ToLower(attrOr(a, "class"))

		relevant := p.domainRegex.MatchString(href)
		if !relevant {
			for _, ip := range p.idPatterns {
				if ip.MatchString(ariaLabel) || ip.MatchString(title) || ip.MatchString(text) || ip.MatchString(class) {
					relevant = true
					break
				}
			}
		}
		if !relevant {
			child := a.Find("i, img, svg").First()
			if child.Length() > 0 {
				childClass := strings.ToLower(attrOr(child, "class"))
				childAlt := strings.ToLower(attrOr(child, "alt"))
				for _, ip := range p.idPatterns {
					if ip.MatchString(childClass) || ip.MatchString(childAlt) {
						relevant = true
						break
					}
				}
			}
		}
		if !relevant {
			continue
		}

		full, err := base.Parse(href)
		if err != nil {
			continue
		}
		fullStr := full.String()
		if !p.domainRegex.MatchString(fullStr) {
			continue
		}
		if strings.Contains(href, "intent") || strings.Contains(href, "share") {
			continue
		}
		if p.name == "instagram" && strings.Contains(href, "/p/") {
			continue
		}
		good[fullStr] = struct{}{}
	}

	if len(good) == 0 {
		return ""
	}
	list := make([]string, 0, len(good))
	for u := range good {
		list = append(list, u)
	}
	sort.Slice(list, func(i, j int) bool { return len(list[i]) < len(list[j]) })
	return list[0]
}

func attrOr(sel *goquery.Selection, name string) string {
	v, _ := sel.Attr(name)
	return v
}

func fetchAndClean(ctx context.Context, client *http.Client, target, userAgent string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return ""
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	resp, err := client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return ""
	}
	doc.Find("script, style, nav, footer, header, aside").Remove()
	return strings.TrimSpace(doc.Text())
}
