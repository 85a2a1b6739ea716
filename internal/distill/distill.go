// Package distill implements the Distiller (C5): strips boilerplate
// and retains a bounded structural summary of each page, then
// assembles the Corpus (§4.5).
package distill

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"brandscan/internal/model"
)

const minDistillateChars = 50

// Page distills a single page's HTML into the `=== url === ... `
// block format described in §4.5. It returns "" if the result would
// be shorter than minDistillateChars, signalling the caller to drop
// the page.
func Page(pageURL, html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	doc.Find("script, style, nav, footer, header, noscript").Remove()

	var b strings.Builder

	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		b.WriteString("TITLE: ")
		b.WriteString(collapseSpace(title))
		b.WriteString("\n")
	}

	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		b.WriteString("H1: ")
		b.WriteString(collapseSpace(h1))
		b.WriteString("\n")
	}

	doc.Find("h2").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		if i >= 3 {
			return false
		}
		if text := strings.TrimSpace(sel.Text()); text != "" {
			b.WriteString("H2: ")
			b.WriteString(collapseSpace(text))
			b.WriteString("\n")
		}
		return true
	})

	doc.Find("p").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		if i >= 3 {
			return false
		}
		if text := strings.TrimSpace(sel.Text()); text != "" {
			b.WriteString(collapseSpace(text))
			b.WriteString("\n")
		}
		return true
	})

	doc.Find("ul").EachWithBreak(func(ulIdx int, ul *goquery.Selection) bool {
		if ulIdx >= 2 {
			return false
		}
		ul.Find("li").EachWithBreak(func(liIdx int, li *goquery.Selection) bool {
			if liIdx >= 5 {
				return false
			}
			if text := strings.TrimSpace(li.Text()); text != "" {
				b.WriteString("- ")
				b.WriteString(collapseSpace(text))
				b.WriteString("\n")
			}
			return true
		})
		return true
	})

	body := strings.TrimSpace(b.String())
	if len(body) < minDistillateChars {
		return ""
	}

	return "=== " + pageURL + " ===\n" + body
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// AssembleCorpus concatenates page distillates in selection order,
// appends the social distillate, and truncates to the corpus cap
// (§4.5). Whole blocks are kept while they fit; the first block that
// would overflow the cap is cut at the remaining space, and every block
// after it is dropped.
func AssembleCorpus(pages []string, social string, maxChars int) model.Corpus {
	blocks := make([]string, 0, len(pages)+1)
	blocks = append(blocks, pages...)
	if social != "" {
		blocks = append(blocks, social)
	}

	var kept []string
	total := 0
	for _, blk := range blocks {
		sep := 0
		if len(kept) > 0 {
			sep = 2 // "\n\n" joiner
		}
		if total+sep+len(blk) > maxChars {
			remaining := maxChars - total - sep
			if remaining > 0 {
				kept = append(kept, blk[:remaining])
				total = maxChars
			}
			break
		}
		kept = append(kept, blk)
		total += sep + len(blk)
	}

	return model.Corpus{
		Text:      strings.Join(kept, "\n\n"),
		PageCount: len(pages),
		HasSocial: social != "",
	}
}
