// Package selector implements the Page Selector (C4): homepage seed,
// high-signal core-page seeding, a single PDF allowance, and
// shingled-Jaccard novelty expansion, per §4.4.
package selector

import (
	"regexp"
	"sort"
	"strings"

	"brandscan/internal/urlpolicy"
)

const shingleK = 12

var highSignalRe = regexp.MustCompile(`(?i)/about|/company|/our-story|/strategy|/vision|/mission|/products|/solutions|/platform|/services|/industries|/segments|/careers|/culture|/investors|/esg|/press|/news|/sustainability`)

var pdfOverviewRe = regexp.MustCompile(`(?i)(overview|brand|corporate)`)

// Candidate is a scored link paired with the distillate its page
// produced, so novelty expansion can compute shingles without
// re-fetching.
type Candidate struct {
	URL        string
	Score      int
	Distillate string
}

func isHighSignal(url string) bool {
	return highSignalRe.MatchString(url)
}

func isPDF(url string) bool {
	return strings.HasSuffix(strings.ToLower(url), ".pdf")
}

// Select implements the four-step policy of §4.4. homepageURL is
// always included first (its distillate, if any, is supplied by the
// caller via candidates if it was scored alongside everything else;
// Select does not re-fetch it). candidates must already exclude the
// homepage.
func Select(homepageURL string, candidates []Candidate, seedHighSignal, maxPages int, noveltyThreshold float64) []string {
	selected := []string{homepageURL}
	globalShingles := make(map[string]struct{})

	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sortByTieBreak(sorted)

	usedPDF := false
	core := make([]Candidate, 0, seedHighSignal)
	rest := make([]Candidate, 0, len(sorted))

	for _, c := range sorted {
		if len(core) >= seedHighSignal {
			rest = append(rest, c)
			continue
		}
		if urlpolicy.IsLocaleVariant(c.URL) {
			rest = append(rest, c)
			continue
		}
		if isPDF(c.URL) {
			if !usedPDF && pdfOverviewRe.MatchString(c.URL) {
				core = append(core, c)
				usedPDF = true
			} else {
				rest = append(rest, c)
			}
			continue
		}
		if isHighSignal(c.URL) {
			core = append(core, c)
			continue
		}
		rest = append(rest, c)
	}

	for _, c := range core {
		selected = append(selected, c.URL)
		addShingles(globalShingles, c.Distillate)
	}

	trailingNovelty := make([]float64, 0, 3)
	for _, c := range rest {
		if len(selected) >= maxPages {
			break
		}
		if isPDF(c.URL) && (usedPDF || !pdfOverviewRe.MatchString(c.URL)) {
			continue
		}
		s := shingles(c.Distillate)
		novelty := jaccardDistance(s, globalShingles)
		if novelty >= noveltyThreshold {
			selected = append(selected, c.URL)
			mergeInto(globalShingles, s)
			if isPDF(c.URL) {
				usedPDF = true
			}
			trailingNovelty = append(trailingNovelty, novelty)
		} else {
			trailingNovelty = append(trailingNovelty, novelty)
		}
		if len(trailingNovelty) >= 3 {
			last3 := trailingNovelty[len(trailingNovelty)-3:]
			mean := (last3[0] + last3[1] + last3[2]) / 3
			if mean < noveltyThreshold {
				break
			}
		}
	}

	return selected
}

func sortByTieBreak(c []Candidate) {
	sort.SliceStable(c, func(i, j int) bool {
		if c[i].Score != c[j].Score {
			return c[i].Score > c[j].Score
		}
		di, dj := pathDepth(c[i].URL), pathDepth(c[j].URL)
		if di != dj {
			return di < dj
		}
		return c[i].URL < c[j].URL
	})
}

func pathDepth(url string) int {
	return strings.Count(url, "/")
}

// shingles computes the set of k-word shingles of a distillate.
func shingles(text string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(text))
	out := make(map[string]struct{})
	if len(words) < shingleK {
		if len(words) > 0 {
			out[strings.Join(words, " ")] = struct{}{}
		}
		return out
	}
	for i := 0; i+shingleK <= len(words); i++ {
		out[strings.Join(words[i:i+shingleK], " ")] = struct{}{}
	}
	return out
}

func addShingles(global map[string]struct{}, text string) {
	mergeInto(global, shingles(text))
}

func mergeInto(global, s map[string]struct{}) {
	for k := range s {
		global[k] = struct{}{}
	}
}

// jaccardDistance returns 1 - |S ∩ G| / |S ∪ G|, per GLOSSARY. An
// empty candidate shingle set is maximally novel (distance 1) only
// when the global set is also empty; otherwise it has no content to
// judge, so it is treated as non-novel (distance 0) to avoid
// admitting empty pages as "novel".
func jaccardDistance(s, g map[string]struct{}) float64 {
	if len(s) == 0 {
		if len(g) == 0 {
			return 1
		}
		return 0
	}
	if len(g) == 0 {
		return 1
	}
	inter := 0
	for k := range s {
		if _, ok := g[k]; ok {
			inter++
		}
	}
	union := len(s) + len(g) - inter
	if union == 0 {
		return 0
	}
	return 1 - float64(inter)/float64(union)
}
