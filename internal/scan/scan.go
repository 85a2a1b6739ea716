// Package scan implements the Scan Orchestrator (C15): it sequences
// discovery, content extraction, brand synthesis, analysis, and
// summary, emitting a typed event stream as it goes.
package scan

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"brandscan/internal/analyzer"
	"brandscan/internal/config"
	"brandscan/internal/discover"
	"brandscan/internal/distill"
	"brandscan/internal/model"
	"brandscan/internal/scoring"
	"brandscan/internal/scraper"
	"brandscan/internal/selector"
	"brandscan/internal/social"
	"brandscan/internal/summarize"
	"brandscan/internal/urlpolicy"
	"brandscan/internal/vision"
)

// Deps bundles every collaborator the orchestrator wires together.
type Deps struct {
	Config    *config.Config
	Fetcher   *scraper.Fetcher
	Analyzer  analyzer.Deps
	Vision    vision.Deps
	Summarize summarize.Deps
	PutShot   func(id string, shot *model.Screenshot) // screenshot cache write
}

// Run executes a full scan and streams its events on the returned
// channel, closing it once a terminal complete/error event has been
// sent. ctx is checked before the homepage fetch, after link scoring
// and after corpus assembly; a cancellation seen at one of those points
// ends the stream with an error event whose message is "cancelled".
// A cancellation at any other point is not reported that way: a fetch
// or discovery step that fails ends the scan with its own error, and
// once analysis has begun the scan still emits its summary and
// complete events.
func Run(ctx context.Context, deps Deps, req model.ScanRequest) <-chan model.Event {
	out := make(chan model.Event, 64)
	go func() {
		defer close(out)
		runPhases(ctx, deps, req, out)
	}()
	return out
}

func emit(out chan<- model.Event, ev model.Event) {
	select {
	case out <- ev:
	default:
		if ev.Kind == model.EventActivity {
			return
		}
		out <- ev
	}
}

func status(out chan<- model.Event, scanID string, phase model.Phase, percent int, message string) {
	emit(out, model.Event{ScanID: scanID, Kind: model.EventStatus, Phase: phase, Percent: percent, Message: message})
}

func activity(out chan<- model.Event, scanID string, phase model.Phase, message string) {
	emit(out, model.Event{ScanID: scanID, Kind: model.EventActivity, Phase: phase, Message: message, Timestamp: time.Now().UnixMilli()})
}

func failScan(out chan<- model.Event, scanID string, err error) {
	emit(out, model.Event{ScanID: scanID, Kind: model.EventError, Error: err.Error()})
}

func hostnameOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Hostname()
}

// registerScreenshot assigns a screenshot its opaque cache id (if it
// doesn't already carry one, e.g. from a prior cached fetch), hands it
// to the screenshot cache so /screenshot/:id can later serve it, and
// emits the screenshot_ready event announcing it.
func registerScreenshot(deps Deps, out chan<- model.Event, scanID string, pageURL string, shot *model.Screenshot) string {
	if shot == nil {
		return ""
	}
	if shot.CacheID == "" {
		shot.CacheID = uuid.New().String()
	}
	if deps.PutShot != nil {
		deps.PutShot(shot.CacheID, shot)
	}
	emit(out, model.Event{ScanID: scanID, Kind: model.EventScreenshotReady, ID: shot.CacheID, URL: pageURL})
	return shot.CacheID
}

func runPhases(ctx context.Context, deps Deps, req model.ScanRequest, out chan<- model.Event) {
	cfg := deps.Config

	emit(out, model.Event{ScanID: req.ScanID, Kind: model.EventScanStarted, Mode: req.Mode, URL: req.SeedURL})

	// Phase 1: Discovery (10 -> 35).
	status(out, req.ScanID, model.PhaseDiscovery, 10, "validating seed URL")
	cleaned := urlpolicy.Clean(req.SeedURL)
	if err := urlpolicy.Validate(cleaned); err != nil {
		failScan(out, req.ScanID, err)
		return
	}
	if unsafe, err := urlpolicy.ResolvedIPsUnsafe(hostnameOf(cleaned)); err != nil {
		failScan(out, req.ScanID, fmt.Errorf("could not resolve seed URL hostname: %w", err))
		return
	} else if unsafe {
		failScan(out, req.ScanID, fmt.Errorf("seed URL hostname resolves to a private/loopback/link-local address"))
		return
	}

	if ctx.Err() != nil {
		failScan(out, req.ScanID, fmt.Errorf("cancelled"))
		return
	}

	activity(out, req.ScanID, model.PhaseDiscovery, "fetching homepage")
	homepage, err := deps.Fetcher.Fetch(ctx, scraper.Request{
		URL:            cleaned,
		Timeout:        time.Duration(cfg.Scraper.TimeoutMs) * time.Millisecond,
		UserAgent:      cfg.Scraper.UserAgent,
		WantScreenshot: true,
		FullPageShot:   false,
	})
	if err != nil {
		failScan(out, req.ScanID, fmt.Errorf("homepage fetch failed: %w", err))
		return
	}
	registerScreenshot(deps, out, req.ScanID, cleaned, homepage.Screenshot)

	status(out, req.ScanID, model.PhaseDiscovery, 20, "discovering links")
	links, err := discover.Discover(ctx, discover.Options{
		SeedURL:        cleaned,
		HomepageHTML:   homepage.HTML,
		UserAgent:      cfg.Scraper.UserAgent,
		Timeout:        time.Duration(cfg.Scraper.TimeoutMs) * time.Millisecond,
		RespectRobots:  cfg.Robots.Respect,
		MaxLinksParsed: cfg.Crawler.MaxLinksParsed,
	})
	if err != nil {
		failScan(out, req.ScanID, fmt.Errorf("link discovery failed: %w", err))
		return
	}

	status(out, req.ScanID, model.PhaseDiscovery, 30, "scoring links")
	scored := scoreAndFilter(links)
	activity(out, req.ScanID, model.PhaseDiscovery, fmt.Sprintf("%d candidate links after scoring", len(scored)))

	if ctx.Err() != nil {
		failScan(out, req.ScanID, fmt.Errorf("cancelled"))
		return
	}

	// Phase 2: Content Extraction (35 -> 65).
	status(out, req.ScanID, model.PhaseContentExtraction, 35, "fetching candidate pages")
	// selector.Select adds the homepage itself, so it is left out of the
	// candidate pool.
	pool := make([]model.ScoredLink, 0, len(scored))
	for _, l := range scored {
		if strings.TrimRight(l.URL, "/") != strings.TrimRight(cleaned, "/") {
			pool = append(pool, l)
		}
	}
	candidates := fetchCandidateDistillates(ctx, deps, cfg, pool)

	selected := selector.Select(cleaned, candidates, cfg.Discovery.SeedHighSignalPages, cfg.Discovery.MaxPages, cfg.Discovery.NoveltyThreshold)
	activity(out, req.ScanID, model.PhaseContentExtraction, fmt.Sprintf("%d pages selected for full extraction", len(selected)))

	status(out, req.ScanID, model.PhaseContentExtraction, 50, "extracting full page content")
	pages, screenshots := fetchSelectedPages(ctx, deps, out, req.ScanID, cfg, selected, homepage)

	status(out, req.ScanID, model.PhaseContentExtraction, 60, "harvesting social content")
	socialText, _ := social.Harvest(ctx, homepage.HTML, cleaned, cfg.Scraper.UserAgent)

	corpus := distill.AssembleCorpus(pages, socialText, cfg.Discovery.CorpusMaxChars)
	activity(out, req.ScanID, model.PhaseContentExtraction, fmt.Sprintf("corpus assembled: %d pages, %d chars", corpus.PageCount, len(corpus.Text)))

	if ctx.Err() != nil {
		failScan(out, req.ScanID, fmt.Errorf("cancelled"))
		return
	}

	traceID := req.ScanID

	if req.Mode == model.ModeDiscovery {
		runDiscoveryMode(ctx, deps, req, corpus.Text, screenshots, traceID, out)
		return
	}
	runDiagnosisMode(ctx, deps, req, corpus.Text, traceID, out)
}

func scoreAndFilter(links []model.DiscoveredLink) []model.ScoredLink {
	scored := make([]model.ScoredLink, 0, len(links))
	for _, l := range links {
		if scoring.IsVetoed(l.URL) {
			continue
		}
		scored = append(scored, model.ScoredLink{DiscoveredLink: l, Score: scoring.Score(l.URL, l.AnchorText)})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	return scored
}

// fetchCandidateDistillates fetches a bounded pool of the
// highest-scored candidates to produce the Distillate selector.Select
// needs for novelty comparison, without yet committing to full
// extraction (with screenshots) of every candidate.
func fetchCandidateDistillates(ctx context.Context, deps Deps, cfg *config.Config, scored []model.ScoredLink) []selector.Candidate {
	pool := scored
	poolCap := cfg.Discovery.MaxPages * 4
	if poolCap > 0 && len(pool) > poolCap {
		pool = pool[:poolCap]
	}

	sem := make(chan struct{}, cfg.Worker.PageFetchConcurrency)
	type indexed struct {
		idx int
		cnd selector.Candidate
	}
	results := make(chan indexed, len(pool))

	for i, l := range pool {
		i, l := i, l
		sem <- struct{}{}
		go func() {
			defer func() { <-sem }()
			res, err := deps.Fetcher.Fetch(ctx, scraper.Request{
				URL:       l.URL,
				Timeout:   time.Duration(cfg.Scraper.TimeoutMs) * time.Millisecond,
				UserAgent: cfg.Scraper.UserAgent,
			})
			if err != nil {
				results <- indexed{idx: i, cnd: selector.Candidate{URL: l.URL, Score: l.Score}}
				return
			}
			d := distill.Page(l.URL, res.HTML)
			results <- indexed{idx: i, cnd: selector.Candidate{URL: l.URL, Score: l.Score, Distillate: d}}
		}()
	}

	ordered := make([]selector.Candidate, len(pool))
	for range pool {
		r := <-results
		ordered[r.idx] = r.cnd
	}
	return ordered
}

// fetchSelectedPages fetches full content (distillate + screenshot) for
// every selected URL, reusing the already-fetched homepage where
// applicable.
func fetchSelectedPages(ctx context.Context, deps Deps, out chan<- model.Event, scanID string, cfg *config.Config, selected []string, homepage *scraper.Result) ([]string, []*model.Screenshot) {
	pages := make([]string, 0, len(selected))
	var screenshots []*model.Screenshot
	if homepage.Screenshot != nil {
		screenshots = append(screenshots, homepage.Screenshot)
	}

	sem := make(chan struct{}, cfg.Worker.PageFetchConcurrency)
	type indexed struct {
		idx  int
		text string
		shot *model.Screenshot
	}
	results := make(chan indexed, len(selected))

	for i, u := range selected {
		i, u := i, u
		if i == 0 {
			// homepage: already fetched above.
			results <- indexed{idx: i, text: distill.Page(u, homepage.HTML)}
			continue
		}
		sem <- struct{}{}
		go func() {
			defer func() { <-sem }()
			res, err := deps.Fetcher.Fetch(ctx, scraper.Request{
				URL:            u,
				Timeout:        time.Duration(cfg.Scraper.TimeoutMs) * time.Millisecond,
				UserAgent:      cfg.Scraper.UserAgent,
				WantScreenshot: i < 5,
			})
			if err != nil {
				results <- indexed{idx: i}
				return
			}
			results <- indexed{idx: i, text: distill.Page(u, res.HTML), shot: res.Screenshot}
		}()
	}

	ordered := make([]string, len(selected))
	for range selected {
		r := <-results
		if r.text != "" {
			ordered[r.idx] = r.text
		}
		if r.shot != nil {
			registerScreenshot(deps, out, scanID, selected[r.idx], r.shot)
			screenshots = append(screenshots, r.shot)
		}
	}
	for _, p := range ordered {
		if p != "" {
			pages = append(pages, p)
		}
	}
	return pages, screenshots
}

func runDiscoveryMode(ctx context.Context, deps Deps, req model.ScanRequest, corpusText string, screenshots []*model.Screenshot, traceID string, out chan<- model.Event) {
	status(out, req.ScanID, model.PhaseBrandSynthesis, 65, "analyzing visual identity")

	results := make(map[model.AnalysisKey]*model.AnalysisResult)

	// All three Discovery textual keys run concurrently; brand_elements
	// (vision) runs alongside them since it doesn't depend on any text
	// result. visual_text_alignment runs last because it wants a
	// compact summary of positioning_themes and brand_elements.
	status(out, req.ScanID, model.PhaseAnalysis, 75, "analyzing brand text")
	textualKeys := []model.AnalysisKey{model.KeyPositioningThemes, model.KeyKeyMessages, model.KeyToneOfVoice}

	brandElementsCh := make(chan *model.AnalysisResult, 1)
	go func() {
		brandElements, err := vision.AnalyzeBrandElements(ctx, deps.Vision, screenshots, corpusText, traceID)
		if err != nil {
			brandElements = nil
		}
		brandElementsCh <- brandElements
	}()

	for outcome := range analyzer.AnalyzeKeysParallel(ctx, deps.Analyzer, textualKeys, corpusText, traceID) {
		if outcome.Err != nil || outcome.Result == nil {
			continue
		}
		results[outcome.Key] = outcome.Result
		emit(out, model.Event{ScanID: req.ScanID, Kind: model.EventDiscoveryResult, Phase: model.PhaseAnalysis, Key: outcome.Key, Result: outcome.Result})
	}

	themesSummary := ""
	if themes, ok := results[model.KeyPositioningThemes]; ok && themes != nil {
		top := summarize.BuildDiscoverySummary(map[model.AnalysisKey]*model.AnalysisResult{model.KeyPositioningThemes: themes}).TopThemes
		if len(top) > 0 {
			themesSummary = fmt.Sprintf("%v", top)
		}
	}

	brandElements := <-brandElementsCh
	if brandElements != nil {
		results[model.KeyBrandElements] = brandElements
		emit(out, model.Event{ScanID: req.ScanID, Kind: model.EventDiscoveryResult, Phase: model.PhaseBrandSynthesis, Key: model.KeyBrandElements, Result: brandElements})

		if themesSummary != "" {
			alignment, err := vision.AnalyzeVisualTextAlignment(ctx, deps.Vision, screenshots, themesSummary, fmt.Sprintf("%v", brandElements.Payload["overall_impression"]), traceID)
			if err == nil && alignment != nil {
				results[model.KeyVisualTextAlignment] = alignment
				emit(out, model.Event{ScanID: req.ScanID, Kind: model.EventDiscoveryResult, Phase: model.PhaseBrandSynthesis, Key: model.KeyVisualTextAlignment, Result: alignment})
			}
		}
	}

	status(out, req.ScanID, model.PhaseSummary, 90, "assembling summary")
	summaryArtifact := summarize.BuildDiscoverySummary(results)
	emit(out, model.Event{ScanID: req.ScanID, Kind: model.EventSummary, Phase: model.PhaseSummary, Summary: summaryArtifact})

	emit(out, model.Event{ScanID: req.ScanID, Kind: model.EventComplete, Message: "scan complete", Timestamp: time.Now().UnixMilli()})
}

func runDiagnosisMode(ctx context.Context, deps Deps, req model.ScanRequest, corpusText, traceID string, out chan<- model.Event) {
	status(out, req.ScanID, model.PhaseBrandSynthesis, 65, "preparing memorability analysis")

	status(out, req.ScanID, model.PhaseAnalysis, 75, "scoring memorability keys")
	results := make(map[model.AnalysisKey]*model.AnalysisResult)
	for outcome := range analyzer.AnalyzeKeysParallel(ctx, deps.Analyzer, model.MemorabilityKeys, corpusText, traceID) {
		if outcome.Err != nil || outcome.Result == nil {
			continue
		}
		results[outcome.Key] = outcome.Result
		emit(out, model.Event{ScanID: req.ScanID, Kind: model.EventKeyResult, Phase: model.PhaseAnalysis, Key: outcome.Key, Result: outcome.Result})
	}

	quant := summarize.BuildQuantitativeSummary(results)
	emit(out, model.Event{ScanID: req.ScanID, Kind: model.EventQuantitativeSummary, Phase: model.PhaseAnalysis, Summary: quant})

	status(out, req.ScanID, model.PhaseSummary, 90, "synthesizing narrative")
	narrative := summarize.SynthesizeDiagnosis(ctx, deps.Summarize, results)
	emit(out, model.Event{ScanID: req.ScanID, Kind: model.EventSummary, Phase: model.PhaseSummary, Summary: narrative})

	emit(out, model.Event{ScanID: req.ScanID, Kind: model.EventComplete, Message: "scan complete", Timestamp: time.Now().UnixMilli()})
}
