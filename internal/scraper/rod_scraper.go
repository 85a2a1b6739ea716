package scraper

import (
	"context"
	"fmt"
	"time"

	htmlmd "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"brandscan/internal/model"
)

// consentLabels are the localized accept-cookies button labels the
// consent-dismissal pass looks for.
var consentLabels = []string{
	"Accept", "I agree", "Alle akzeptieren", "Zustimmen", "Allow all", "Accept all",
}

const (
	scrollStepPx   = 800
	scrollMaxSteps = 50
	scrollInterval = 120 * time.Millisecond
)

// readinessScript polls until images are loaded, fonts are ready, and
// no skeleton/aria-busy placeholder remains on the page.
const readinessScript = `() => {
	const imgs = Array.from(document.images);
	const imagesReady = imgs.every(img => img.complete && img.naturalWidth > 0);
	const fontsReady = !document.fonts || document.fonts.status === 'loaded';
	const skeletons = document.querySelectorAll('[class*=skeleton],[data-skeleton],[aria-busy="true"]');
	return imagesReady && fontsReady && skeletons.length === 0;
}`

// BrowserStrategy is the headless-browser fallback stage of the
// Fetcher cascade. It renders a page, dismisses cookie-consent
// dialogs, scrolls it into a steady state, waits for a strict
// readiness signal (falling back to a network-idle heuristic), and
// optionally captures a full-page screenshot.
type BrowserStrategy struct {
	ScrollSteps  int
	ReadinessCap time.Duration
	NetworkIdle  time.Duration
}

// NewBrowserStrategy builds a browser strategy with the given
// readiness timeout and scroll-step cap (clamped to scrollMaxSteps).
func NewBrowserStrategy(readinessCap time.Duration, scrollSteps int) *BrowserStrategy {
	if scrollSteps <= 0 || scrollSteps > scrollMaxSteps {
		scrollSteps = scrollMaxSteps
	}
	return &BrowserStrategy{
		ScrollSteps:  scrollSteps,
		ReadinessCap: readinessCap,
		NetworkIdle:  20 * time.Second,
	}
}

// newLocalRodBrowser launches a local Chromium instance inside this
// container using Rod's launcher and connects to it.
func newLocalRodBrowser(ctx context.Context, timeout time.Duration) (*rod.Browser, error) {
	var l *launcher.Launcher
	if path, has := launcher.LookPath(); has {
		l = launcher.New().Bin(path)
	} else {
		l = launcher.New()
	}
	l = l.Headless(true).NoSandbox(true)

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(u).Context(ctx).Timeout(timeout)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	return browser, nil
}

func (s *BrowserStrategy) Fetch(ctx context.Context, req Request) (*Result, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 75 * time.Second
	}

	browser, err := newLocalRodBrowser(ctx, timeout)
	if err != nil {
		return nil, err
	}
	defer func() { _ = browser.Close() }()

	page, err := browser.Page(proto.TargetCreateTarget{URL: req.URL})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer func() { _ = page.Close() }()

	if req.UserAgent != "" {
		_ = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: req.UserAgent})
	}

	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}

	s.dismissConsent(page)
	s.scrollThrough(page)
	if !s.waitReady(page) {
		_ = page.Timeout(s.networkIdleCap()).WaitIdle(s.networkIdleCap())
	}

	var shot *model.Screenshot
	if req.WantScreenshot {
		shot = s.captureScreenshot(page, req.FullPageShot)
	}

	htmlStr, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("read html: %w", err)
	}

	converter := htmlmd.NewConverter("", true, nil)
	markdown, _ := converter.ConvertString(htmlStr)

	return &Result{HTML: htmlStr, Markdown: markdown, Screenshot: shot, Engine: "browser"}, nil
}

func (s *BrowserStrategy) dismissConsent(page *rod.Page) {
	for _, label := range consentLabels {
		el, err := page.Timeout(500*time.Millisecond).ElementR("button, a", label)
		if err != nil || el == nil {
			continue
		}
		_ = el.Click(proto.InputMouseButtonLeft, 1)
		time.Sleep(200 * time.Millisecond)
		return
	}
}

func (s *BrowserStrategy) scrollThrough(page *rod.Page) {
	steps := s.ScrollSteps
	if steps <= 0 {
		steps = scrollMaxSteps
	}
	for i := 0; i < steps; i++ {
		if _, err := page.Eval(fmt.Sprintf(`() => window.scrollBy(0, %d)`, scrollStepPx)); err != nil {
			break
		}
		time.Sleep(scrollInterval)
	}
	_, _ = page.Eval(`() => window.scrollTo(0, 0)`)
}

func (s *BrowserStrategy) waitReady(page *rod.Page) bool {
	cap := s.ReadinessCap
	if cap <= 0 {
		cap = 15 * time.Second
	}
	deadline := time.Now().Add(cap)
	for time.Now().Before(deadline) {
		res, err := page.Eval(readinessScript)
		if err == nil && res != nil && res.Value.Bool() {
			return true
		}
		time.Sleep(200 * time.Millisecond)
	}
	return false
}

func (s *BrowserStrategy) networkIdleCap() time.Duration {
	if s.NetworkIdle <= 0 {
		return 20 * time.Second
	}
	return s.NetworkIdle
}

// captureScreenshot takes a JPEG (quality ~70) screenshot of the
// current viewport, or the full scrollable page when fullPage is set.
func (s *BrowserStrategy) captureScreenshot(page *rod.Page, fullPage bool) *model.Screenshot {
	opts := &proto.PageCaptureScreenshot{
		Format:  proto.PageCaptureScreenshotFormatJpeg,
		Quality: intPtr(70),
	}
	if fullPage {
		metrics, err := page.Eval(`() => ({w: document.documentElement.scrollWidth, h: document.documentElement.scrollHeight})`)
		if err == nil && metrics != nil {
			w := metrics.Value.Get("w").Int()
			h := metrics.Value.Get("h").Int()
			if w > 0 && h > 0 {
				opts.Clip = &proto.PageViewport{X: 0, Y: 0, Width: float64(w), Height: float64(h), Scale: 1}
			}
		}
	}
	data, err := page.Screenshot(fullPage, opts)
	if err != nil || len(data) == 0 {
		return nil
	}
	return &model.Screenshot{Bytes: data, MIME: "image/jpeg"}
}

func intPtr(v int) *int { return &v }

// CaptureScreenshot opens a fresh browser page for targetURL, runs the
// same consent/scroll/readiness pipeline as Fetch, and returns a
// screenshot. The scan pipeline does not call it; its screenshots come
// from Fetch.
func CaptureScreenshot(ctx context.Context, targetURL string, timeout time.Duration, fullPage bool) (*model.Screenshot, error) {
	browser, err := newLocalRodBrowser(ctx, timeout)
	if err != nil {
		return nil, err
	}
	defer func() { _ = browser.Close() }()

	page, err := browser.Page(proto.TargetCreateTarget{URL: targetURL})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer func() { _ = page.Close() }()
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}

	strategy := &BrowserStrategy{ReadinessCap: 10 * time.Second}
	strategy.dismissConsent(page)
	strategy.scrollThrough(page)
	strategy.waitReady(page)

	shot := strategy.captureScreenshot(page, fullPage)
	if shot == nil {
		return nil, fmt.Errorf("screenshot: empty result for %s", targetURL)
	}
	return shot, nil
}
