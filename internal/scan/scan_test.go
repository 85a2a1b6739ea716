package scan

import (
	"testing"

	"brandscan/internal/model"
)

func TestScoreAndFilterDropsVetoedLinks(t *testing.T) {
	links := []model.DiscoveredLink{
		{URL: "https://example.com/about", AnchorText: "About"},
		{URL: "https://example.com/search?q=x", AnchorText: "Search"},
		{URL: "https://example.com/brand", AnchorText: "Brand"},
	}
	scored := scoreAndFilter(links)
	for _, s := range scored {
		if s.URL == "https://example.com/search?q=x" {
			t.Fatalf("expected vetoed search URL to be dropped")
		}
	}
	if len(scored) != 2 {
		t.Fatalf("expected 2 surviving links, got %d", len(scored))
	}
	if scored[0].Score < scored[1].Score {
		t.Fatalf("expected links sorted by descending score")
	}
}

func TestRegisterScreenshotAssignsAndStoresCacheID(t *testing.T) {
	stored := map[string]*model.Screenshot{}
	deps := Deps{PutShot: func(id string, shot *model.Screenshot) { stored[id] = shot }}
	out := make(chan model.Event, 2)

	shot := &model.Screenshot{MIME: "image/png", Bytes: []byte("fake")}
	id := registerScreenshot(deps, out, "scan-1", "https://example.com", shot)
	if id == "" {
		t.Fatalf("expected a non-empty cache id")
	}
	if shot.CacheID != id {
		t.Fatalf("expected shot.CacheID to be set to the returned id")
	}
	if stored[id] != shot {
		t.Fatalf("expected PutShot to be called with the generated id")
	}
	ev := <-out
	if ev.Kind != model.EventScreenshotReady || ev.ID != id {
		t.Fatalf("expected a screenshot_ready event carrying the cache id, got %+v", ev)
	}

	if registerScreenshot(deps, out, "scan-1", "https://example.com", nil) != "" {
		t.Fatalf("expected nil screenshot to return empty id")
	}
}

func TestEmitNeverBlocksOnActivityOverflow(t *testing.T) {
	out := make(chan model.Event, 1)
	out <- model.Event{Kind: model.EventActivity}
	emit(out, model.Event{Kind: model.EventActivity, Message: "dropped"})
	got := <-out
	if got.Message == "dropped" {
		t.Fatalf("expected the second activity event to be dropped when the channel is full")
	}
}
