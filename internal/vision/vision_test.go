package vision

import (
	"testing"

	"brandscan/internal/model"
)

func TestUsableScreenshotsFiltersUndersizedAndCaps(t *testing.T) {
	small := &model.Screenshot{Bytes: make([]byte, 100), MIME: "image/jpeg", CacheID: "small"}
	big := func(id string) *model.Screenshot {
		return &model.Screenshot{Bytes: make([]byte, minScreenshotBytes+1), MIME: "image/jpeg", CacheID: id}
	}
	shots := []*model.Screenshot{small, big("a"), big("b"), big("c"), big("d"), big("e"), big("f")}

	got := usableScreenshots(shots)
	if len(got) != maxScreenshotsPerCall {
		t.Fatalf("expected %d usable screenshots, got %d", maxScreenshotsPerCall, len(got))
	}
	for _, s := range got {
		if s.CacheID == "small" {
			t.Fatalf("expected undersized screenshot to be filtered out")
		}
	}
}

func TestAnalyzeBrandElementsSkipsWhenNoUsableScreenshot(t *testing.T) {
	res, err := AnalyzeBrandElements(nil, Deps{}, nil, "", "trace-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != nil {
		t.Fatalf("expected nil result when no screenshots clear the size gate")
	}
}

func TestScreenshotFingerprintDependsOnCacheID(t *testing.T) {
	a := []*model.Screenshot{{CacheID: "a"}}
	b := []*model.Screenshot{{CacheID: "b"}}
	if screenshotFingerprint(a, "p", "s", "v1") == screenshotFingerprint(b, "p", "s", "v1") {
		t.Fatalf("expected different screenshot sets to fingerprint differently")
	}
}
