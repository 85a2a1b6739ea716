package cache

import (
	"context"
	"testing"
	"time"

	"brandscan/internal/model"
)

func TestFingerprintDeterministic(t *testing.T) {
	a := Fingerprint("text", "prompt", "positioning_themes", "1.0.0")
	b := Fingerprint("text", "prompt", "positioning_themes", "1.0.0")
	if a != b {
		t.Fatal("Fingerprint is not deterministic for identical inputs")
	}
	c := Fingerprint("text", "prompt", "positioning_themes", "1.0.1")
	if a == c {
		t.Fatal("Fingerprint did not change when prompt_version changed")
	}
}

func TestStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, time.Hour, nil)
	ctx := context.Background()
	fp := Fingerprint("t", "p", "positioning_themes", "1.0.0")

	if _, ok := s.Get(ctx, model.KeyPositioningThemes, fp); ok {
		t.Fatal("expected cache miss before any write")
	}

	payload := map[string]any{"themes": []any{"x"}}
	s.Set(ctx, model.KeyPositioningThemes, fp, payload)

	got, ok := s.Get(ctx, model.KeyPositioningThemes, fp)
	if !ok {
		t.Fatal("expected cache hit after write")
	}
	if got["themes"] == nil {
		t.Fatal("round-tripped payload missing themes")
	}
}

func TestStoreExpiresAfterTTL(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, 10*time.Millisecond, nil)
	ctx := context.Background()
	fp := Fingerprint("t", "p", "key_messages", "1.0.0")
	s.Set(ctx, model.KeyKeyMessages, fp, map[string]any{"key_messages": []any{"x"}})

	time.Sleep(30 * time.Millisecond)
	if _, ok := s.Get(ctx, model.KeyKeyMessages, fp); ok {
		t.Fatal("expected cache entry to expire after TTL")
	}
}

func TestScreenshotCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c := NewScreenshotCache(dir)
	shot := &model.Screenshot{Bytes: []byte("fakejpeg"), MIME: "image/jpeg"}
	c.Put("abc123", shot)

	got, ok := c.Get("abc123")
	if !ok {
		t.Fatal("expected screenshot hit after Put")
	}
	if string(got.Bytes) != "fakejpeg" {
		t.Fatalf("got bytes %q", got.Bytes)
	}
}
