package analyzer

import (
	"strings"
	"testing"

	"brandscan/internal/model"
)

func TestSanitizeStripsTagsAndEnforcesMinLength(t *testing.T) {
	raw := "<script>evil()</script><p>" + strings.Repeat("brand mission ", 10) + "</p>"
	got, ok := Sanitize(raw)
	if !ok {
		t.Fatalf("expected sanitized text to satisfy min length, got %q", got)
	}
	if strings.Contains(got, "<") || strings.Contains(got, "evil") {
		t.Fatalf("expected tags and script content stripped, got %q", got)
	}
}

func TestSanitizeRejectsShortInput(t *testing.T) {
	_, ok := Sanitize("<p>too short</p>")
	if ok {
		t.Fatalf("expected short input to fail minimum length check")
	}
}

func TestPreselectPrefersKeywordRichChunks(t *testing.T) {
	filler := strings.Repeat("lorem ipsum filler sentence. ", 400)
	signal := "Our positioning differentiates us as the market leader in this category. "
	text := filler + signal + filler

	out, metrics := Preselect(model.KeyPositioningThemes, text)
	if metrics.TotalChunks < 2 {
		t.Fatalf("expected text to be split into multiple chunks, got %d", metrics.TotalChunks)
	}
	if !strings.Contains(out, "differentiates") {
		t.Fatalf("expected keyword-rich chunk to be selected, got preview: %q", out[:min(200, len(out))])
	}
}

func TestBuildPromptIncludesQuoteRuleForToneOfVoice(t *testing.T) {
	p := BuildPrompt(model.KeyToneOfVoice, "v1", "some input text")
	if !strings.Contains(p, "5 to 25 words") {
		t.Fatalf("expected tone_of_voice prompt to require verbatim quotes, got %q", p)
	}
	other := BuildPrompt(model.KeyKeyMessages, "v1", "some input text")
	if strings.Contains(other, "5 to 25 words") {
		t.Fatalf("did not expect quote rule for key_messages prompt")
	}
}

func TestDegradedResultNeverNilAndLowConfidence(t *testing.T) {
	res := degradedResult(model.KeyEmotion, strings.Repeat("x", 500), "trace-1", "simulated failure")
	if res == nil || res.Payload == nil {
		t.Fatalf("expected non-nil degraded payload")
	}
	if res.Metrics.ValidationStatus != model.ValidationDegraded {
		t.Fatalf("expected degraded_fallback status, got %s", res.Metrics.ValidationStatus)
	}
	if c, ok := res.Payload["confidence"].(int); !ok || c > 50 {
		t.Fatalf("expected low integer confidence, got %v", res.Payload["confidence"])
	}
}
