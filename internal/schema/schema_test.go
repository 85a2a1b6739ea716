package schema

import (
	"testing"

	"brandscan/internal/model"
)

func TestRepairJSONSyntax(t *testing.T) {
	raw := `{'themes': [{'theme': 'Bold', 'confidence': 80,}]}`
	repaired := RepairJSONSyntax(raw)
	if _, _, err := Parse(repaired); err != nil {
		t.Fatalf("Parse(repaired) failed: %v", err)
	}
}

func TestValidatePositioningThemesCoercesAndClamps(t *testing.T) {
	in := map[string]any{
		"themes": []any{
			map[string]any{
				"theme":           "Bold innovation",
				"description":     "We lead with innovation.",
				"evidence_quotes": []any{"we are the future"},
				"confidence":      "150",
			},
		},
	}
	res, err := ValidateAndRepair(model.KeyPositioningThemes, in)
	if err != nil {
		t.Fatalf("ValidateAndRepair: %v", err)
	}
	themes := res.Payload["themes"].([]any)
	theme := themes[0].(map[string]any)
	if theme["confidence"].(int) != 100 {
		t.Fatalf("confidence not clamped: got %v", theme["confidence"])
	}
	if len(res.Repairs) == 0 {
		t.Fatal("expected repairs to be logged for coerced confidence")
	}
}

func TestValidateKeyMessagesDropsInvalidItems(t *testing.T) {
	in := map[string]any{
		"key_messages": []any{
			map[string]any{"message": "Good", "context": "ctx", "type": "Tagline", "confidence": 90},
			map[string]any{"message": 123}, // invalid, should be dropped
		},
	}
	res, err := ValidateAndRepair(model.KeyKeyMessages, in)
	if err != nil {
		t.Fatalf("ValidateAndRepair: %v", err)
	}
	messages := res.Payload["key_messages"].([]any)
	if len(messages) != 1 {
		t.Fatalf("expected 1 surviving message, got %d", len(messages))
	}
}

func TestValidateFailsWhenArrayEmptyAfterPruning(t *testing.T) {
	in := map[string]any{
		"key_messages": []any{
			map[string]any{"message": 1},
		},
	}
	if _, err := ValidateAndRepair(model.KeyKeyMessages, in); err == nil {
		t.Fatal("expected validation failure when all items are pruned")
	}
}

func TestDegradedFallbackAlwaysLowConfidence(t *testing.T) {
	for _, key := range append(append([]model.AnalysisKey{}, model.DiscoveryKeys...), model.MemorabilityKeys...) {
		payload := DegradedFallback(key, "some excerpt of original content")
		res, err := ValidateAndRepair(key, payload)
		if err != nil {
			t.Fatalf("degraded fallback for %s failed validation: %v", key, err)
		}
		if c, ok := res.Payload["confidence"].(int); ok && c > 50 {
			t.Fatalf("degraded fallback confidence for %s = %d, want <=50", key, c)
		}
		if s, ok := res.Payload["score"].(int); ok && s > 5 {
			t.Fatalf("degraded fallback score for %s = %d out of range", key, s)
		}
	}
}
