package summarize

import (
	"testing"

	"brandscan/internal/model"
)

func TestBuildDiscoverySummaryExtractsTopThemesSortedByConfidence(t *testing.T) {
	results := map[model.AnalysisKey]*model.AnalysisResult{
		model.KeyPositioningThemes: {
			Key: model.KeyPositioningThemes,
			Payload: map[string]any{
				"themes": []any{
					map[string]any{"theme": "low", "confidence": float64(40)},
					map[string]any{"theme": "high", "confidence": float64(90)},
					map[string]any{"theme": "mid", "confidence": float64(60)},
				},
			},
		},
	}
	got := BuildDiscoverySummary(results)
	if len(got.TopThemes) != 3 {
		t.Fatalf("expected 3 themes, got %d", len(got.TopThemes))
	}
	if got.TopThemes[0].Theme != "high" {
		t.Fatalf("expected highest-confidence theme first, got %s", got.TopThemes[0].Theme)
	}
}

func TestBuildQuantitativeSummaryBucketsScores(t *testing.T) {
	results := map[model.AnalysisKey]*model.AnalysisResult{
		model.KeyEmotion:     {Payload: map[string]any{"score": float64(5)}},
		model.KeyAttention:   {Payload: map[string]any{"score": float64(1)}},
		model.KeyStory:       {Payload: map[string]any{"score": float64(3)}},
		model.KeyInvolvement: {Payload: map[string]any{"score": float64(4)}},
		model.KeyRepetition:  {Payload: map[string]any{"score": float64(2)}},
		model.KeyConsistency: {Payload: map[string]any{"score": float64(3)}},
	}
	q := BuildQuantitativeSummary(results)
	if q.Strong != 2 || q.Weak != 2 || q.Neutral != 2 {
		t.Fatalf("expected 2/2/2 split, got %+v", q)
	}
}

func TestSynthesizeDiagnosisFallsBackWithoutLLM(t *testing.T) {
	results := map[model.AnalysisKey]*model.AnalysisResult{
		model.KeyEmotion: {Payload: map[string]any{"score": float64(5)}},
	}
	got := SynthesizeDiagnosis(nil, Deps{LLM: nil, PromptVersion: "v1"}, results)
	if got.Summary == "" {
		t.Fatalf("expected non-empty fallback summary")
	}
}
