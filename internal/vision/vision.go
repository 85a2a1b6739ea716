// Package vision implements the Vision Analyzer (C13): a size-gated,
// multimodal pass over up to five homepage screenshots that produces
// brand_elements and, when positioning themes are available,
// visual_text_alignment.
package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"brandscan/internal/cache"
	"brandscan/internal/llm"
	"brandscan/internal/model"
	"brandscan/internal/scheduler"
	"brandscan/internal/schema"
)

// minScreenshotBytes gates out screenshots too small to carry useful
// visual signal (e.g. blank/error pages), decoded-byte count.
const minScreenshotBytes = 10 * 1024

const maxScreenshotsPerCall = 5

// Deps mirrors analyzer.Deps for the vision pipeline's collaborators.
type Deps struct {
	Cache         *cache.Store
	Scheduler     *scheduler.Scheduler
	LLM           *llm.Client
	PromptVersion string
	WaitTimeout   time.Duration
}

// usableScreenshots filters out undersized screenshots and caps the
// remainder at maxScreenshotsPerCall.
func usableScreenshots(shots []*model.Screenshot) []*model.Screenshot {
	var usable []*model.Screenshot
	for _, s := range shots {
		if s == nil || len(s.Bytes) < minScreenshotBytes {
			continue
		}
		usable = append(usable, s)
		if len(usable) >= maxScreenshotsPerCall {
			break
		}
	}
	return usable
}

func toImageInputs(shots []*model.Screenshot) []llm.ImageInput {
	images := make([]llm.ImageInput, 0, len(shots))
	for _, s := range shots {
		images = append(images, llm.ImageInput{
			Base64: base64.StdEncoding.EncodeToString(s.Bytes),
			MIME:   s.MIME,
		})
	}
	return images
}

func buildBrandElementsPrompt(promptVersion, textSummary string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "PROMPT_VERSION: %s\n", promptVersion)
	b.WriteString("TASK: Examine the attached homepage screenshots and describe the brand's visual identity. ")
	b.WriteString("Respond with a single JSON object matching the brand_elements schema exactly, with no extra commentary.\n")
	if textSummary != "" {
		b.WriteString("TEXT CONTEXT:\n")
		b.WriteString(textSummary)
	}
	return b.String()
}

func buildAlignmentPrompt(promptVersion, themesSummary, brandElementsSummary string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "PROMPT_VERSION: %s\n", promptVersion)
	b.WriteString("TASK: Judge whether the attached screenshots visually reinforce the brand's stated positioning. ")
	b.WriteString("Respond with a single JSON object matching the visual_text_alignment schema exactly, with no extra commentary.\n")
	b.WriteString("TOP POSITIONING THEMES:\n")
	b.WriteString(themesSummary)
	b.WriteString("\nBRAND ELEMENTS SUMMARY:\n")
	b.WriteString(brandElementsSummary)
	return b.String()
}

// AnalyzeBrandElements runs the brand_elements multimodal call. It
// returns nil, nil if no screenshot clears the size gate (the caller
// should skip emitting the key rather than degrade it).
func AnalyzeBrandElements(ctx context.Context, deps Deps, shots []*model.Screenshot, textSummary, traceID string) (*model.AnalysisResult, error) {
	usable := usableScreenshots(shots)
	if len(usable) == 0 {
		return nil, nil
	}

	prompt := buildBrandElementsPrompt(deps.PromptVersion, textSummary)
	fp := screenshotFingerprint(usable, prompt, string(model.KeyBrandElements), deps.PromptVersion)

	if payload, hit := deps.Cache.Get(ctx, model.KeyBrandElements, fp); hit {
		return &model.AnalysisResult{
			Key:     model.KeyBrandElements,
			Payload: payload,
			Metrics: model.AnalysisMetrics{ValidationStatus: model.ValidationSuccess, TraceID: traceID, CacheHit: true},
		}, nil
	}

	images := toImageInputs(usable)
	tokens := llm.EstimateTokens(prompt) + len(images)*800
	ok, err := deps.Scheduler.Acquire(ctx, tokens, deps.WaitTimeout)
	if err != nil || !ok {
		return degraded(model.KeyBrandElements, textSummary, traceID, "scheduler exhausted"), nil
	}
	defer deps.Scheduler.Release()

	raw, _, err := deps.LLM.ChooseAndCallVision(ctx, string(model.KeyBrandElements), prompt, images, "", false)
	if err != nil {
		return degraded(model.KeyBrandElements, textSummary, traceID, err.Error()), nil
	}

	parsed, _, parseErr := schema.Parse(raw)
	if parseErr != nil {
		return degraded(model.KeyBrandElements, textSummary, traceID, parseErr.Error()), nil
	}
	validated, err := schema.ValidateAndRepair(model.KeyBrandElements, parsed)
	if err != nil {
		return degraded(model.KeyBrandElements, textSummary, traceID, err.Error()), nil
	}

	deps.Cache.Set(ctx, model.KeyBrandElements, fp, validated.Payload)
	return &model.AnalysisResult{
		Key:     model.KeyBrandElements,
		Payload: validated.Payload,
		Metrics: model.AnalysisMetrics{ValidationStatus: model.ValidationSuccess, Repairs: validated.Repairs, TraceID: traceID},
	}, nil
}

// AnalyzeVisualTextAlignment runs the visual_text_alignment call using
// a compact summary of the top positioning themes plus the brand
// elements result, when available.
func AnalyzeVisualTextAlignment(ctx context.Context, deps Deps, shots []*model.Screenshot, themesSummary, brandElementsSummary, traceID string) (*model.AnalysisResult, error) {
	usable := usableScreenshots(shots)
	if len(usable) == 0 {
		return nil, nil
	}

	prompt := buildAlignmentPrompt(deps.PromptVersion, themesSummary, brandElementsSummary)
	fp := screenshotFingerprint(usable, prompt, string(model.KeyVisualTextAlignment), deps.PromptVersion)

	if payload, hit := deps.Cache.Get(ctx, model.KeyVisualTextAlignment, fp); hit {
		return &model.AnalysisResult{
			Key:     model.KeyVisualTextAlignment,
			Payload: payload,
			Metrics: model.AnalysisMetrics{ValidationStatus: model.ValidationSuccess, TraceID: traceID, CacheHit: true},
		}, nil
	}

	images := toImageInputs(usable)
	tokens := llm.EstimateTokens(prompt) + len(images)*800
	ok, err := deps.Scheduler.Acquire(ctx, tokens, deps.WaitTimeout)
	if err != nil || !ok {
		return degraded(model.KeyVisualTextAlignment, themesSummary, traceID, "scheduler exhausted"), nil
	}
	defer deps.Scheduler.Release()

	raw, _, err := deps.LLM.ChooseAndCallVision(ctx, string(model.KeyVisualTextAlignment), prompt, images, "", false)
	if err != nil {
		return degraded(model.KeyVisualTextAlignment, themesSummary, traceID, err.Error()), nil
	}

	parsed, _, parseErr := schema.Parse(raw)
	if parseErr != nil {
		return degraded(model.KeyVisualTextAlignment, themesSummary, traceID, parseErr.Error()), nil
	}
	validated, err := schema.ValidateAndRepair(model.KeyVisualTextAlignment, parsed)
	if err != nil {
		return degraded(model.KeyVisualTextAlignment, themesSummary, traceID, err.Error()), nil
	}

	deps.Cache.Set(ctx, model.KeyVisualTextAlignment, fp, validated.Payload)
	return &model.AnalysisResult{
		Key:     model.KeyVisualTextAlignment,
		Payload: validated.Payload,
		Metrics: model.AnalysisMetrics{ValidationStatus: model.ValidationSuccess, Repairs: validated.Repairs, TraceID: traceID},
	}, nil
}

func degraded(key model.AnalysisKey, excerpt, traceID, reason string) *model.AnalysisResult {
	if len(excerpt) > 280 {
		excerpt = excerpt[:280]
	}
	return &model.AnalysisResult{
		Key:     key,
		Payload: schema.DegradedFallback(key, excerpt),
		Metrics: model.AnalysisMetrics{
			ValidationStatus: model.ValidationDegraded,
			Repairs:          []string{"degraded fallback: " + reason},
			TraceID:          traceID,
		},
	}
}

// screenshotFingerprint extends cache.Fingerprint with each
// screenshot's cache id so distinct homepage captures are never
// conflated, since raw image bytes are too large to hash inline here.
func screenshotFingerprint(shots []*model.Screenshot, prompt, schemaName, promptVersion string) string {
	var ids strings.Builder
	for _, s := range shots {
		ids.WriteString(s.CacheID)
		ids.WriteString(";")
	}
	return cache.Fingerprint(ids.String(), prompt, schemaName, promptVersion)
}
