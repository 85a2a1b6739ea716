// Package summarize implements the Summarizer (C14): deterministic
// Discovery artifact assembly (no LLM calls) and a single-call
// Diagnosis narrative synthesis over the memorability keys.
package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"brandscan/internal/llm"
	"brandscan/internal/model"
)

// DiscoverySummary is the deterministic artifact assembled from the
// five Discovery keys, once all have resolved (success or degraded).
type DiscoverySummary struct {
	TopThemes            []ThemeSummary   `json:"top_themes"`
	KeyMessages          []MessageSummary `json:"key_messages"`
	PrimaryTone          *ToneSummary     `json:"primary_tone,omitempty"`
	SecondaryTone        *ToneSummary     `json:"secondary_tone,omitempty"`
	BrandElementsSummary string           `json:"brand_elements_summary"`
	BrandKeywords        []string         `json:"brand_keywords"`
	CoherenceScore       int              `json:"coherence_score"`
	Alignment            string           `json:"alignment"`
	AlignmentJustif      string           `json:"alignment_justification"`
}

type ThemeSummary struct {
	Theme      string `json:"theme"`
	Confidence int    `json:"confidence_pct"`
}

type MessageSummary struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type ToneSummary struct {
	Tone  string `json:"tone"`
	Quote string `json:"quote"`
}

// BuildDiscoverySummary extracts the fixed-shape summary fields from
// the five validated Discovery payloads. Missing keys are tolerated:
// their sections are simply omitted/left zero-valued.
func BuildDiscoverySummary(results map[model.AnalysisKey]*model.AnalysisResult) DiscoverySummary {
	var out DiscoverySummary

	if r, ok := results[model.KeyPositioningThemes]; ok && r != nil {
		out.TopThemes = topThemes(r.Payload, 3)
	}
	if r, ok := results[model.KeyKeyMessages]; ok && r != nil {
		out.KeyMessages = topMessages(r.Payload, 4)
	}
	if r, ok := results[model.KeyToneOfVoice]; ok && r != nil {
		out.PrimaryTone, out.SecondaryTone = toneSummaries(r.Payload)
	}
	if r, ok := results[model.KeyBrandElements]; ok && r != nil {
		out.BrandElementsSummary, out.BrandKeywords, out.CoherenceScore = brandElementsSummary(r.Payload)
	}
	if r, ok := results[model.KeyVisualTextAlignment]; ok && r != nil {
		out.Alignment, out.AlignmentJustif = alignmentSummary(r.Payload)
	}
	return out
}

func topThemes(payload map[string]any, n int) []ThemeSummary {
	raw, _ := payload["themes"].([]any)
	type scored struct {
		theme      string
		confidence int
	}
	var all []scored
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		theme, _ := m["theme"].(string)
		conf := asInt(m["confidence"])
		all = append(all, scored{theme: theme, confidence: conf})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].confidence > all[j].confidence })
	if len(all) > n {
		all = all[:n]
	}
	out := make([]ThemeSummary, len(all))
	for i, s := range all {
		out[i] = ThemeSummary{Theme: s.theme, Confidence: s.confidence}
	}
	return out
}

func topMessages(payload map[string]any, n int) []MessageSummary {
	raw, _ := payload["key_messages"].([]any)
	var out []MessageSummary
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		msg, _ := m["message"].(string)
		typ, _ := m["type"].(string)
		out = append(out, MessageSummary{Message: msg, Type: typ})
		if len(out) >= n {
			break
		}
	}
	return out
}

func toneSummaries(payload map[string]any) (*ToneSummary, *ToneSummary) {
	var primary, secondary *ToneSummary
	if m, ok := payload["primary_tone"].(map[string]any); ok {
		tone, _ := m["tone"].(string)
		quote, _ := m["evidence_quote"].(string)
		primary = &ToneSummary{Tone: tone, Quote: quote}
	}
	if m, ok := payload["secondary_tone"].(map[string]any); ok {
		tone, _ := m["tone"].(string)
		quote, _ := m["evidence_quote"].(string)
		secondary = &ToneSummary{Tone: tone, Quote: quote}
	}
	return primary, secondary
}

func brandElementsSummary(payload map[string]any) (summary string, keywords []string, coherence int) {
	if m, ok := payload["overall_impression"].(map[string]any); ok {
		summary, _ = m["summary"].(string)
		if raw, ok := m["keywords"].([]any); ok {
			for _, k := range raw {
				if s, ok := k.(string); ok {
					keywords = append(keywords, s)
				}
			}
		}
	}
	coherence = asInt(payload["coherence_score"])
	return
}

func alignmentSummary(payload map[string]any) (string, string) {
	alignment, _ := payload["alignment"].(string)
	justification, _ := payload["justification"].(string)
	return alignment, justification
}

func asInt(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	default:
		return 0
	}
}

// QuantitativeSummary counts memorability key scores bucketed into
// strong (score>=4), weak (score<=2), and neutral (score==3), per the
// quantitative_summary event payload: keys_analyzed, strong_keys,
// weak_keys.
type QuantitativeSummary struct {
	KeysAnalyzed int `json:"keys_analyzed"`
	Strong       int `json:"strong_keys"`
	Weak         int `json:"weak_keys"`
	Neutral      int `json:"neutral_keys"`
}

// BuildQuantitativeSummary buckets the six memorability key results by
// their numeric score, per the reference scanner's tallying rule.
func BuildQuantitativeSummary(results map[model.AnalysisKey]*model.AnalysisResult) QuantitativeSummary {
	var q QuantitativeSummary
	for _, key := range model.MemorabilityKeys {
		r, ok := results[key]
		if !ok || r == nil {
			continue
		}
		q.KeysAnalyzed++
		score := asInt(r.Payload["score"])
		switch {
		case score >= 4:
			q.Strong++
		case score <= 2:
			q.Weak++
		default:
			q.Neutral++
		}
	}
	return q
}

// DiagnosisNarrative is the synthesized prose summary over the
// memorability keys.
type DiagnosisNarrative struct {
	Summary        string              `json:"summary"`
	Strengths      []string            `json:"strengths"`
	Weaknesses     []string            `json:"weaknesses"`
	StrategicFocus string              `json:"strategic_focus"`
	Quantitative   QuantitativeSummary `json:"quantitative_summary"`
}

// Deps bundles the LLM client needed for the single synthesis call.
type Deps struct {
	LLM           *llm.Client
	PromptVersion string
}

// SynthesizeDiagnosis issues the one narrative-synthesis LLM call over
// the six scored memorability keys and returns a best-effort narrative.
// On any failure it falls back to a deterministic narrative built
// purely from the quantitative tally, never erroring out the scan.
func SynthesizeDiagnosis(ctx context.Context, deps Deps, results map[model.AnalysisKey]*model.AnalysisResult) DiagnosisNarrative {
	quant := BuildQuantitativeSummary(results)

	if deps.LLM == nil {
		return fallbackNarrative(quant)
	}

	prompt := buildNarrativePrompt(deps.PromptVersion, results, quant)
	raw, _, err := deps.LLM.ChooseAndCall(ctx, "diagnosis_narrative", prompt, "", false)
	if err != nil {
		return fallbackNarrative(quant)
	}

	var parsed struct {
		Summary        string   `json:"summary"`
		Strengths      []string `json:"strengths"`
		Weaknesses     []string `json:"weaknesses"`
		StrategicFocus string   `json:"strategic_focus"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil || strings.TrimSpace(parsed.Summary) == "" {
		return fallbackNarrative(quant)
	}

	return DiagnosisNarrative{
		Summary:        parsed.Summary,
		Strengths:      parsed.Strengths,
		Weaknesses:     parsed.Weaknesses,
		StrategicFocus: parsed.StrategicFocus,
		Quantitative:   quant,
	}
}

func buildNarrativePrompt(promptVersion string, results map[model.AnalysisKey]*model.AnalysisResult, quant QuantitativeSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "PROMPT_VERSION: %s\n", promptVersion)
	b.WriteString("TASK: Synthesize a narrative summary of the brand's memorability across six dimensions. ")
	b.WriteString("Respond with a single JSON object with fields summary, strengths (array), weaknesses (array), strategic_focus.\n")
	fmt.Fprintf(&b, "QUANTITATIVE TALLY: strong=%d weak=%d neutral=%d\n", quant.Strong, quant.Weak, quant.Neutral)
	for _, key := range model.MemorabilityKeys {
		r, ok := results[key]
		if !ok || r == nil {
			continue
		}
		fmt.Fprintf(&b, "- %s: score=%v analysis=%v\n", key, r.Payload["score"], r.Payload["analysis"])
	}
	return b.String()
}

func fallbackNarrative(quant QuantitativeSummary) DiagnosisNarrative {
	summary := fmt.Sprintf("Across the six memorability dimensions, %d scored strong, %d neutral, and %d weak.",
		quant.Strong, quant.Neutral, quant.Weak)
	return DiagnosisNarrative{
		Summary:      summary,
		Quantitative: quant,
	}
}
