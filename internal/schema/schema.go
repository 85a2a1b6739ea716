// Package schema implements the Schema Validator/Repairer (C10): per
// analysis-key JSON Schemas, syntax repair, coercion/clamping, and
// degraded-fallback synthesis, per §4.10.
package schema

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"brandscan/internal/model"
)

// Result carries the validated payload, its status, and the repair
// operations applied while validating it (Repairs), surfaced in
// AnalysisMetrics for the operational log.
type Result struct {
	Payload          map[string]any
	ValidationStatus model.ValidationStatus
	Repairs          []string
}

// stringField describes a string length constraint used while
// coercing a decoded JSON value.
type stringField struct {
	maxLen int
	minLen int
}

var trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)

// RepairJSONSyntax applies the two repairs named in §4.10 step 2:
// single quotes become double quotes, and trailing commas before a
// closing brace/bracket are stripped.
func RepairJSONSyntax(raw string) string {
	s := raw
	s = strings.ReplaceAll(s, "'", "\"")
	s = trailingCommaRe.ReplaceAllString(s, "$1")
	return s
}

// Parse decodes raw JSON text into a generic map, retrying once with
// syntax repairs on failure. It returns the decoded payload, whether a
// syntax repair was needed, and any parse error that survived the
// retry.
func Parse(raw string) (map[string]any, bool, error) {
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err == nil {
		return out, false, nil
	}
	repaired := RepairJSONSyntax(raw)
	if err := json.Unmarshal([]byte(repaired), &out); err == nil {
		return out, true, nil
	}
	return nil, true, fmt.Errorf("schema: could not parse JSON after syntax repair")
}

// ValidateAndRepair runs the full §4.10 pipeline steps 3-4 (coercion,
// clamping, truncation, per-item array pruning) for the named key. It
// does not perform the schema-repair LLM call or degraded-fallback
// synthesis (steps 5-6); those are orchestrated by the Analyzer, which
// owns the LLM Client and excerpt source.
func ValidateAndRepair(key model.AnalysisKey, payload map[string]any) (*Result, error) {
	v, ok := validators[key]
	if !ok {
		return nil, fmt.Errorf("schema: no validator registered for key %q", key)
	}
	repairs := []string{}
	out, err := v(payload, &repairs)
	if err != nil {
		return nil, err
	}
	return &Result{Payload: out, ValidationStatus: model.ValidationSuccess, Repairs: repairs}, nil
}

type validatorFunc func(in map[string]any, repairs *[]string) (map[string]any, error)

var validators = map[model.AnalysisKey]validatorFunc{
	model.KeyPositioningThemes:   validatePositioningThemes,
	model.KeyKeyMessages:         validateKeyMessages,
	model.KeyToneOfVoice:         validateToneOfVoice,
	model.KeyBrandElements:       validateBrandElements,
	model.KeyVisualTextAlignment: validateVisualTextAlignment,
}

func init() {
	for _, k := range model.MemorabilityKeys {
		validators[k] = validateMemorabilityKey
	}
}

func note(repairs *[]string, msg string) {
	*repairs = append(*repairs, msg)
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func truncateString(v any, maxLen int, field string, repairs *[]string) (string, error) {
	s, ok := asString(v)
	if !ok {
		return "", fmt.Errorf("schema: field %q is not a string", field)
	}
	if len(s) > maxLen {
		s = s[:maxLen]
		note(repairs, fmt.Sprintf("truncated %s to %d chars", field, maxLen))
	}
	return s, nil
}

// coerceInt accepts a JSON number or a numeric string (§4.10 step 3)
// and clamps it into [lo, hi].
func coerceInt(v any, lo, hi int, field string, repairs *[]string) (int, error) {
	var n int
	switch t := v.(type) {
	case int:
		n = t
	case int64:
		n = int(t)
	case float64:
		n = int(t)
	case json.Number:
		parsed, err := t.Int64()
		if err != nil {
			return 0, fmt.Errorf("schema: field %q is not numeric", field)
		}
		n = int(parsed)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, fmt.Errorf("schema: field %q is not numeric", field)
		}
		n = parsed
		note(repairs, fmt.Sprintf("coerced string to int for %s", field))
	default:
		return 0, fmt.Errorf("schema: field %q has unsupported type %T", field, v)
	}
	if n < lo {
		n = lo
		note(repairs, fmt.Sprintf("clamped %s to minimum %d", field, lo))
	}
	if n > hi {
		n = hi
		note(repairs, fmt.Sprintf("clamped %s to maximum %d", field, hi))
	}
	return n, nil
}

func asSlice(v any, field string) ([]any, error) {
	switch s := v.(type) {
	case []any:
		return s, nil
	case []string:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out, nil
	}
	return nil, fmt.Errorf("schema: field %q is not an array", field)
}

func asObject(v any, field string) (map[string]any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("schema: field %q is not an object", field)
	}
	return m, nil
}

// positioning_themes: { themes: [{theme<=50, description<=200,
// evidence_quotes: [str]1..3, confidence 0..100}]1..5 }
func validatePositioningThemes(in map[string]any, repairs *[]string) (map[string]any, error) {
	raw, err := asSlice(in["themes"], "themes")
	if err != nil {
		return nil, err
	}
	themes := make([]any, 0, len(raw))
	for i, item := range raw {
		obj, err := asObject(item, fmt.Sprintf("themes[%d]", i))
		if err != nil {
			note(repairs, fmt.Sprintf("dropped themes[%d]: %v", i, err))
			continue
		}
		theme, err := truncateString(obj["theme"], 50, "theme", repairs)
		if err != nil {
			note(repairs, fmt.Sprintf("dropped themes[%d]: %v", i, err))
			continue
		}
		desc, err := truncateString(obj["description"], 200, "description", repairs)
		if err != nil {
			note(repairs, fmt.Sprintf("dropped themes[%d]: %v", i, err))
			continue
		}
		quotesRaw, err := asSlice(obj["evidence_quotes"], "evidence_quotes")
		if err != nil {
			note(repairs, fmt.Sprintf("dropped themes[%d]: %v", i, err))
			continue
		}
		quotes := make([]string, 0, len(quotesRaw))
		for _, q := range quotesRaw {
			if s, ok := asString(q); ok && s != "" {
				quotes = append(quotes, s)
			}
		}
		if len(quotes) == 0 || len(quotes) > 3 {
			if len(quotes) > 3 {
				quotes = quotes[:3]
				note(repairs, "truncated evidence_quotes to 3")
			} else {
				note(repairs, fmt.Sprintf("dropped themes[%d]: no evidence quotes", i))
				continue
			}
		}
		confidence, err := coerceInt(obj["confidence"], 0, 100, "confidence", repairs)
		if err != nil {
			note(repairs, fmt.Sprintf("dropped themes[%d]: %v", i, err))
			continue
		}
		themes = append(themes, map[string]any{
			"theme":           theme,
			"description":     desc,
			"evidence_quotes": quotes,
			"confidence":      confidence,
		})
	}
	if len(themes) == 0 {
		return nil, fmt.Errorf("schema: themes empty after pruning")
	}
	if len(themes) > 5 {
		themes = themes[:5]
		note(repairs, "truncated themes to 5")
	}
	return map[string]any{"themes": themes}, nil
}

// key_messages: { key_messages: [{message<=200, context<=300,
// type in {Tagline,Value Proposition}, confidence 0..100}]1..5 }
func validateKeyMessages(in map[string]any, repairs *[]string) (map[string]any, error) {
	raw, err := asSlice(in["key_messages"], "key_messages")
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(raw))
	for i, item := range raw {
		obj, err := asObject(item, fmt.Sprintf("key_messages[%d]", i))
		if err != nil {
			note(repairs, fmt.Sprintf("dropped key_messages[%d]: %v", i, err))
			continue
		}
		msg, err := truncateString(obj["message"], 200, "message", repairs)
		if err != nil {
			note(repairs, fmt.Sprintf("dropped key_messages[%d]: %v", i, err))
			continue
		}
		ctx, err := truncateString(obj["context"], 300, "context", repairs)
		if err != nil {
			note(repairs, fmt.Sprintf("dropped key_messages[%d]: %v", i, err))
			continue
		}
		typ, ok := asString(obj["type"])
		if !ok || (typ != "Tagline" && typ != "Value Proposition") {
			typ = "Value Proposition"
			note(repairs, fmt.Sprintf("coerced key_messages[%d].type to default", i))
		}
		confidence, err := coerceInt(obj["confidence"], 0, 100, "confidence", repairs)
		if err != nil {
			note(repairs, fmt.Sprintf("dropped key_messages[%d]: %v", i, err))
			continue
		}
		out = append(out, map[string]any{
			"message":    msg,
			"context":    ctx,
			"type":       typ,
			"confidence": confidence,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("schema: key_messages empty after pruning")
	}
	if len(out) > 5 {
		out = out[:5]
		note(repairs, "truncated key_messages to 5")
	}
	return map[string]any{"key_messages": out}, nil
}

func validateToneEntry(v any, field string, repairs *[]string) (map[string]any, error) {
	obj, err := asObject(v, field)
	if err != nil {
		return nil, err
	}
	tone, err := truncateString(obj["tone"], 30, field+".tone", repairs)
	if err != nil {
		return nil, err
	}
	justification, err := truncateString(obj["justification"], 200, field+".justification", repairs)
	if err != nil {
		return nil, err
	}
	quote, ok := asString(obj["evidence_quote"])
	if !ok || quote == "" {
		return nil, fmt.Errorf("schema: %s.evidence_quote missing", field)
	}
	return map[string]any{
		"tone":           tone,
		"justification":  justification,
		"evidence_quote": quote,
	}, nil
}

// tone_of_voice: { primary_tone, secondary_tone, contradictions<=3, confidence }
func validateToneOfVoice(in map[string]any, repairs *[]string) (map[string]any, error) {
	primary, err := validateToneEntry(in["primary_tone"], "primary_tone", repairs)
	if err != nil {
		return nil, err
	}
	secondary, err := validateToneEntry(in["secondary_tone"], "secondary_tone", repairs)
	if err != nil {
		return nil, err
	}
	contradictions := []any{}
	if raw, ok := in["contradictions"].([]any); ok {
		for i, item := range raw {
			if len(contradictions) >= 3 {
				note(repairs, "truncated contradictions to 3")
				break
			}
			obj, err := asObject(item, fmt.Sprintf("contradictions[%d]", i))
			if err != nil {
				note(repairs, fmt.Sprintf("dropped contradictions[%d]: %v", i, err))
				continue
			}
			c, err := truncateString(obj["contradiction"], 200, "contradiction", repairs)
			if err != nil {
				note(repairs, fmt.Sprintf("dropped contradictions[%d]: %v", i, err))
				continue
			}
			quote, ok := asString(obj["evidence_quote"])
			if !ok || quote == "" {
				note(repairs, fmt.Sprintf("dropped contradictions[%d]: missing evidence_quote", i))
				continue
			}
			contradictions = append(contradictions, map[string]any{
				"contradiction":  c,
				"evidence_quote": quote,
			})
		}
	}
	confidence, err := coerceInt(in["confidence"], 0, 100, "confidence", repairs)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"primary_tone":   primary,
		"secondary_tone": secondary,
		"contradictions": contradictions,
		"confidence":     confidence,
	}, nil
}

// brand_elements: overall_impression, coherence_score 1..5,
// visual_identity{color_palette,typography,imagery_style},
// strategic_alignment{harmony<=400,dissonance<=400}, confidence.
func validateBrandElements(in map[string]any, repairs *[]string) (map[string]any, error) {
	impressionRaw, err := asObject(in["overall_impression"], "overall_impression")
	if err != nil {
		return nil, err
	}
	summary, err := truncateString(impressionRaw["summary"], 300, "overall_impression.summary", repairs)
	if err != nil {
		return nil, err
	}
	keywordsRaw, err := asSlice(impressionRaw["keywords"], "overall_impression.keywords")
	if err != nil {
		return nil, err
	}
	keywords := make([]string, 0, len(keywordsRaw))
	for _, k := range keywordsRaw {
		if s, ok := asString(k); ok && s != "" {
			keywords = append(keywords, s)
		}
	}
	if len(keywords) == 0 {
		return nil, fmt.Errorf("schema: overall_impression.keywords empty")
	}
	if len(keywords) > 5 {
		keywords = keywords[:5]
		note(repairs, "truncated overall_impression.keywords to 5")
	}

	coherence, err := coerceInt(in["coherence_score"], 1, 5, "coherence_score", repairs)
	if err != nil {
		return nil, err
	}

	visual, err := asObject(in["visual_identity"], "visual_identity")
	if err != nil {
		return nil, err
	}
	for _, sub := range []string{"color_palette", "typography", "imagery_style"} {
		if _, err := asObject(visual[sub], "visual_identity."+sub); err != nil {
			return nil, err
		}
	}

	strategic, err := asObject(in["strategic_alignment"], "strategic_alignment")
	if err != nil {
		return nil, err
	}
	harmony, err := truncateString(strategic["harmony"], 400, "strategic_alignment.harmony", repairs)
	if err != nil {
		return nil, err
	}
	dissonance, err := truncateString(strategic["dissonance"], 400, "strategic_alignment.dissonance", repairs)
	if err != nil {
		return nil, err
	}

	confidence, err := coerceInt(in["confidence"], 0, 100, "confidence", repairs)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"overall_impression":  map[string]any{"summary": summary, "keywords": keywords},
		"coherence_score":     coherence,
		"visual_identity":     visual,
		"strategic_alignment": map[string]any{"harmony": harmony, "dissonance": dissonance},
		"confidence":          confidence,
	}, nil
}

// visual_text_alignment: { alignment in {Yes,No}, justification<=1000 }
func validateVisualTextAlignment(in map[string]any, repairs *[]string) (map[string]any, error) {
	alignment, ok := asString(in["alignment"])
	if !ok || (alignment != "Yes" && alignment != "No") {
		return nil, fmt.Errorf("schema: alignment must be Yes or No")
	}
	justification, err := truncateString(in["justification"], 1000, "justification", repairs)
	if err != nil {
		return nil, err
	}
	return map[string]any{"alignment": alignment, "justification": justification}, nil
}

// Memorability keys (diagnosis): { score 0..5, analysis, evidence,
// confidence 0..100, confidence_rationale, recommendation }
func validateMemorabilityKey(in map[string]any, repairs *[]string) (map[string]any, error) {
	score, err := coerceInt(in["score"], 0, 5, "score", repairs)
	if err != nil {
		return nil, err
	}
	analysis, ok := asString(in["analysis"])
	if !ok || analysis == "" {
		return nil, fmt.Errorf("schema: analysis missing")
	}
	evidence, ok := asString(in["evidence"])
	if !ok || evidence == "" {
		return nil, fmt.Errorf("schema: evidence missing")
	}
	confidence, err := coerceInt(in["confidence"], 0, 100, "confidence", repairs)
	if err != nil {
		return nil, err
	}
	rationale, ok := asString(in["confidence_rationale"])
	if !ok {
		rationale = ""
	}
	recommendation, ok := asString(in["recommendation"])
	if !ok {
		recommendation = ""
	}
	return map[string]any{
		"score":                score,
		"analysis":             analysis,
		"evidence":             evidence,
		"confidence":           confidence,
		"confidence_rationale": rationale,
		"recommendation":       recommendation,
	}, nil
}

// DegradedFallback synthesizes a minimal valid payload for key from a
// short excerpt of the original input, per §4.10 step 6. Confidence is
// always clamped to <=50 and ValidationStatus is always Degraded.
func DegradedFallback(key model.AnalysisKey, excerpt string) map[string]any {
	if len(excerpt) > 280 {
		excerpt = excerpt[:280]
	}
	excerpt = strings.TrimSpace(excerpt)
	if excerpt == "" {
		excerpt = "insufficient content available"
	}

	switch key {
	case model.KeyPositioningThemes:
		return map[string]any{"themes": []any{map[string]any{
			"theme": "General positioning", "description": excerpt,
			"evidence_quotes": []string{excerpt}, "confidence": 20,
		}}}
	case model.KeyKeyMessages:
		return map[string]any{"key_messages": []any{map[string]any{
			"message": excerpt, "context": excerpt, "type": "Value Proposition", "confidence": 20,
		}}}
	case model.KeyToneOfVoice:
		return map[string]any{
			"primary_tone":   map[string]any{"tone": "Neutral", "justification": excerpt, "evidence_quote": excerpt},
			"secondary_tone": map[string]any{"tone": "Informative", "justification": excerpt, "evidence_quote": excerpt},
			"contradictions": []any{},
			"confidence":     20,
		}
	case model.KeyBrandElements:
		return map[string]any{
			"overall_impression": map[string]any{"summary": excerpt, "keywords": []string{"unclear"}},
			"coherence_score":    3,
			"visual_identity": map[string]any{
				"color_palette": map[string]any{},
				"typography":    map[string]any{},
				"imagery_style": map[string]any{},
			},
			"strategic_alignment": map[string]any{"harmony": excerpt, "dissonance": ""},
			"confidence":          20,
		}
	case model.KeyVisualTextAlignment:
		return map[string]any{"alignment": "No", "justification": excerpt}
	default:
		return map[string]any{
			"score": 1, "analysis": excerpt, "evidence": excerpt,
			"confidence": 20, "confidence_rationale": "degraded fallback", "recommendation": "",
		}
	}
}
