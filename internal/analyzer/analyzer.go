// Package analyzer implements the Analyzer (C12): per-key input
// sanitization/pre-selection, versioned prompt construction, cache
// lookup, scheduler-gated LLM calls, and schema validation/repair, per
// §4.12.
package analyzer

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"brandscan/internal/cache"
	"brandscan/internal/llm"
	"brandscan/internal/model"
	"brandscan/internal/scheduler"
	"brandscan/internal/schema"
)

const minSanitizedChars = 100

var tagRe = regexp.MustCompile(`(?is)<script.*?</script>|<style.*?</style>|<[^>]+>`)

var brandSignalWordsRe = regexp.MustCompile(`(?i)\b(mission|vision|values|about|brand|company|we are|our)\b`)

// keywordSets drives per-key chunk scoring during pre-selection.
var keywordSets = map[model.AnalysisKey][]string{
	model.KeyPositioningThemes:   {"position", "market", "differentiat", "lead", "unique", "category"},
	model.KeyKeyMessages:         {"tagline", "promise", "value", "offer", "benefit"},
	model.KeyToneOfVoice:         {"voice", "tone", "say", "speak", "communicat"},
	model.KeyBrandElements:       {"logo", "color", "visual", "design", "identity", "typography"},
	model.KeyVisualTextAlignment: {"visual", "message", "consistent", "align"},
	model.KeyEmotion:             {"feel", "emotion", "love", "trust", "inspir"},
	model.KeyAttention:           {"stand out", "notice", "bold", "unique", "distinct"},
	model.KeyStory:               {"story", "journey", "founded", "history", "since"},
	model.KeyInvolvement:         {"join", "community", "participat", "engag", "you"},
	model.KeyRepetition:          {"always", "every", "consistent", "repeat", "signature"},
	model.KeyConsistency:         {"consistent", "everywhere", "across", "unified", "cohesive"},
}

// perKeyInputBudget bounds the sanitized text handed to a single
// prompt, in characters (a rough proxy for token budget).
const perKeyInputBudget = 12000

// chunkSize and chunkOverlap implement the "120-token overlap"
// pre-selection rule using a character-based approximation (≈4 chars
// per token).
const (
	chunkSize    = 480 * 4
	chunkOverlap = 120 * 4
)

// PreselectMetrics carries the chunk counts Preselect reports. Analyze
// discards them; they are not copied into model.AnalysisMetrics.
type PreselectMetrics struct {
	TotalChunks    int
	SelectedChunks int
}

// Sanitize strips tags and enforces the minimum input length. It
// returns ok=false if, after stripping, the text is too short to
// analyze.
func Sanitize(raw string) (string, bool) {
	stripped := tagRe.ReplaceAllString(raw, " ")
	stripped = strings.Join(strings.Fields(stripped), " ")
	if len(stripped) < minSanitizedChars {
		return stripped, false
	}
	return stripped, true
}

// chunk splits text into overlapping windows.
func chunk(text string) []string {
	if len(text) <= chunkSize {
		return []string{text}
	}
	var chunks []string
	for start := 0; start < len(text); start += chunkSize - chunkOverlap {
		end := start + chunkSize
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[start:end])
		if end == len(text) {
			break
		}
	}
	return chunks
}

func scoreChunk(text string, keywords []string) int {
	lower := strings.ToLower(text)
	score := 0
	for _, kw := range keywords {
		score += strings.Count(lower, strings.ToLower(kw))
	}
	if brandSignalWordsRe.MatchString(text) {
		score += 2
	}
	return score
}

// Preselect chunks text with overlap, scores each chunk against key's
// keyword set, and returns the top-scoring chunks joined up to the
// per-key budget.
func Preselect(key model.AnalysisKey, text string) (string, PreselectMetrics) {
	chunks := chunk(text)
	keywords := keywordSets[key]

	type scored struct {
		text  string
		score int
		index int
	}
	ranked := make([]scored, len(chunks))
	for i, c := range chunks {
		ranked[i] = scored{text: c, score: scoreChunk(c, keywords), index: i}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	var b strings.Builder
	selected := 0
	for _, r := range ranked {
		if b.Len()+len(r.text) > perKeyInputBudget {
			if b.Len() == 0 {
				b.WriteString(r.text[:min(len(r.text), perKeyInputBudget)])
				selected++
			}
			break
		}
		b.WriteString(r.text)
		b.WriteString("\n")
		selected++
	}

	return b.String(), PreselectMetrics{TotalChunks: len(chunks), SelectedChunks: selected}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// BuildPrompt constructs the versioned prompt template for key. For
// tone_of_voice it additionally requires verbatim 5-25 word quotes.
func BuildPrompt(key model.AnalysisKey, promptVersion, input string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "PROMPT_VERSION: %s\n", promptVersion)
	fmt.Fprintf(&b, "TASK: Analyze the following brand content for %q. ", key)
	b.WriteString("Respond with a single JSON object matching the key's schema exactly, with no extra commentary.\n")
	if key == model.KeyToneOfVoice {
		b.WriteString("Every evidence_quote must be a verbatim quote of 5 to 25 words taken directly from the input.\n")
	}
	b.WriteString("INPUT:\n")
	b.WriteString(input)
	return b.String()
}

// Deps bundles the shared, process-global collaborators the Analyzer
// needs for every call.
type Deps struct {
	Cache         *cache.Store
	Scheduler     *scheduler.Scheduler
	LLM           *llm.Client
	PromptVersion string
	WaitTimeout   time.Duration
}

// Analyze runs the full per-key pipeline against corpusText and
// returns a validated AnalysisResult. If corpusText is too short after
// Sanitize it returns nil and an error; otherwise it never returns a nil
// payload: on unrecoverable failure it returns a degraded-but-valid
// result with ValidationStatus=degraded_fallback.
func Analyze(ctx context.Context, deps Deps, key model.AnalysisKey, corpusText, traceID string) (*model.AnalysisResult, error) {
	sanitized, ok := Sanitize(corpusText)
	if !ok {
		return nil, fmt.Errorf("analyzer: input too short after sanitization for key %s", key)
	}

	preselected, _ := Preselect(key, sanitized)
	prompt := BuildPrompt(key, deps.PromptVersion, preselected)
	schemaName := string(key)
	fp := cache.Fingerprint(preselected, prompt, schemaName, deps.PromptVersion)

	if payload, hit := deps.Cache.Get(ctx, key, fp); hit {
		return &model.AnalysisResult{
			Key:     key,
			Payload: payload,
			Metrics: model.AnalysisMetrics{
				LatencyMS:        0,
				ValidationStatus: model.ValidationSuccess,
				TraceID:          traceID,
				CacheHit:         true,
			},
		}, nil
	}

	tokens := llm.EstimateTokens(prompt)
	ok, err := deps.Scheduler.Acquire(ctx, tokens, deps.WaitTimeout)
	if err != nil || !ok {
		return degradedResult(key, sanitized, traceID, "scheduler exhausted"), nil
	}
	defer deps.Scheduler.Release()

	raw, meta, err := deps.LLM.ChooseAndCall(ctx, string(key), prompt, "", false)
	if err != nil {
		return runRepairOrDegrade(ctx, deps, key, sanitized, fp, nil, traceID, meta, []string{"initial call failed: " + err.Error()})
	}

	parsed, syntaxRepaired, parseErr := schema.Parse(raw)
	repairs := []string{}
	if syntaxRepaired {
		repairs = append(repairs, "applied JSON syntax repair")
	}
	if parseErr != nil {
		return runRepairOrDegrade(ctx, deps, key, sanitized, fp, nil, traceID, meta, append(repairs, parseErr.Error()))
	}

	validated, err := schema.ValidateAndRepair(key, parsed)
	if err != nil {
		return runRepairOrDegrade(ctx, deps, key, sanitized, fp, nil, traceID, meta, append(repairs, err.Error()))
	}

	deps.Cache.Set(ctx, key, fp, validated.Payload)

	return &model.AnalysisResult{
		Key:     key,
		Payload: validated.Payload,
		Metrics: model.AnalysisMetrics{
			LatencyMS:        meta.LatencyMS,
			TokenUsage:       meta.TokenUsage,
			Model:            meta.Model,
			APIUsed:          meta.APIUsed,
			ValidationStatus: model.ValidationSuccess,
			Repairs:          append(repairs, validated.Repairs...),
			TraceID:          traceID,
		},
	}, nil
}

// runRepairOrDegrade issues the §4.10 step-5 schema-repair call; on
// continued failure it synthesizes the degraded-but-valid fallback.
func runRepairOrDegrade(ctx context.Context, deps Deps, key model.AnalysisKey, sanitized, fp string, _ map[string]any, traceID string, meta llm.CallMeta, repairs []string) (*model.AnalysisResult, error) {
	repairPrompt := BuildPrompt(key, deps.PromptVersion, sanitized) + "\nYour previous response did not match the required schema. Return only corrected JSON.\n"
	raw, repairMeta, err := deps.LLM.ChooseAndCall(ctx, string(key), repairPrompt, "", true)
	if err == nil {
		if parsed, _, parseErr := schema.Parse(raw); parseErr == nil {
			if validated, valErr := schema.ValidateAndRepair(key, parsed); valErr == nil {
				deps.Cache.Set(ctx, key, fp, validated.Payload)
				return &model.AnalysisResult{
					Key:     key,
					Payload: validated.Payload,
					Metrics: model.AnalysisMetrics{
						LatencyMS:        meta.LatencyMS + repairMeta.LatencyMS,
						TokenUsage:       meta.TokenUsage + repairMeta.TokenUsage,
						Model:            repairMeta.Model,
						APIUsed:          repairMeta.APIUsed,
						ValidationStatus: model.ValidationSuccess,
						Repairs:          append(repairs, append(validated.Repairs, "recovered via schema-repair call")...),
						TraceID:          traceID,
					},
				}, nil
			}
		}
	}
	return degradedResult(key, sanitized, traceID, strings.Join(repairs, "; ")), nil
}

func degradedResult(key model.AnalysisKey, sanitized, traceID, reason string) *model.AnalysisResult {
	excerpt := sanitized
	if len(excerpt) > 280 {
		excerpt = excerpt[:280]
	}
	payload := schema.DegradedFallback(key, excerpt)
	return &model.AnalysisResult{
		Key:     key,
		Payload: payload,
		Metrics: model.AnalysisMetrics{
			ValidationStatus: model.ValidationDegraded,
			Repairs:          []string{"degraded fallback: " + reason},
			TraceID:          traceID,
		},
	}
}

// AnalyzeKeysParallel runs keys concurrently and streams their
// results (or errors) on the returned channel in completion order,
// not schema order. The channel is closed once every key has reported.
func AnalyzeKeysParallel(ctx context.Context, deps Deps, keys []model.AnalysisKey, corpusText, traceID string) <-chan KeyOutcome {
	out := make(chan KeyOutcome, len(keys))
	go func() {
		defer close(out)
		done := make(chan KeyOutcome, len(keys))
		for _, k := range keys {
			k := k
			go func() {
				res, err := Analyze(ctx, deps, k, corpusText, traceID)
				done <- KeyOutcome{Key: k, Result: res, Err: err}
			}()
		}
		for range keys {
			out <- <-done
		}
	}()
	return out
}

// KeyOutcome is one completed (or failed) key analysis.
type KeyOutcome struct {
	Key    model.AnalysisKey
	Result *model.AnalysisResult
	Err    error
}
