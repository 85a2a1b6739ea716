// Package model holds the entity types shared across the scan
// pipeline: discovered/scored links, fetched pages, the assembled
// corpus, analysis results and the outbound event stream.
package model

import "time"

// Mode selects which artifact set a scan produces.
type Mode string

const (
	ModeDiagnosis Mode = "diagnosis"
	ModeDiscovery Mode = "discovery"
)

// LinkOrigin records where a DiscoveredLink was found.
type LinkOrigin string

const (
	OriginHTML    LinkOrigin = "html"
	OriginSitemap LinkOrigin = "sitemap"
)

// DiscoveredLink is a candidate page found during discovery, before
// scoring. Duplicates collapse by normalized URL.
type DiscoveredLink struct {
	URL        string
	AnchorText string
	Origin     LinkOrigin
}

// ScoredLink is a DiscoveredLink with its computed relevance score.
type ScoredLink struct {
	DiscoveredLink
	Score int
}

// Screenshot is the single internal representation of a captured
// image: raw bytes plus MIME type. Base64/data-URI forms exist only
// at the JSON/vision-API boundary, never inside the pipeline.
type Screenshot struct {
	Bytes   []byte
	MIME    string
	CacheID string
}

// Page is a fetched and (optionally) distilled unit of content.
type Page struct {
	URL        string
	HTML       string
	Distilled  string
	Screenshot *Screenshot
	Score      int
	Engine     string
}

// Corpus is the ordered, length-bounded text handed to the Analyzer.
type Corpus struct {
	Text         string
	PageCount    int
	HasSocial    bool
	SocialBlocks map[string]string
}

// AnalysisKey enumerates every key this service can analyze, across
// both modes.
type AnalysisKey string

const (
	KeyPositioningThemes   AnalysisKey = "positioning_themes"
	KeyKeyMessages         AnalysisKey = "key_messages"
	KeyToneOfVoice         AnalysisKey = "tone_of_voice"
	KeyBrandElements       AnalysisKey = "brand_elements"
	KeyVisualTextAlignment AnalysisKey = "visual_text_alignment"
	KeyEmotion             AnalysisKey = "emotion"
	KeyAttention           AnalysisKey = "attention"
	KeyStory               AnalysisKey = "story"
	KeyInvolvement         AnalysisKey = "involvement"
	KeyRepetition          AnalysisKey = "repetition"
	KeyConsistency         AnalysisKey = "consistency"
)

// DiscoveryKeys lists the Discovery-mode analysis keys in their
// canonical schema order (actual emission follows completion order).
var DiscoveryKeys = []AnalysisKey{
	KeyPositioningThemes,
	KeyKeyMessages,
	KeyToneOfVoice,
	KeyBrandElements,
	KeyVisualTextAlignment,
}

// MemorabilityKeys lists the Diagnosis-mode keys in display order.
var MemorabilityKeys = []AnalysisKey{
	KeyEmotion,
	KeyAttention,
	KeyStory,
	KeyInvolvement,
	KeyRepetition,
	KeyConsistency,
}

// ValidationStatus reports the outcome of schema validation/repair.
type ValidationStatus string

const (
	ValidationSuccess  ValidationStatus = "success"
	ValidationDegraded ValidationStatus = "degraded_fallback"
	ValidationFailed   ValidationStatus = "failed"
)

// AnalysisMetrics accompanies every AnalysisResult.
type AnalysisMetrics struct {
	LatencyMS        int64
	TokenUsage       int
	Model            string
	APIUsed          string
	ValidationStatus ValidationStatus
	Repairs          []string
	TraceID          string
	CacheHit         bool
}

// AnalysisResult is the validated output of one key's analysis.
type AnalysisResult struct {
	Key     AnalysisKey
	Payload map[string]any
	Metrics AnalysisMetrics
}

// CacheEntry is a disk/remote-cached analysis payload.
type CacheEntry struct {
	Fingerprint string
	Payload     map[string]any
	TTLExpires  time.Time
}

// ScanRequest is the immutable input to a scan.
type ScanRequest struct {
	ScanID        string
	SeedURL       string
	Mode          Mode
	PreferredLang string
}

// EventKind enumerates the outbound event-stream message types.
// Every kind but activity is never dropped by the Gateway's
// backpressure policy; only activity may be dropped, and status may
// be coalesced.
type EventKind string

const (
	EventScanStarted         EventKind = "scan_started"
	EventActivity            EventKind = "activity"
	EventStatus              EventKind = "status"
	EventScreenshotReady     EventKind = "screenshot_ready"
	EventDiscoveryResult     EventKind = "discovery_result"
	EventKeyResult           EventKind = "key_result"
	EventSummary             EventKind = "summary"
	EventQuantitativeSummary EventKind = "quantitative_summary"
	EventComplete            EventKind = "complete"
	EventError               EventKind = "error"
)

// Phase names one of the five orchestration stages and its progress
// window, per the scan's phase/percentage contract.
type Phase string

const (
	PhaseDiscovery         Phase = "discovery"
	PhaseContentExtraction Phase = "content_extraction"
	PhaseBrandSynthesis    Phase = "brand_synthesis"
	PhaseAnalysis          Phase = "analysis"
	PhaseSummary           Phase = "summary"
)

// Event is one message on the outbound scan event stream. Every
// message carries "type"; the fields that matter vary by Kind per the
// outbound event stream contract.
type Event struct {
	ScanID    string          `json:"scan_id"`
	Kind      EventKind       `json:"type"`
	Phase     Phase           `json:"phase,omitempty"`
	Percent   int             `json:"progress,omitempty"`
	Message   string          `json:"message,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
	Mode      Mode            `json:"mode,omitempty"`
	URL       string          `json:"url,omitempty"`
	ID        string          `json:"id,omitempty"`
	Key       AnalysisKey     `json:"key,omitempty"`
	Result    *AnalysisResult `json:"result,omitempty"`
	Summary   any             `json:"summary,omitempty"`
	Error     string          `json:"error,omitempty"`
}
