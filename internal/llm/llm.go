// Package llm implements the LLM Client (C7): a three-stage model
// cascade (primary reasoning endpoint, chat-completions fallback,
// fast/cheap fallback) behind one unified ChooseAndCall entry point,
// with a capability probe, a wall-clock safe-timeout wrapper, and
// adaptive per-call timeouts.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"brandscan/internal/breaker"
	"brandscan/internal/config"
)

// ErrTimeout is returned by a call that exceeded its wall-clock budget.
var ErrTimeout = errors.New("llm: call timed out")

// CallMeta accompanies the raw text returned by ChooseAndCall, and is
// folded into model.AnalysisMetrics by the Analyzer.
type CallMeta struct {
	Model      string
	APIUsed    string // "primary", "fallback_a", "fallback_b"
	LatencyMS  int64
	TokenUsage int
}

// Client runs the §4.7 cascade against an OpenAI-compatible API
// surface. Primary uses the Responses-style endpoint; both fallbacks
// use Chat Completions.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	primary    string
	fallbackA  string
	fallbackB  string
	forceChat  bool

	breaker *breaker.Registry

	probeOnce   sync.Once
	probeResult bool
}

// New builds a Client from configuration and a shared breaker registry.
func New(cfg config.LLMConfig, reg *breaker.Registry) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	return &Client{
		httpClient: &http.Client{},
		apiKey:     cfg.APIKey,
		baseURL:    base,
		primary:    cfg.PrimaryModel,
		fallbackA:  cfg.FallbackModel,
		fallbackB:  cfg.FastModel,
		forceChat:  cfg.ForceChatCompletions,
		breaker:    reg,
	}
}

// EstimateTokens estimates 1 token per 4 characters, floored at 200.
// It uses no tokenizer; the count is always this heuristic.
func EstimateTokens(text string) int {
	n := len(text) / 4
	if n < 200 {
		n = 200
	}
	return n
}

// AdaptiveTimeout implements min(20 + 0.002*tokens, cap) seconds.
func AdaptiveTimeout(tokens int, cap time.Duration) time.Duration {
	seconds := 20.0 + 0.002*float64(tokens)
	d := time.Duration(seconds * float64(time.Second))
	if d > cap {
		return cap
	}
	return d
}

// probeCapability issues a minimal call to the primary endpoint once
// per process, with a short timeout, to determine whether it is
// reachable/usable at all.
func (c *Client) probeCapability(ctx context.Context) bool {
	c.probeOnce.Do(func() {
		if c.forceChat || c.primary == "" {
			c.probeResult = false
			return
		}
		probeCtx, cancel := context.WithTimeout(ctx, 7*time.Second)
		defer cancel()
		_, err := c.callResponsesAPI(probeCtx, c.primary, "ping", "", false)
		c.probeResult = err == nil
	})
	return c.probeResult
}

// ChooseAndCall runs the model cascade for keyName, honoring breaker
// state, and returns raw model text plus call metadata. schema, when
// non-empty, is a JSON Schema document enforced on fallback A when
// enforceSchema is true.
func (c *Client) ChooseAndCall(ctx context.Context, keyName, prompt, schema string, enforceSchema bool) (string, CallMeta, error) {
	tokens := EstimateTokens(prompt)

	if !c.forceChat && c.primary != "" && c.probeCapability(ctx) && !c.breaker.IsOpen(keyName) {
		timeout := AdaptiveTimeout(tokens, 60*time.Second)
		text, meta, err := c.safeCall(ctx, timeout, func(callCtx context.Context) (string, CallMeta, error) {
			start := time.Now()
			raw, err := c.callResponsesAPI(callCtx, c.primary, prompt, schema, enforceSchema)
			return raw, CallMeta{Model: c.primary, APIUsed: "primary", LatencyMS: time.Since(start).Milliseconds(), TokenUsage: tokens}, err
		})
		if err == nil {
			c.breaker.RecordResult(keyName, true)
			return text, meta, nil
		}
		c.breaker.RecordResult(keyName, false)
	}

	if c.fallbackA != "" {
		timeout := AdaptiveTimeout(tokens, 75*time.Second)
		text, meta, err := c.callChatWithRetry(ctx, keyName, c.fallbackA, "fallback_a", prompt, schema, enforceSchema, timeout)
		if err == nil {
			c.breaker.RecordResult(keyName, true)
			return text, meta, nil
		}
		c.breaker.RecordResult(keyName, false)
	}

	timeout := AdaptiveTimeout(tokens, 90*time.Second)
	text, meta, err := c.callChatWithRetry(ctx, keyName, c.fallbackB, "fallback_b", prompt, schema, false, timeout)
	if err != nil {
		c.breaker.RecordResult(keyName, false)
		return "", meta, fmt.Errorf("llm: all cascade stages failed for %s: %w", keyName, err)
	}
	c.breaker.RecordResult(keyName, true)
	return text, meta, nil
}

// callChatWithRetry retries a chat-completions call once with
// exponential backoff, but only when the failure was a timeout.
func (c *Client) callChatWithRetry(ctx context.Context, keyName, model, apiUsed, prompt, schema string, enforceSchema bool, timeout time.Duration) (string, CallMeta, error) {
	attempt := func(callCtx context.Context) (string, CallMeta, error) {
		start := time.Now()
		raw, err := c.callChatCompletions(callCtx, model, prompt, schema, enforceSchema)
		tokens := EstimateTokens(prompt)
		return raw, CallMeta{Model: model, APIUsed: apiUsed, LatencyMS: time.Since(start).Milliseconds(), TokenUsage: tokens}, err
	}

	text, meta, err := c.safeCall(ctx, timeout, attempt)
	if errors.Is(err, ErrTimeout) {
		time.Sleep(500 * time.Millisecond)
		return c.safeCall(ctx, timeout, attempt)
	}
	return text, meta, err
}

// safeCall runs fn on a dedicated goroutine so a hard wall-clock
// timeout can be imposed regardless of whether the underlying HTTP
// client respects context cancellation promptly.
func (c *Client) safeCall(ctx context.Context, timeout time.Duration, fn func(context.Context) (string, CallMeta, error)) (string, CallMeta, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		text string
		meta CallMeta
		err  error
	}
	ch := make(chan outcome, 1)
	go func() {
		text, meta, err := fn(callCtx)
		ch <- outcome{text, meta, err}
	}()

	select {
	case out := <-ch:
		return out.text, out.meta, out.err
	case <-callCtx.Done():
		return "", CallMeta{}, ErrTimeout
	}
}

type chatRequest struct {
	Model          string              `json:"model"`
	Messages       []chatMessage       `json:"messages"`
	Temperature    float64             `json:"temperature"`
	ResponseFormat *chatResponseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponseFormat struct {
	Type       string          `json:"type"`
	JSONSchema json.RawMessage `json:"json_schema,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) callChatCompletions(ctx context.Context, model, prompt, schema string, enforceSchema bool) (string, error) {
	format := &chatResponseFormat{Type: "json_object"}
	if enforceSchema && schema != "" {
		format = &chatResponseFormat{Type: "json_schema", JSONSchema: json.RawMessage(schema)}
	}

	body := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: "You respond with a single JSON object and no extra text."},
			{Role: "user", Content: prompt},
		},
		Temperature:    0.0,
		ResponseFormat: format,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("llm: chat completions returned status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("llm: chat completions returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// ImageInput is one base64-encoded screenshot handed to a multimodal
// call, at "high" viewing detail per the vision prompt contract.
type ImageInput struct {
	Base64 string
	MIME   string
}

// ChooseAndCallVision runs the same three-stage cascade as
// ChooseAndCall, but for multimodal prompts carrying up to a handful
// of screenshots alongside the text prompt.
func (c *Client) ChooseAndCallVision(ctx context.Context, keyName, prompt string, images []ImageInput, schema string, enforceSchema bool) (string, CallMeta, error) {
	tokens := EstimateTokens(prompt) + len(images)*800

	if !c.forceChat && c.primary != "" && c.probeCapability(ctx) && !c.breaker.IsOpen(keyName) {
		timeout := AdaptiveTimeout(tokens, 60*time.Second)
		text, meta, err := c.safeCall(ctx, timeout, func(callCtx context.Context) (string, CallMeta, error) {
			start := time.Now()
			raw, err := c.callResponsesAPIVision(callCtx, c.primary, prompt, images, schema, enforceSchema)
			return raw, CallMeta{Model: c.primary, APIUsed: "primary", LatencyMS: time.Since(start).Milliseconds(), TokenUsage: tokens}, err
		})
		if err == nil {
			c.breaker.RecordResult(keyName, true)
			return text, meta, nil
		}
		c.breaker.RecordResult(keyName, false)
	}

	if c.fallbackA != "" {
		timeout := AdaptiveTimeout(tokens, 75*time.Second)
		text, meta, err := c.callChatVisionWithRetry(ctx, keyName, c.fallbackA, "fallback_a", prompt, images, schema, enforceSchema, timeout)
		if err == nil {
			c.breaker.RecordResult(keyName, true)
			return text, meta, nil
		}
		c.breaker.RecordResult(keyName, false)
	}

	timeout := AdaptiveTimeout(tokens, 90*time.Second)
	text, meta, err := c.callChatVisionWithRetry(ctx, keyName, c.fallbackB, "fallback_b", prompt, images, schema, false, timeout)
	if err != nil {
		c.breaker.RecordResult(keyName, false)
		return "", meta, fmt.Errorf("llm: all vision cascade stages failed for %s: %w", keyName, err)
	}
	c.breaker.RecordResult(keyName, true)
	return text, meta, nil
}

func (c *Client) callChatVisionWithRetry(ctx context.Context, keyName, model, apiUsed, prompt string, images []ImageInput, schema string, enforceSchema bool, timeout time.Duration) (string, CallMeta, error) {
	tokens := EstimateTokens(prompt) + len(images)*800
	attempt := func(callCtx context.Context) (string, CallMeta, error) {
		start := time.Now()
		raw, err := c.callChatCompletionsVision(callCtx, model, prompt, images, schema, enforceSchema)
		return raw, CallMeta{Model: model, APIUsed: apiUsed, LatencyMS: time.Since(start).Milliseconds(), TokenUsage: tokens}, err
	}
	text, meta, err := c.safeCall(ctx, timeout, attempt)
	if errors.Is(err, ErrTimeout) {
		time.Sleep(500 * time.Millisecond)
		return c.safeCall(ctx, timeout, attempt)
	}
	return text, meta, err
}

type chatContentPart struct {
	Type     string            `json:"type"`
	Text     string            `json:"text,omitempty"`
	ImageURL *chatImageURLPart `json:"image_url,omitempty"`
}

type chatImageURLPart struct {
	URL    string `json:"url"`
	Detail string `json:"detail"`
}

type chatVisionMessage struct {
	Role    string            `json:"role"`
	Content []chatContentPart `json:"content"`
}

type chatVisionRequest struct {
	Model          string              `json:"model"`
	Messages       []chatVisionMessage `json:"messages"`
	Temperature    float64             `json:"temperature"`
	ResponseFormat *chatResponseFormat `json:"response_format,omitempty"`
}

func buildVisionContent(prompt string, images []ImageInput) []chatContentPart {
	parts := []chatContentPart{{Type: "text", Text: prompt}}
	limit := len(images)
	if limit > 5 {
		limit = 5
	}
	for _, img := range images[:limit] {
		parts = append(parts, chatContentPart{
			Type: "image_url",
			ImageURL: &chatImageURLPart{
				URL:    fmt.Sprintf("data:%s;base64,%s", img.MIME, img.Base64),
				Detail: "high",
			},
		})
	}
	return parts
}

func (c *Client) callChatCompletionsVision(ctx context.Context, model, prompt string, images []ImageInput, schema string, enforceSchema bool) (string, error) {
	format := &chatResponseFormat{Type: "json_object"}
	if enforceSchema && schema != "" {
		format = &chatResponseFormat{Type: "json_schema", JSONSchema: json.RawMessage(schema)}
	}

	body := chatVisionRequest{
		Model: model,
		Messages: []chatVisionMessage{
			{Role: "system", Content: []chatContentPart{{Type: "text", Text: "You respond with a single JSON object and no extra text."}}},
			{Role: "user", Content: buildVisionContent(prompt, images)},
		},
		Temperature:    0.0,
		ResponseFormat: format,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("llm: vision chat completions returned status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("llm: vision chat completions returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

func (c *Client) callResponsesAPIVision(ctx context.Context, model, prompt string, images []ImageInput, schema string, enforceSchema bool) (string, error) {
	body := struct {
		Model string               `json:"model"`
		Input []chatVisionMessage  `json:"input"`
		Text  *responsesTextFormat `json:"text,omitempty"`
	}{
		Model: model,
		Input: []chatVisionMessage{{Role: "user", Content: buildVisionContent(prompt, images)}},
	}
	if enforceSchema && schema != "" {
		body.Text = &responsesTextFormat{Format: json.RawMessage(schema)}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/responses", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("llm: vision responses endpoint returned status %d", resp.StatusCode)
	}

	var parsed responsesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if parsed.OutputText != "" {
		return parsed.OutputText, nil
	}
	for _, o := range parsed.Output {
		for _, part := range o.Content {
			if part.Text != "" {
				return part.Text, nil
			}
		}
	}
	return "", errors.New("llm: vision responses endpoint returned no output text")
}

type responsesRequest struct {
	Model string               `json:"model"`
	Input string               `json:"input"`
	Text  *responsesTextFormat `json:"text,omitempty"`
}

type responsesTextFormat struct {
	Format json.RawMessage `json:"format"`
}

type responsesResponse struct {
	OutputText string `json:"output_text"`
	Output     []struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
}

// callResponsesAPI calls the reasoning/structured-output endpoint.
func (c *Client) callResponsesAPI(ctx context.Context, model, prompt, schema string, enforceSchema bool) (string, error) {
	body := responsesRequest{Model: model, Input: prompt}
	if enforceSchema && schema != "" {
		body.Text = &responsesTextFormat{Format: json.RawMessage(schema)}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/responses", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("llm: responses endpoint returned status %d", resp.StatusCode)
	}

	var parsed responsesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if parsed.OutputText != "" {
		return parsed.OutputText, nil
	}
	for _, o := range parsed.Output {
		for _, c := range o.Content {
			if c.Text != "" {
				return c.Text, nil
			}
		}
	}
	return "", errors.New("llm: responses endpoint returned no output text")
}
