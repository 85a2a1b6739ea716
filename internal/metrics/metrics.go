// Package metrics exposes Prometheus-style counters for HTTP
// requests, LLM calls, cache hits, breaker trips, and fetcher
// outcomes. It is intentionally minimal and in-memory only.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	mu             sync.RWMutex
	requestsTotal  = make(map[reqKey]int64)
	latencyMsSum   = make(map[latKey]int64)
	latencyMsCount = make(map[latKey]int64)

	llmCallsTotal     = make(map[llmKey]int64)
	llmLatencyMsSum   = make(map[llmModelKey]int64)
	llmLatencyMsCount = make(map[llmModelKey]int64)
	llmTokensTotal    = make(map[llmModelKey]int64)

	cacheHitsTotal = make(map[string]int64)
	cacheMissTotal = make(map[string]int64)

	breakerOpensTotal = make(map[string]int64)

	fetchAttemptsTotal = make(map[fetchKey]int64)

	scansTotal      = make(map[string]int64) // mode -> count
	scanErrorsTotal int64
)

type reqKey struct {
	Method string
	Path   string
	Status int
}

type latKey struct {
	Method string
	Path   string
}

type llmKey struct {
	Model   string
	APIUsed string
	Success string
}

type llmModelKey struct {
	Model   string
	APIUsed string
}

type fetchKey struct {
	Engine  string
	Success string
}

// RecordRequest increments the request counter and records latency.
func RecordRequest(method, path string, status int, latencyMs int64) {
	mu.Lock()
	defer mu.Unlock()

	requestsTotal[reqKey{method, path, status}]++
	lk := latKey{method, path}
	latencyMsSum[lk] += latencyMs
	latencyMsCount[lk]++
}

// RecordLLMCall records the outcome of a single LLM Client cascade
// stage: which model/API stage answered, whether it succeeded,
// latency, and token usage.
func RecordLLMCall(model, apiUsed string, success bool, latencyMs int64, tokens int) {
	mu.Lock()
	defer mu.Unlock()

	s := "false"
	if success {
		s = "true"
	}
	llmCallsTotal[llmKey{model, apiUsed, s}]++

	mk := llmModelKey{model, apiUsed}
	llmLatencyMsSum[mk] += latencyMs
	llmLatencyMsCount[mk]++
	llmTokensTotal[mk] += int64(tokens)
}

// RecordCacheLookup increments the hit or miss counter for key.
func RecordCacheLookup(key string, hit bool) {
	mu.Lock()
	defer mu.Unlock()
	if hit {
		cacheHitsTotal[key]++
	} else {
		cacheMissTotal[key]++
	}
}

// RecordBreakerOpen increments the trip counter for key_name.
func RecordBreakerOpen(keyName string) {
	mu.Lock()
	defer mu.Unlock()
	breakerOpensTotal[keyName]++
}

// RecordFetchAttempt increments the fetch counter for a given engine
// ("http", "browser") and outcome.
func RecordFetchAttempt(engine string, success bool) {
	mu.Lock()
	defer mu.Unlock()
	s := "false"
	if success {
		s = "true"
	}
	fetchAttemptsTotal[fetchKey{engine, s}]++
}

// RecordScanStarted increments the per-mode scan counter.
func RecordScanStarted(mode string) {
	mu.Lock()
	defer mu.Unlock()
	scansTotal[mode]++
}

// RecordScanError increments the terminal scan-error counter.
func RecordScanError() {
	mu.Lock()
	defer mu.Unlock()
	scanErrorsTotal++
}

// Export returns Prometheus-style metrics text.
func Export() string {
	mu.RLock()
	defer mu.RUnlock()

	var b strings.Builder

	b.WriteString("# HELP brandscan_http_requests_total Total HTTP requests\n")
	b.WriteString("# TYPE brandscan_http_requests_total counter\n")
	var reqKeys []reqKey
	for k := range requestsTotal {
		reqKeys = append(reqKeys, k)
	}
	sort.Slice(reqKeys, func(i, j int) bool {
		if reqKeys[i].Method != reqKeys[j].Method {
			return reqKeys[i].Method < reqKeys[j].Method
		}
		if reqKeys[i].Path != reqKeys[j].Path {
			return reqKeys[i].Path < reqKeys[j].Path
		}
		return reqKeys[i].Status < reqKeys[j].Status
	})
	for _, k := range reqKeys {
		fmt.Fprintf(&b, "brandscan_http_requests_total{method=\"%s\",path=\"%s\",status=\"%d\"} %d\n",
			k.Method, k.Path, k.Status, requestsTotal[k])
	}

	b.WriteString("# HELP brandscan_http_request_duration_ms_sum Total request duration in milliseconds\n")
	b.WriteString("# TYPE brandscan_http_request_duration_ms_sum counter\n")
	b.WriteString("# HELP brandscan_http_request_duration_ms_count Request count for latency metric\n")
	b.WriteString("# TYPE brandscan_http_request_duration_ms_count counter\n")
	var latKeys []latKey
	for k := range latencyMsSum {
		latKeys = append(latKeys, k)
	}
	sort.Slice(latKeys, func(i, j int) bool {
		if latKeys[i].Method != latKeys[j].Method {
			return latKeys[i].Method < latKeys[j].Method
		}
		return latKeys[i].Path < latKeys[j].Path
	})
	for _, k := range latKeys {
		fmt.Fprintf(&b, "brandscan_http_request_duration_ms_sum{method=\"%s\",path=\"%s\"} %d\n", k.Method, k.Path, latencyMsSum[k])
		fmt.Fprintf(&b, "brandscan_http_request_duration_ms_count{method=\"%s\",path=\"%s\"} %d\n", k.Method, k.Path, latencyMsCount[k])
	}

	b.WriteString("# HELP brandscan_llm_calls_total Total LLM Client cascade calls by model, stage, and outcome\n")
	b.WriteString("# TYPE brandscan_llm_calls_total counter\n")
	var llmKeys []llmKey
	for k := range llmCallsTotal {
		llmKeys = append(llmKeys, k)
	}
	sort.Slice(llmKeys, func(i, j int) bool {
		if llmKeys[i].Model != llmKeys[j].Model {
			return llmKeys[i].Model < llmKeys[j].Model
		}
		if llmKeys[i].APIUsed != llmKeys[j].APIUsed {
			return llmKeys[i].APIUsed < llmKeys[j].APIUsed
		}
		return llmKeys[i].Success < llmKeys[j].Success
	})
	for _, k := range llmKeys {
		fmt.Fprintf(&b, "brandscan_llm_calls_total{model=\"%s\",api_used=\"%s\",success=\"%s\"} %d\n",
			k.Model, k.APIUsed, k.Success, llmCallsTotal[k])
	}

	b.WriteString("# HELP brandscan_llm_latency_ms_sum Total LLM call latency in milliseconds\n")
	b.WriteString("# TYPE brandscan_llm_latency_ms_sum counter\n")
	b.WriteString("# HELP brandscan_llm_tokens_total Total tokens consumed by LLM calls\n")
	b.WriteString("# TYPE brandscan_llm_tokens_total counter\n")
	var modelKeys []llmModelKey
	for k := range llmLatencyMsSum {
		modelKeys = append(modelKeys, k)
	}
	sort.Slice(modelKeys, func(i, j int) bool {
		if modelKeys[i].Model != modelKeys[j].Model {
			return modelKeys[i].Model < modelKeys[j].Model
		}
		return modelKeys[i].APIUsed < modelKeys[j].APIUsed
	})
	for _, k := range modelKeys {
		fmt.Fprintf(&b, "brandscan_llm_latency_ms_sum{model=\"%s\",api_used=\"%s\"} %d\n", k.Model, k.APIUsed, llmLatencyMsSum[k])
		fmt.Fprintf(&b, "brandscan_llm_tokens_total{model=\"%s\",api_used=\"%s\"} %d\n", k.Model, k.APIUsed, llmTokensTotal[k])
	}

	b.WriteString("# HELP brandscan_cache_hits_total Total cache hits by key\n")
	b.WriteString("# TYPE brandscan_cache_hits_total counter\n")
	writeSortedStringCounter(&b, "brandscan_cache_hits_total", "key", cacheHitsTotal)
	b.WriteString("# HELP brandscan_cache_misses_total Total cache misses by key\n")
	b.WriteString("# TYPE brandscan_cache_misses_total counter\n")
	writeSortedStringCounter(&b, "brandscan_cache_misses_total", "key", cacheMissTotal)

	b.WriteString("# HELP brandscan_breaker_opens_total Total circuit breaker trips by key_name\n")
	b.WriteString("# TYPE brandscan_breaker_opens_total counter\n")
	writeSortedStringCounter(&b, "brandscan_breaker_opens_total", "key_name", breakerOpensTotal)

	b.WriteString("# HELP brandscan_fetch_attempts_total Total fetch attempts by engine and outcome\n")
	b.WriteString("# TYPE brandscan_fetch_attempts_total counter\n")
	var fetchKeys []fetchKey
	for k := range fetchAttemptsTotal {
		fetchKeys = append(fetchKeys, k)
	}
	sort.Slice(fetchKeys, func(i, j int) bool {
		if fetchKeys[i].Engine != fetchKeys[j].Engine {
			return fetchKeys[i].Engine < fetchKeys[j].Engine
		}
		return fetchKeys[i].Success < fetchKeys[j].Success
	})
	for _, k := range fetchKeys {
		fmt.Fprintf(&b, "brandscan_fetch_attempts_total{engine=\"%s\",success=\"%s\"} %d\n", k.Engine, k.Success, fetchAttemptsTotal[k])
	}

	b.WriteString("# HELP brandscan_scans_total Total scans started by mode\n")
	b.WriteString("# TYPE brandscan_scans_total counter\n")
	writeSortedStringCounter(&b, "brandscan_scans_total", "mode", scansTotal)

	b.WriteString("# HELP brandscan_scan_errors_total Total scans that ended with a terminal error\n")
	b.WriteString("# TYPE brandscan_scan_errors_total counter\n")
	fmt.Fprintf(&b, "brandscan_scan_errors_total %d\n", scanErrorsTotal)

	return b.String()
}

func writeSortedStringCounter(b *strings.Builder, metric, label string, m map[string]int64) {
	var keys []string
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "%s{%s=\"%s\"} %d\n", metric, label, k, m[k])
	}
}
