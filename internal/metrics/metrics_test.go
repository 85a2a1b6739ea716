package metrics

import (
	"strings"
	"testing"
)

func TestRecordRequestAndExport(t *testing.T) {
	RecordRequest("GET", "/screenshot/abc", 200, 42)

	out := Export()
	if !strings.Contains(out, "brandscan_http_requests_total{method=\"GET\",path=\"/screenshot/abc\",status=\"200\"}") {
		t.Fatalf("expected HTTP request metric in export, got:\n%s", out)
	}
	if !strings.Contains(out, "brandscan_http_request_duration_ms_sum") || !strings.Contains(out, "brandscan_http_request_duration_ms_count") {
		t.Fatalf("expected latency metrics headers in export, got:\n%s", out)
	}
}

func TestRecordLLMCall(t *testing.T) {
	RecordLLMCall("gpt-4o", "fallback_a", true, 1200, 500)
	RecordLLMCall("gpt-4o", "fallback_a", false, 900, 450)

	out := Export()
	if !strings.Contains(out, "brandscan_llm_calls_total{model=\"gpt-4o\",api_used=\"fallback_a\",success=\"true\"}") {
		t.Fatalf("expected llm_calls_total success counter, got:\n%s", out)
	}
	if !strings.Contains(out, "brandscan_llm_calls_total{model=\"gpt-4o\",api_used=\"fallback_a\",success=\"false\"}") {
		t.Fatalf("expected llm_calls_total failure counter, got:\n%s", out)
	}
	if !strings.Contains(out, "brandscan_llm_tokens_total{model=\"gpt-4o\",api_used=\"fallback_a\"}") {
		t.Fatalf("expected llm_tokens_total counter, got:\n%s", out)
	}
}

func TestRecordCacheAndBreaker(t *testing.T) {
	RecordCacheLookup("positioning_themes", true)
	RecordCacheLookup("positioning_themes", false)
	RecordBreakerOpen("gpt-5")

	out := Export()
	if !strings.Contains(out, "brandscan_cache_hits_total{key=\"positioning_themes\"}") {
		t.Fatalf("expected cache hit counter, got:\n%s", out)
	}
	if !strings.Contains(out, "brandscan_cache_misses_total{key=\"positioning_themes\"}") {
		t.Fatalf("expected cache miss counter, got:\n%s", out)
	}
	if !strings.Contains(out, "brandscan_breaker_opens_total{key_name=\"gpt-5\"}") {
		t.Fatalf("expected breaker opens counter, got:\n%s", out)
	}
}

func TestRecordFetchAndScan(t *testing.T) {
	RecordFetchAttempt("browser", true)
	RecordScanStarted("discovery")
	RecordScanError()

	out := Export()
	if !strings.Contains(out, "brandscan_fetch_attempts_total{engine=\"browser\",success=\"true\"}") {
		t.Fatalf("expected fetch_attempts_total counter, got:\n%s", out)
	}
	if !strings.Contains(out, "brandscan_scans_total{mode=\"discovery\"}") {
		t.Fatalf("expected scans_total counter, got:\n%s", out)
	}
	if !strings.Contains(out, "brandscan_scan_errors_total") {
		t.Fatalf("expected scan_errors_total counter, got:\n%s", out)
	}
}
