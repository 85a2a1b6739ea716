package llm

import (
	"testing"
	"time"
)

func TestEstimateTokensFloor(t *testing.T) {
	if got := EstimateTokens("short"); got != 200 {
		t.Fatalf("EstimateTokens(short) = %d, want floor 200", got)
	}
	long := make([]byte, 4000)
	for i := range long {
		long[i] = 'a'
	}
	if got := EstimateTokens(string(long)); got != 1000 {
		t.Fatalf("EstimateTokens(4000 chars) = %d, want 1000", got)
	}
}

func TestAdaptiveTimeoutCaps(t *testing.T) {
	cap := 60 * time.Second
	got := AdaptiveTimeout(200, cap)
	want := time.Duration((20.0 + 0.002*200) * float64(time.Second))
	if got != want {
		t.Fatalf("AdaptiveTimeout(200) = %v, want %v", got, want)
	}

	huge := AdaptiveTimeout(1_000_000, cap)
	if huge != cap {
		t.Fatalf("AdaptiveTimeout(huge) = %v, want capped at %v", huge, cap)
	}
}
