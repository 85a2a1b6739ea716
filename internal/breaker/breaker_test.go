package breaker

import (
	"testing"
	"time"
)

func TestOpensAtThreshold(t *testing.T) {
	r := NewRegistry(3, 10*time.Second)
	key := "gpt-5"

	for i := 0; i < 2; i++ {
		r.RecordResult(key, false)
		if r.IsOpen(key) {
			t.Fatalf("breaker opened after only %d failures, want it to open at 3", i+1)
		}
	}
	r.RecordResult(key, false)
	if !r.IsOpen(key) {
		t.Fatal("breaker did not open at threshold")
	}
}

func TestSuccessResets(t *testing.T) {
	r := NewRegistry(2, 10*time.Second)
	key := "gpt-4o"
	r.RecordResult(key, false)
	r.RecordResult(key, true)
	r.RecordResult(key, false)
	if r.IsOpen(key) {
		t.Fatal("breaker opened after success reset the counter, then only one more failure")
	}
}

func TestCooldownCloses(t *testing.T) {
	fixed := time.Now()
	r := NewRegistry(1, 50*time.Millisecond)
	r.now = func() time.Time { return fixed }
	key := "gpt-4o-mini"
	r.RecordResult(key, false)
	if !r.IsOpen(key) {
		t.Fatal("breaker did not open")
	}
	r.now = func() time.Time { return fixed.Add(100 * time.Millisecond) }
	if r.IsOpen(key) {
		t.Fatal("breaker stayed open past cooldown window")
	}
}
