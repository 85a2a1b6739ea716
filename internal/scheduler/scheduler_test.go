package scheduler

import (
	"context"
	"testing"
	"time"
)

func TestAcquireReleaseRoundTrip(t *testing.T) {
	s := New(1, 80000)
	ok, err := s.Acquire(context.Background(), 100, time.Second)
	if err != nil || !ok {
		t.Fatalf("Acquire() = %v, %v; want true, nil", ok, err)
	}
	s.Release()
}

func TestConcurrencyBound(t *testing.T) {
	s := New(1, 80000)
	ctx := context.Background()
	ok, err := s.Acquire(ctx, 10, time.Second)
	if err != nil || !ok {
		t.Fatalf("first Acquire failed: %v, %v", ok, err)
	}
	defer s.Release()

	done := make(chan bool, 1)
	go func() {
		ok2, _ := s.Acquire(ctx, 10, 150*time.Millisecond)
		done <- ok2
	}()

	select {
	case ok2 := <-done:
		if ok2 {
			t.Fatal("second Acquire succeeded while first slot was held")
		}
	case <-time.After(time.Second):
		t.Fatal("second Acquire never returned")
	}
}

func TestAcquireTimesOutWhenBucketExhausted(t *testing.T) {
	s := New(2, 60) // 1 token/sec refill, burst 60
	ctx := context.Background()
	ok, err := s.Acquire(ctx, 60, time.Second)
	if err != nil || !ok {
		t.Fatalf("first Acquire should drain the bucket: %v, %v", ok, err)
	}
	s.Release()

	ok, _ = s.Acquire(ctx, 60, 100*time.Millisecond)
	if ok {
		t.Fatal("Acquire succeeded immediately after bucket was drained, want timeout")
	}
}
