// Package scheduler implements the Scheduler (C9): a semaphore that
// bounds concurrent LLM calls and a token bucket that bounds tokens
// per minute, both process-global and shared across all analysis
// keys.
package scheduler

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Scheduler gates LLM calls on two resources: a concurrency slot and
// a pool of available tokens, refilled at TPMLimit/60 per second up
// to a burst capacity of TPMLimit.
type Scheduler struct {
	sem     chan struct{}
	limiter *rate.Limiter
}

// New builds a Scheduler with the given concurrency bound and
// tokens-per-minute limit.
func New(concurrency, tpmLimit int) *Scheduler {
	if concurrency <= 0 {
		concurrency = 2
	}
	if tpmLimit <= 0 {
		tpmLimit = 80000
	}
	perSecond := rate.Limit(float64(tpmLimit) / 60.0)
	return &Scheduler{
		sem:     make(chan struct{}, concurrency),
		limiter: rate.NewLimiter(perSecond, tpmLimit),
	}
}

// Acquire takes a concurrency slot, then waits for tokensNeeded
// tokens to become available, bounded by waitTimeout. On timeout, or
// if the bucket can never hold tokensNeeded tokens (request exceeds
// burst capacity), the concurrency slot is released and Acquire
// returns false. The caller must call Release exactly once for every
// Acquire that returns true.
func (s *Scheduler) Acquire(ctx context.Context, tokensNeeded int, waitTimeout time.Duration) (bool, error) {
	waitCtx, cancel := context.WithTimeout(ctx, waitTimeout)
	defer cancel()

	select {
	case s.sem <- struct{}{}:
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}

	if err := s.limiter.WaitN(waitCtx, tokensNeeded); err != nil {
		<-s.sem
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}
	return true, nil
}

// Release returns a concurrency slot taken by a successful Acquire.
func (s *Scheduler) Release() {
	select {
	case <-s.sem:
	default:
	}
}
