// Package breaker implements the Circuit Breaker (C8): a per-key
// consecutive-failure counter that opens after a configurable
// threshold and stays open for a cooldown window, grounded on the
// non-raising CircuitBreaker used by the LLM client.
package breaker

import (
	"sync"
	"time"
)

// Registry holds one breaker state per key_name (e.g. a model name or
// analysis key), guarded by a single mutex. It is process-global and
// safe for concurrent use.
type Registry struct {
	mu        sync.Mutex
	state     map[string]*entry
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

type entry struct {
	consecutiveFailures int
	openUntil           time.Time
}

// NewRegistry builds a breaker registry with the given failure
// threshold and cooldown window.
func NewRegistry(threshold int, cooldown time.Duration) *Registry {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 600 * time.Second
	}
	return &Registry{
		state:     make(map[string]*entry),
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// IsOpen reports whether key is currently tripped. An open breaker
// auto-closes (falls back to half-open, i.e. reports false) once the
// cooldown window elapses; a subsequent failure reopens it.
func (r *Registry) IsOpen(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.state[key]
	if !ok {
		return false
	}
	if e.openUntil.IsZero() {
		return false
	}
	if r.now().After(e.openUntil) {
		return false
	}
	return true
}

// RecordResult updates the breaker state for key. A success resets
// the consecutive-failure counter and clears any open state. A
// failure increments the counter and opens the breaker once the
// threshold is reached.
func (r *Registry) RecordResult(key string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.state[key]
	if !ok {
		e = &entry{}
		r.state[key] = e
	}
	if success {
		e.consecutiveFailures = 0
		e.openUntil = time.Time{}
		return
	}
	e.consecutiveFailures++
	if e.consecutiveFailures >= r.threshold {
		e.openUntil = r.now().Add(r.cooldown)
	}
}

// Reset clears all breaker state. Intended for tests.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = make(map[string]*entry)
}
