// Package cache implements the Cache (C11): a two-tier store (an
// optional remote KV tier plus on-disk JSON per key) for validated
// analysis payloads, fingerprinted on prompt+schema+prompt_version,
// plus a separate opaque-id store for screenshots.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"brandscan/internal/model"
)

// Fingerprint computes the content-addressed cache key for an
// analysis call: sha256 over the input text, prompt, schema name, and
// prompt version, so any of those changing invalidates prior entries.
func Fingerprint(text, prompt, schemaName, promptVersion string) string {
	h := sha256.New()
	h.Write([]byte(text))
	h.Write([]byte{0})
	h.Write([]byte(prompt))
	h.Write([]byte{0})
	h.Write([]byte(schemaName))
	h.Write([]byte{0})
	h.Write([]byte(promptVersion))
	return hex.EncodeToString(h.Sum(nil))
}

// Store is the result cache: disk-backed, with an optional Redis
// remote tier consulted first. Reads enforce TTL; writes are
// best-effort (a write failure is silently ignored, never fatal).
type Store struct {
	dir    string
	ttl    time.Duration
	remote *redis.Client
}

type diskEntry struct {
	Payload    map[string]any `json:"payload"`
	WrittenAt  time.Time      `json:"written_at"`
	TTLSeconds int            `json:"ttl_seconds"`
}

// NewStore builds a cache store rooted at dir with the given default
// TTL. remote may be nil to disable the remote tier.
func NewStore(dir string, ttl time.Duration, remote *redis.Client) *Store {
	return &Store{dir: dir, ttl: ttl, remote: remote}
}

func (s *Store) path(key model.AnalysisKey, fingerprint string) string {
	return filepath.Join(s.dir, string(key), fingerprint+".json")
}

// Get returns the cached payload for (key, fingerprint), or ok=false
// if absent or expired.
func (s *Store) Get(ctx context.Context, key model.AnalysisKey, fingerprint string) (map[string]any, bool) {
	if s.remote != nil {
		if payload, ok := s.getRemote(ctx, key, fingerprint); ok {
			return payload, true
		}
	}
	return s.getDisk(key, fingerprint)
}

func (s *Store) remoteKey(key model.AnalysisKey, fingerprint string) string {
	return fmt.Sprintf("brandscan:cache:%s:%s", key, fingerprint)
}

func (s *Store) getRemote(ctx context.Context, key model.AnalysisKey, fingerprint string) (map[string]any, bool) {
	raw, err := s.remote.Get(ctx, s.remoteKey(key, fingerprint)).Result()
	if err != nil {
		return nil, false
	}
	var e diskEntry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, false
	}
	return e.Payload, e.Payload != nil
}

func (s *Store) getDisk(key model.AnalysisKey, fingerprint string) (map[string]any, bool) {
	data, err := os.ReadFile(s.path(key, fingerprint))
	if err != nil {
		return nil, false
	}
	var e diskEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, false
	}
	ttl := s.ttl
	if e.TTLSeconds > 0 {
		ttl = time.Duration(e.TTLSeconds) * time.Second
	}
	if time.Since(e.WrittenAt) > ttl {
		return nil, false
	}
	return e.Payload, true
}

// Set writes payload for (key, fingerprint) to both tiers,
// best-effort. Concurrent writes to the same fingerprint are
// content-addressed, so last-write-wins is an acceptable outcome.
func (s *Store) Set(ctx context.Context, key model.AnalysisKey, fingerprint string, payload map[string]any) {
	e := diskEntry{Payload: payload, WrittenAt: time.Now(), TTLSeconds: int(s.ttl.Seconds())}
	data, err := json.Marshal(e)
	if err != nil {
		return
	}

	if s.remote != nil {
		_ = s.remote.Set(ctx, s.remoteKey(key, fingerprint), data, s.ttl).Err()
	}

	dir := filepath.Join(s.dir, string(key))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	_ = os.WriteFile(s.path(key, fingerprint), data, 0o644)
}

// ScreenshotCache holds captured screenshots keyed by an opaque id,
// shared between the scan pipeline (write-once) and the Gateway's
// retrieval endpoint (read-many). A mutex guards the in-memory index;
// a disk copy under screenshots/ is a failsafe for process restarts.
type ScreenshotCache struct {
	mu      sync.Mutex
	entries map[string]*model.Screenshot
	dir     string
}

func NewScreenshotCache(dir string) *ScreenshotCache {
	return &ScreenshotCache{entries: make(map[string]*model.Screenshot), dir: dir}
}

// Put stores a screenshot under the caller-supplied opaque id.
func (c *ScreenshotCache) Put(id string, shot *model.Screenshot) {
	c.mu.Lock()
	c.entries[id] = shot
	c.mu.Unlock()

	if c.dir == "" {
		return
	}
	ext := "jpg"
	if shot.MIME == "image/png" {
		ext = "png"
	}
	if err := os.MkdirAll(c.dir, 0o755); err == nil {
		_ = os.WriteFile(filepath.Join(c.dir, id+"."+ext), shot.Bytes, 0o644)
	}
}

// Get returns the screenshot for id, reading through to disk if it is
// not (yet) in the in-memory index — e.g. after a process restart.
func (c *ScreenshotCache) Get(id string) (*model.Screenshot, bool) {
	c.mu.Lock()
	shot, ok := c.entries[id]
	c.mu.Unlock()
	if ok {
		return shot, true
	}
	if c.dir == "" {
		return nil, false
	}
	for ext, mime := range map[string]string{"jpg": "image/jpeg", "jpeg": "image/jpeg", "png": "image/png"} {
		data, err := os.ReadFile(filepath.Join(c.dir, id+"."+ext))
		if err == nil {
			shot := &model.Screenshot{Bytes: data, MIME: mime, CacheID: id}
			c.mu.Lock()
			c.entries[id] = shot
			c.mu.Unlock()
			return shot, true
		}
	}
	return nil, false
}
