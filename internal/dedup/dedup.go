// Package dedup implements the Dedup Cache: a process-local, sliding
// window of recently seen (target, content) pairs used to suppress
// duplicate cascade and parallel writes.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/opencode-ai/iterm-orchestrator/internal/clock"
)

const (
	// DefaultMaxEntries bounds the sliding window by entry count.
	DefaultMaxEntries = 1024
	// DefaultTTL bounds the sliding window by age.
	DefaultTTL = 5 * time.Minute
)

// Cache is the Dedup Cache. It is safe for concurrent use.
type Cache struct {
	mu  sync.Mutex
	lru *lru.Cache[string, time.Time]
	ttl time.Duration
	clk clock.Clock
}

// New creates a Cache bounded to maxEntries with the given TTL. A
// maxEntries <= 0 or ttl <= 0 falls back to the package defaults.
func New(maxEntries int, ttl time.Duration, clk clock.Clock) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	l, _ := lru.New[string, time.Time](maxEntries) // maxEntries > 0 always here
	return &Cache{lru: l, ttl: ttl, clk: clk}
}

// Key builds the dedup key for a (normalized target, content) pair.
func Key(normalizedTarget, content string) string {
	sum := sha256.Sum256([]byte(content))
	var b strings.Builder
	b.WriteString(normalizedTarget)
	b.WriteByte(':')
	b.WriteString(hex.EncodeToString(sum[:]))
	return b.String()
}

// ShouldSuppress reports whether key was seen within the TTL window,
// refreshing its timestamp either way so a steady stream of repeats keeps
// extending its own suppression window.
func (c *Cache) ShouldSuppress(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clk.Now()
	seenAt, ok := c.lru.Get(key)
	c.lru.Add(key, now)
	if !ok {
		return false
	}
	return now.Sub(seenAt) < c.ttl
}

// Len returns the number of entries currently retained.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
