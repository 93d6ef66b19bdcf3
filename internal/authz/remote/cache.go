package remote

import (
	"context"
	"sync"
	"time"
)

// CachedDecision is the cacheable subset of an authority response.
type CachedDecision struct {
	Allowed       bool   `json:"allowed"`
	Reason        string `json:"reason"`
	MatchedPolicy string `json:"matched_policy,omitempty"`
	MatchedRole   string `json:"matched_role,omitempty"`
}

// Cache stores authority decisions keyed by (user, namespace, action,
// category). Implementations must be safe for concurrent use. Races between
// concurrent writers are acceptable; entries are idempotent recomputations
// of the same decision.
type Cache interface {
	Get(ctx context.Context, key string) (CachedDecision, bool)
	Set(ctx context.Context, key string, decision CachedDecision, ttl time.Duration)
}

// CacheKey builds the canonical cache key. Requests without a category share
// the "global" slot.
func CacheKey(userID, namespace, action, categoryID string) string {
	if categoryID == "" {
		categoryID = "global"
	}
	return userID + "|" + namespace + "|" + action + "|" + categoryID
}

type memoryEntry struct {
	decision  CachedDecision
	expiresAt time.Time
}

// MemoryCache is an in-process Cache with lazy expiry: stale entries are
// dropped on read and overwritten on write, so no sweeper goroutine is
// needed.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) (CachedDecision, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return CachedDecision{}, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		if current, ok := c.entries[key]; ok && current.expiresAt.Equal(entry.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return CachedDecision{}, false
	}
	return entry.decision, true
}

func (c *MemoryCache) Set(_ context.Context, key string, decision CachedDecision, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[key] = memoryEntry{decision: decision, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
}

// Len reports the number of live entries, counting stale ones not yet
// evicted.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
