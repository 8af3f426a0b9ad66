// ABOUTME: Thread-safe TTL cache for positive API key verdicts.
// ABOUTME: Avoids re-validating hot keys against the auth service on every connection.

package auth

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// verdictEntry stores the cached identity and bookkeeping for one key.
type verdictEntry struct {
	identity  Identity
	timestamp time.Time
	element   *list.Element
}

// verdictCache is a thread-safe, TTL-based, size-limited cache of
// successful key verifications. Only positive verdicts are cached: a
// rejected or unreachable lookup must retry the auth service so freshly
// activated keys are never locked out. Keys are hashed before use so raw
// credential material never sits in memory longer than the lookup.
type verdictCache struct {
	mu      sync.RWMutex
	seen    map[string]*verdictEntry
	order   *list.List // hashed keys in insertion order (oldest at front)
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// newVerdictCache creates a cache with the specified TTL and maximum size.
// A background goroutine periodically cleans up expired entries.
func newVerdictCache(ttl time.Duration, maxSize int) *verdictCache {
	c := &verdictCache{
		seen:    make(map[string]*verdictEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// hashKey derives the cache key from the raw credential.
func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// get returns the cached identity for the key if present and unexpired.
func (c *verdictCache) get(key string) (Identity, bool) {
	hashed := hashKey(key)

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.seen[hashed]
	if !ok || time.Since(entry.timestamp) >= c.ttl {
		return Identity{}, false
	}
	return entry.identity, true
}

// put records a positive verdict. If the cache is at capacity, the oldest
// entry is evicted to make room.
func (c *verdictCache) put(key string, id Identity) {
	hashed := hashKey(key)
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	// If the key already exists, refresh it and move to back.
	if entry, exists := c.seen[hashed]; exists {
		entry.identity = id
		entry.timestamp = now
		c.order.MoveToBack(entry.element)
		return
	}

	if c.maxSize > 0 && len(c.seen) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(hashed)
	c.seen[hashed] = &verdictEntry{
		identity:  id,
		timestamp: now,
		element:   elem,
	}
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (c *verdictCache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	hashed, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, hashed)
}

// cleanup runs in a background goroutine, periodically removing expired entries.
func (c *verdictCache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

// runCleanup removes all expired entries from the cache.
func (c *verdictCache) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for hashed, entry := range c.seen {
		if now.Sub(entry.timestamp) > c.ttl {
			c.order.Remove(entry.element)
			delete(c.seen, hashed)
		}
	}
}

// Close stops the background cleanup goroutine. Safe to call multiple times.
func (c *verdictCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
