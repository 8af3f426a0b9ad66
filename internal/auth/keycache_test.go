// ABOUTME: Tests for the API key verdict cache.
// ABOUTME: Verifies TTL expiry, capacity eviction, and credential hashing.

package auth

import (
	"testing"
	"time"
)

func TestVerdictCache_PutGet(t *testing.T) {
	c := newVerdictCache(time.Minute, 10)
	defer c.Close()

	c.put("sk-one", Identity{UserID: "u1"})

	got, ok := c.get("sk-one")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.UserID != "u1" {
		t.Errorf("UserID = %q, want u1", got.UserID)
	}

	if _, ok := c.get("sk-unknown"); ok {
		t.Error("unexpected hit for unknown key")
	}
}

func TestVerdictCache_Expiry(t *testing.T) {
	c := newVerdictCache(10*time.Millisecond, 10)
	defer c.Close()

	c.put("sk-one", Identity{UserID: "u1"})
	time.Sleep(30 * time.Millisecond)

	if _, ok := c.get("sk-one"); ok {
		t.Error("expected expired entry to miss")
	}
}

func TestVerdictCache_EvictsOldest(t *testing.T) {
	c := newVerdictCache(time.Minute, 2)
	defer c.Close()

	c.put("sk-a", Identity{UserID: "a"})
	c.put("sk-b", Identity{UserID: "b"})
	c.put("sk-c", Identity{UserID: "c"})

	if _, ok := c.get("sk-a"); ok {
		t.Error("oldest entry should have been evicted")
	}
	if _, ok := c.get("sk-b"); !ok {
		t.Error("sk-b should survive")
	}
	if _, ok := c.get("sk-c"); !ok {
		t.Error("sk-c should survive")
	}
}

func TestVerdictCache_RefreshMovesToBack(t *testing.T) {
	c := newVerdictCache(time.Minute, 2)
	defer c.Close()

	c.put("sk-a", Identity{UserID: "a"})
	c.put("sk-b", Identity{UserID: "b"})
	c.put("sk-a", Identity{UserID: "a2"})
	c.put("sk-c", Identity{UserID: "c"})

	if _, ok := c.get("sk-b"); ok {
		t.Error("sk-b became the oldest after sk-a was refreshed and should be evicted")
	}
	got, ok := c.get("sk-a")
	if !ok {
		t.Fatal("refreshed sk-a should survive")
	}
	if got.UserID != "a2" {
		t.Errorf("UserID = %q, want refreshed value a2", got.UserID)
	}
}

func TestVerdictCache_StoresHashedKeys(t *testing.T) {
	c := newVerdictCache(time.Minute, 10)
	defer c.Close()

	c.put("sk-secret-material", Identity{UserID: "u1"})

	c.mu.RLock()
	defer c.mu.RUnlock()
	for k := range c.seen {
		if k == "sk-secret-material" {
			t.Fatal("raw key material must not appear in the cache map")
		}
	}
}

func TestVerdictCache_CloseIsIdempotent(t *testing.T) {
	c := newVerdictCache(time.Minute, 10)
	c.Close()
	c.Close()
}
