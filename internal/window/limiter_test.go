// ABOUTME: Tests for the sliding-window limiter covering admission, slide, and key isolation.
// ABOUTME: Uses a rebindable fake clock so window movement is deterministic.

package window

import (
	"sync"
	"testing"
	"time"
)

func TestLimiterAdmitsUpToLimit(t *testing.T) {
	now := time.Now()
	l := NewLimiter(3, time.Minute)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !l.Allow("alice") {
			t.Fatalf("event %d should be admitted", i+1)
		}
	}
	if l.Allow("alice") {
		t.Fatal("fourth event inside the window should be rejected")
	}
}

func TestLimiterWindowSlides(t *testing.T) {
	now := time.Now()
	l := NewLimiter(2, time.Minute)
	l.now = func() time.Time { return now }

	if !l.Allow("alice") || !l.Allow("alice") {
		t.Fatal("first two events should be admitted")
	}
	if l.Allow("alice") {
		t.Fatal("third event should be rejected")
	}

	// Advance past the first event only; one slot frees up.
	now = now.Add(time.Minute + time.Millisecond)
	if !l.Allow("alice") {
		t.Fatal("event after the window slid should be admitted")
	}
	if l.Allow("alice") {
		t.Fatal("window still holds two recent events")
	}
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	now := time.Now()
	l := NewLimiter(1, time.Minute)
	l.now = func() time.Time { return now }

	if !l.Allow("alice") {
		t.Fatal("alice should be admitted")
	}
	if !l.Allow("bob") {
		t.Fatal("bob should be admitted despite alice being at her limit")
	}
	if l.Allow("alice") {
		t.Fatal("alice should be rejected")
	}
}

func TestLimiterRemaining(t *testing.T) {
	now := time.Now()
	l := NewLimiter(5, time.Minute)
	l.now = func() time.Time { return now }

	if got := l.Remaining("alice"); got != 5 {
		t.Fatalf("Remaining = %d, want 5", got)
	}
	l.Allow("alice")
	l.Allow("alice")
	if got := l.Remaining("alice"); got != 3 {
		t.Fatalf("Remaining = %d, want 3", got)
	}
	now = now.Add(2 * time.Minute)
	if got := l.Remaining("alice"); got != 5 {
		t.Fatalf("Remaining after slide = %d, want 5", got)
	}
}

func TestLimiterForget(t *testing.T) {
	now := time.Now()
	l := NewLimiter(1, time.Minute)
	l.now = func() time.Time { return now }

	l.Allow("alice")
	if l.Allow("alice") {
		t.Fatal("alice should be at her limit")
	}
	l.Forget("alice")
	if !l.Allow("alice") {
		t.Fatal("alice should be admitted after Forget")
	}
}

func TestLimiterPrunesStaleKeys(t *testing.T) {
	now := time.Now()
	l := NewLimiter(1, time.Minute)
	l.now = func() time.Time { return now }

	for i := 0; i < 50; i++ {
		l.Allow(string(rune('a' + i%26)))
	}
	now = now.Add(3 * time.Minute)
	l.Allow("fresh")

	l.mu.Lock()
	keys := len(l.events)
	l.mu.Unlock()
	if keys != 1 {
		t.Fatalf("stale keys survived prune: %d entries", keys)
	}
}

func TestLimiterConcurrentAllowNeverOveradmits(t *testing.T) {
	l := NewLimiter(10, time.Minute)

	var wg sync.WaitGroup
	admitted := make(chan struct{}, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("shared") {
				admitted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(admitted)

	count := 0
	for range admitted {
		count++
	}
	if count != 10 {
		t.Fatalf("admitted %d events, want exactly 10", count)
	}
}

func TestCutoff(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	got := Cutoff(now, time.Hour)
	want := time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("Cutoff = %v, want %v", got, want)
	}
}
