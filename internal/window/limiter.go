// ABOUTME: Sliding-window event counter shared by the rate limiter and idle-expiry sweep.
// ABOUTME: Check-and-record is atomic under one mutex; the clock is injectable for tests.

package window

import (
	"sync"
	"time"
)

// Cutoff returns the oldest instant still inside a trailing window of the
// given width ending at now. Anything before the cutoff has aged out.
func Cutoff(now time.Time, width time.Duration) time.Time {
	return now.Add(-width)
}

// Limiter counts events per key inside a trailing window. A key may record
// at most limit events per window; older events age out as the window
// slides.
type Limiter struct {
	limit int
	width time.Duration

	mu        sync.Mutex
	events    map[string][]time.Time
	lastPrune time.Time
	now       func() time.Time
}

// NewLimiter creates a limiter admitting up to limit events per key within
// each trailing window of the given width.
func NewLimiter(limit int, width time.Duration) *Limiter {
	if limit < 1 {
		limit = 1
	}
	if width <= 0 {
		width = time.Minute
	}
	return &Limiter{
		limit:  limit,
		width:  width,
		events: make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow records an event for key if the key still has capacity in the
// current window, and reports whether it was admitted. The check and the
// record are a single step: concurrent callers cannot both consume the
// last slot.
func (l *Limiter) Allow(key string) bool {
	now := l.now()
	cutoff := Cutoff(now, l.width)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneLocked(now, cutoff)

	recorded := l.events[key]
	for len(recorded) > 0 && recorded[0].Before(cutoff) {
		recorded = recorded[1:]
	}
	if len(recorded) >= l.limit {
		l.events[key] = recorded
		return false
	}
	l.events[key] = append(recorded, now)
	return true
}

// Remaining reports how many more events key may record in the current
// window without being rejected.
func (l *Limiter) Remaining(key string) int {
	cutoff := Cutoff(l.now(), l.width)

	l.mu.Lock()
	defer l.mu.Unlock()

	recorded := l.events[key]
	for len(recorded) > 0 && recorded[0].Before(cutoff) {
		recorded = recorded[1:]
	}
	l.events[key] = recorded
	return l.limit - len(recorded)
}

// Forget drops all recorded events for key.
func (l *Limiter) Forget(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.events, key)
}

// pruneLocked drops keys whose every event has aged out. It runs at most
// once per window width so steady traffic does not pay a full map scan on
// each call. Caller holds l.mu.
func (l *Limiter) pruneLocked(now, cutoff time.Time) {
	if now.Sub(l.lastPrune) < l.width {
		return
	}
	l.lastPrune = now
	for key, recorded := range l.events {
		if len(recorded) == 0 || recorded[len(recorded)-1].Before(cutoff) {
			delete(l.events, key)
		}
	}
}
