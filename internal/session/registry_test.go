// ABOUTME: Tests for the session registry covering capacity, updates, expiry, and stats.
// ABOUTME: Uses a rebindable fake clock to drive idle expiry deterministically.

package session

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func newTestRegistry(t *testing.T, cfg Config) *Registry {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return NewRegistry(cfg)
}

func TestCreateAssignsDefaults(t *testing.T) {
	r := newTestRegistry(t, Config{MaxClients: 10})

	sess, err := r.Create(NewSession{UserID: "user-1", TenantID: "tenant-a"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sess.ID == "" {
		t.Error("expected a generated session id")
	}
	if sess.State != StateConnecting {
		t.Errorf("state = %q, want %q", sess.State, StateConnecting)
	}
	if sess.ConnectedAt.IsZero() || sess.LastActivity.IsZero() {
		t.Error("timestamps should be set on creation")
	}
	if sess.RequestCount != 0 {
		t.Errorf("request count = %d, want 0", sess.RequestCount)
	}
	if sess.UserID != "user-1" || sess.TenantID != "tenant-a" {
		t.Errorf("identity attributes not recorded: %+v", sess)
	}
}

func TestCreateEnforcesCapacity(t *testing.T) {
	r := newTestRegistry(t, Config{MaxClients: 3})

	var ids []string
	for i := 0; i < 3; i++ {
		sess, err := r.Create(NewSession{})
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		ids = append(ids, sess.ID)
	}

	if _, err := r.Create(NewSession{}); err != ErrCapacity {
		t.Fatalf("expected ErrCapacity, got %v", err)
	}

	// Removing one frees a slot.
	r.Remove(ids[0])
	if _, err := r.Create(NewSession{}); err != nil {
		t.Fatalf("create after removal: %v", err)
	}
}

func TestCreateConcurrentNeverOvershoots(t *testing.T) {
	const max = 10
	r := newTestRegistry(t, Config{MaxClients: max})

	var wg sync.WaitGroup
	created := make(chan string, max*3)
	for i := 0; i < max*3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if sess, err := r.Create(NewSession{}); err == nil {
				created <- sess.ID
			}
		}()
	}
	wg.Wait()
	close(created)

	count := 0
	for range created {
		count++
	}
	if count != max {
		t.Fatalf("created %d sessions, want exactly %d", count, max)
	}
	if got := r.Stats().Total; got != max {
		t.Fatalf("registry holds %d sessions, want %d", got, max)
	}
}

func TestGetUnknownSession(t *testing.T) {
	r := newTestRegistry(t, Config{MaxClients: 10})
	if _, err := r.Get("nope"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateAppliesPartialMutation(t *testing.T) {
	r := newTestRegistry(t, Config{MaxClients: 10})
	sess, err := r.Create(NewSession{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := r.Update(sess.ID, Update{State: StateInitializing}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := r.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != StateInitializing {
		t.Errorf("state = %q, want initializing", got.State)
	}
	if got.ClientName != "" {
		t.Errorf("client name mutated unexpectedly: %q", got.ClientName)
	}

	if err := r.Update(sess.ID, Update{State: StateReady, ClientName: "agent", ClientVersion: "1.0"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ = r.Get(sess.ID)
	if got.State != StateReady || got.ClientName != "agent" || got.ClientVersion != "1.0" {
		t.Errorf("update not applied: %+v", got)
	}

	if err := r.Update("nope", Update{State: StateReady}); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateRefreshesActivity(t *testing.T) {
	now := time.Now()
	r := newTestRegistry(t, Config{MaxClients: 10})
	r.now = func() time.Time { return now }

	sess, _ := r.Create(NewSession{})
	before := sess.LastActivity

	now = now.Add(5 * time.Second)
	if err := r.Update(sess.ID, Update{State: StateReady}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ := r.Get(sess.ID)
	if !got.LastActivity.After(before) {
		t.Errorf("last_activity not refreshed: %v -> %v", before, got.LastActivity)
	}
	if got.RequestCount != 0 {
		t.Errorf("Update should not count as a request, count = %d", got.RequestCount)
	}
}

func TestTouchCountsAndStaysMonotonic(t *testing.T) {
	now := time.Now()
	r := newTestRegistry(t, Config{MaxClients: 10})
	r.now = func() time.Time { return now }

	sess, _ := r.Create(NewSession{})

	now = now.Add(time.Second)
	if err := r.Touch(sess.ID); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	got, _ := r.Get(sess.ID)
	if got.RequestCount != 1 {
		t.Errorf("request count = %d, want 1", got.RequestCount)
	}
	high := got.LastActivity

	// A clock stepping backwards must not move last_activity backwards.
	now = now.Add(-10 * time.Second)
	if err := r.Touch(sess.ID); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	got, _ = r.Get(sess.ID)
	if got.LastActivity.Before(high) {
		t.Errorf("last_activity went backwards: %v -> %v", high, got.LastActivity)
	}
	if got.RequestCount != 2 {
		t.Errorf("request count = %d, want 2", got.RequestCount)
	}

	if err := r.Touch("nope"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	var (
		mu      sync.Mutex
		removed []string
	)
	r := newTestRegistry(t, Config{
		MaxClients: 10,
		OnRemove: func(sess Session, reason string) {
			mu.Lock()
			defer mu.Unlock()
			removed = append(removed, sess.ID+"/"+reason)
		},
	})

	sess, _ := r.Create(NewSession{})
	r.Remove(sess.ID)
	r.Remove(sess.ID) // second removal is a no-op
	r.Remove("never-existed")

	mu.Lock()
	defer mu.Unlock()
	if len(removed) != 1 {
		t.Fatalf("OnRemove ran %d times, want 1: %v", len(removed), removed)
	}
	if removed[0] != sess.ID+"/"+RemoveReasonClosed {
		t.Errorf("unexpected removal record %q", removed[0])
	}
}

func TestSnapshotsAreIsolated(t *testing.T) {
	r := newTestRegistry(t, Config{MaxClients: 10})
	sess, _ := r.Create(NewSession{Metadata: map[string]string{"origin": "test"}})

	got, _ := r.Get(sess.ID)
	got.Metadata["origin"] = "mutated"
	got.State = StateError

	fresh, _ := r.Get(sess.ID)
	if fresh.Metadata["origin"] != "test" {
		t.Error("caller mutation leaked into registry metadata")
	}
	if fresh.State != StateConnecting {
		t.Errorf("caller mutation leaked into registry state: %q", fresh.State)
	}
}

func TestStats(t *testing.T) {
	r := newTestRegistry(t, Config{MaxClients: 50})

	a, _ := r.Create(NewSession{})
	b, _ := r.Create(NewSession{})
	c, _ := r.Create(NewSession{})
	_ = r.Update(a.ID, Update{State: StateReady})
	_ = r.Update(b.ID, Update{State: StateReady})
	_ = r.Touch(a.ID)
	_ = r.Touch(a.ID)
	_ = r.Touch(b.ID)
	_ = c

	stats := r.Stats()
	if stats.Total != 3 {
		t.Errorf("total = %d, want 3", stats.Total)
	}
	if stats.Max != 50 {
		t.Errorf("max = %d, want 50", stats.Max)
	}
	if stats.ByState[StateReady] != 2 {
		t.Errorf("ready = %d, want 2", stats.ByState[StateReady])
	}
	if stats.ByState[StateConnecting] != 1 {
		t.Errorf("connecting = %d, want 1", stats.ByState[StateConnecting])
	}
	if got, ok := stats.ByState[StateError]; !ok || got != 0 {
		t.Errorf("error bucket = %d (present=%v), want explicit 0", got, ok)
	}
	if stats.TotalRequests != 3 {
		t.Errorf("total requests = %d, want 3", stats.TotalRequests)
	}
}

func TestSweepRemovesOnlyExpired(t *testing.T) {
	now := time.Now()
	var (
		mu      sync.Mutex
		expired []string
	)
	r := newTestRegistry(t, Config{
		MaxClients:  10,
		IdleTimeout: time.Minute,
		OnRemove: func(sess Session, reason string) {
			if reason != RemoveReasonExpired {
				t.Errorf("reason = %q, want expired", reason)
			}
			mu.Lock()
			defer mu.Unlock()
			expired = append(expired, sess.ID)
		},
	})
	r.now = func() time.Time { return now }

	stale, _ := r.Create(NewSession{})
	now = now.Add(2 * time.Minute)
	fresh, _ := r.Create(NewSession{})

	r.sweep()

	if _, err := r.Get(stale.ID); err != ErrNotFound {
		t.Errorf("stale session should be gone, got err=%v", err)
	}
	if _, err := r.Get(fresh.ID); err != nil {
		t.Errorf("fresh session should survive: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(expired) != 1 || expired[0] != stale.ID {
		t.Errorf("expired = %v, want [%s]", expired, stale.ID)
	}
}

func TestTouchDefersExpiry(t *testing.T) {
	now := time.Now()
	r := newTestRegistry(t, Config{MaxClients: 10, IdleTimeout: time.Minute})
	r.now = func() time.Time { return now }

	sess, _ := r.Create(NewSession{})

	now = now.Add(45 * time.Second)
	if err := r.Touch(sess.ID); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	now = now.Add(45 * time.Second)
	r.sweep()

	// 90s since creation but only 45s since the touch.
	if _, err := r.Get(sess.ID); err != nil {
		t.Errorf("touched session should survive the sweep: %v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	r := newTestRegistry(t, Config{
		MaxClients:    10,
		IdleTimeout:   time.Minute,
		SweepInterval: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}
