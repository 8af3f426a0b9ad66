// ABOUTME: Tests for the feature toggle client against a stub toggle service
// ABOUTME: Covers caching, 404 defaults, and unreachable-service fallbacks

package toggle

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestIsEnabled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/toggles/hybridSearch" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"hybridSearch","enabled":true}`))
	}))
	defer srv.Close()

	c := New(srv.URL, testLogger())
	if !c.IsEnabled(context.Background(), "hybridSearch", false) {
		t.Error("expected toggle to be enabled")
	}
}

func TestIsEnabled_CachesVerdict(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"name":"hybridSearch","enabled":true}`))
	}))
	defer srv.Close()

	c := New(srv.URL, testLogger())
	for i := 0; i < 3; i++ {
		if !c.IsEnabled(context.Background(), "hybridSearch", false) {
			t.Fatal("expected toggle to be enabled")
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("service calls = %d, want 1", n)
	}
}

func TestIsEnabled_NotFoundReturnsDefault(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := New(srv.URL, testLogger())
	if c.IsEnabled(context.Background(), "missing", false) {
		t.Error("expected default false for missing toggle")
	}
	if !c.IsEnabled(context.Background(), "missing", true) {
		t.Error("expected default true for missing toggle")
	}

	// Misses are not cached.
	if n := calls.Load(); n != 2 {
		t.Errorf("service calls = %d, want 2", n)
	}
}

func TestIsEnabled_ServiceDownReturnsDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := New(srv.URL, testLogger())
	if c.IsEnabled(context.Background(), "hybridSearch", false) {
		t.Error("expected default false when service is down")
	}
}

func TestIsEnabled_ServerErrorReturnsDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, testLogger())
	if c.IsEnabled(context.Background(), "hybridSearch", false) {
		t.Error("expected default false on server error")
	}
}

func TestIsEnabled_MissingEnabledField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"hybridSearch"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, testLogger())
	if !c.IsEnabled(context.Background(), "hybridSearch", true) {
		t.Error("expected default true when enabled field is absent")
	}
}

func TestClearCache(t *testing.T) {
	var enabled atomic.Bool
	enabled.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if enabled.Load() {
			w.Write([]byte(`{"name":"hybridSearch","enabled":true}`))
		} else {
			w.Write([]byte(`{"name":"hybridSearch","enabled":false}`))
		}
	}))
	defer srv.Close()

	c := New(srv.URL, testLogger())
	if !c.IsEnabled(context.Background(), "hybridSearch", false) {
		t.Fatal("expected toggle to start enabled")
	}

	enabled.Store(false)
	c.ClearCache()
	if c.IsEnabled(context.Background(), "hybridSearch", false) {
		t.Error("expected fresh verdict after cache clear")
	}
}
