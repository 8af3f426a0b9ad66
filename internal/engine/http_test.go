// ABOUTME: Tests for the HTTP engine transport against a stub engine server.
// ABOUTME: Covers the POST contract, status handling, and lifecycle.

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/conhub/mcp-gateway/internal/mcp"
)

func newHTTPEngine(t *testing.T, handler http.HandlerFunc) *httpTransport {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tr := newHTTPTransport(srv.URL, time.Second, slog.Default())
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { tr.Stop(context.Background()) })
	return tr
}

func TestHTTPSend_PostsEnvelope(t *testing.T) {
	var gotMethod, gotPath, gotContentType string
	var gotBody []byte

	tr := newHTTPEngine(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		io.WriteString(w, `{"jsonrpc":"2.0","id":1,"result":{"tools":[]}}`)
	})

	resp, err := tr.Send(context.Background(), &mcp.Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage("1"),
		Method:  "tools/list",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if gotMethod != http.MethodPost {
		t.Errorf("method = %s, want POST", gotMethod)
	}
	if gotPath != "/mcp" {
		t.Errorf("path = %s, want /mcp", gotPath)
	}
	if gotContentType != "application/json" {
		t.Errorf("content type = %s", gotContentType)
	}

	var sent mcp.Request
	if err := json.Unmarshal(gotBody, &sent); err != nil {
		t.Fatalf("request body: %v", err)
	}
	if sent.Method != "tools/list" || string(sent.ID) != "1" {
		t.Errorf("sent envelope = %s", gotBody)
	}

	if string(resp.ID) != "1" {
		t.Errorf("response id = %s, want 1", resp.ID)
	}
	if string(resp.Result) != `{"tools":[]}` {
		t.Errorf("result = %s", resp.Result)
	}
}

func TestHTTPSend_NonSuccessStatus(t *testing.T) {
	tr := newHTTPEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := tr.Send(context.Background(), &mcp.Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage("1"),
		Method:  "tools/list",
	})
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("Send error = %v, want ErrTransport", err)
	}
}

func TestHTTPSend_MalformedBody(t *testing.T) {
	tr := newHTTPEngine(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "not json at all")
	})

	_, err := tr.Send(context.Background(), &mcp.Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage("1"),
		Method:  "tools/list",
	})
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("Send error = %v, want ErrTransport", err)
	}
}

func TestHTTPSend_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	tr := newHTTPTransport(url, time.Second, slog.Default())
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	_, err := tr.Send(context.Background(), &mcp.Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage("1"),
		Method:  "ping",
	})
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("Send error = %v, want ErrTransport", err)
	}
}

func TestHTTPLifecycle(t *testing.T) {
	tr := newHTTPTransport("http://localhost:3004", time.Second, slog.Default())

	if tr.Running() {
		t.Error("Running() = true before Start")
	}
	if _, err := tr.Send(context.Background(), &mcp.Request{JSONRPC: "2.0", ID: json.RawMessage("1"), Method: "ping"}); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Send before Start: err = %v, want ErrNotRunning", err)
	}

	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !tr.Running() {
		t.Error("Running() = false after Start")
	}

	if err := tr.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if tr.Running() {
		t.Error("Running() = true after Stop")
	}
	if err := tr.Stop(context.Background()); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}
