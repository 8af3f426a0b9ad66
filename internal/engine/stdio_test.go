// ABOUTME: Tests for the subprocess transport using in-process pipes.
// ABOUTME: Covers correlation, out-of-order replies, timeouts, and reader EOF.

package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/conhub/mcp-gateway/internal/mcp"
)

// pipeEngine wires a stdioTransport to an in-process fake engine. The test
// plays the engine side: read requests from requests, write responses with
// respond.
type pipeEngine struct {
	tr       *stdioTransport
	requests *bufio.Scanner
	writeMu  sync.Mutex
	out      *io.PipeWriter
}

func newPipeEngine(t *testing.T, timeout time.Duration) *pipeEngine {
	t.Helper()

	tr := &stdioTransport{
		timeout: timeout,
		grace:   time.Second,
		logger:  slog.Default(),
		pending: make(map[string]chan *mcp.Response),
	}

	stdinR, stdinW := io.Pipe()
	stdoutR, stdoutW := io.Pipe()
	tr.stdin = stdinW

	readerDone := make(chan struct{})
	go tr.readLoop(stdoutR, readerDone)
	t.Cleanup(func() {
		stdinW.Close()
		stdoutW.Close()
		<-readerDone
	})

	return &pipeEngine{
		tr:       tr,
		requests: bufio.NewScanner(stdinR),
		out:      stdoutW,
	}
}

// next reads one request line off the transport's stdin. Returns a zero
// request once the pipe closes so leaked engine goroutines exit quietly.
func (e *pipeEngine) next(t *testing.T) mcp.Request {
	t.Helper()
	if !e.requests.Scan() {
		return mcp.Request{}
	}
	var req mcp.Request
	if err := json.Unmarshal(e.requests.Bytes(), &req); err != nil {
		t.Errorf("request is not one JSON object per line: %v", err)
	}
	return req
}

func (e *pipeEngine) respondRaw(t *testing.T, line string) {
	t.Helper()
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if _, err := io.WriteString(e.out, line+"\n"); err != nil {
		t.Errorf("write response: %v", err)
	}
}

func (e *pipeEngine) respond(t *testing.T, id json.RawMessage, result string) {
	e.respondRaw(t, `{"jsonrpc":"2.0","id":`+string(id)+`,"result":`+result+`}`)
}

func TestStdioSend_ResolvesByID(t *testing.T) {
	e := newPipeEngine(t, time.Second)

	go func() {
		req := e.next(t)
		e.respond(t, req.ID, `{"ok":true}`)
	}()

	resp, err := e.tr.Send(context.Background(), &mcp.Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage("1"),
		Method:  "tools/list",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if string(resp.ID) != "1" {
		t.Errorf("response id = %s, want 1", resp.ID)
	}
	if string(resp.Result) != `{"ok":true}` {
		t.Errorf("result = %s", resp.Result)
	}
}

func TestStdioSend_OutOfOrderResponses(t *testing.T) {
	e := newPipeEngine(t, 2*time.Second)

	// The engine answers the second request first. Each caller must still
	// receive the payload matching its own id.
	go func() {
		first := e.next(t)
		second := e.next(t)
		e.respond(t, second.ID, `{"for":"second"}`)
		e.respond(t, first.ID, `{"for":"first"}`)
	}()

	type result struct {
		id   string
		resp *mcp.Response
		err  error
	}
	results := make(chan result, 2)
	send := func(id string) {
		resp, err := e.tr.Send(context.Background(), &mcp.Request{
			JSONRPC: "2.0",
			ID:      json.RawMessage(id),
			Method:  "tools/call",
		})
		results <- result{id: id, resp: resp, err: err}
	}

	go send("1")
	// Nudge the writes into a deterministic order on the pipe.
	time.Sleep(20 * time.Millisecond)
	go send("2")

	for i := 0; i < 2; i++ {
		r := <-results
		if r.err != nil {
			t.Fatalf("Send id=%s: %v", r.id, r.err)
		}
		want := `{"for":"first"}`
		if r.id == "2" {
			want = `{"for":"second"}`
		}
		if string(r.resp.Result) != want {
			t.Errorf("id=%s got result %s, want %s", r.id, r.resp.Result, want)
		}
	}
}

func TestStdioSend_Timeout(t *testing.T) {
	e := newPipeEngine(t, 50*time.Millisecond)

	go e.next(t)

	_, err := e.tr.Send(context.Background(), &mcp.Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage("1"),
		Method:  "slow",
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Send error = %v, want ErrTimeout", err)
	}

	e.tr.pendingMu.Lock()
	n := len(e.tr.pending)
	e.tr.pendingMu.Unlock()
	if n != 0 {
		t.Errorf("pending map holds %d entries after timeout, want 0", n)
	}
}

func TestStdioSend_ContextCancel(t *testing.T) {
	e := newPipeEngine(t, 5*time.Second)

	go e.next(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := e.tr.Send(ctx, &mcp.Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage("1"),
		Method:  "slow",
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Send error = %v, want deadline exceeded", err)
	}
}

func TestStdioReader_SkipsMalformedLines(t *testing.T) {
	e := newPipeEngine(t, time.Second)

	go func() {
		req := e.next(t)
		e.respondRaw(t, "this is not json")
		e.respondRaw(t, `{"jsonrpc":"2.0"`)
		e.respond(t, req.ID, `"fine"`)
	}()

	resp, err := e.tr.Send(context.Background(), &mcp.Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage("7"),
		Method:  "ping",
	})
	if err != nil {
		t.Fatalf("Send after malformed lines: %v", err)
	}
	if string(resp.Result) != `"fine"` {
		t.Errorf("result = %s", resp.Result)
	}
}

func TestStdioReader_IgnoresUnknownID(t *testing.T) {
	e := newPipeEngine(t, time.Second)

	go func() {
		req := e.next(t)
		e.respond(t, json.RawMessage("999"), `"stray"`)
		e.respond(t, req.ID, `"expected"`)
	}()

	resp, err := e.tr.Send(context.Background(), &mcp.Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage("3"),
		Method:  "ping",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if string(resp.Result) != `"expected"` {
		t.Errorf("result = %s", resp.Result)
	}
}

func TestStdioSend_FailsFastOnEngineExit(t *testing.T) {
	e := newPipeEngine(t, 10*time.Second)

	started := make(chan struct{}, 2)
	results := make(chan error, 2)
	for _, id := range []string{"1", "2"} {
		go func(id string) {
			started <- struct{}{}
			_, err := e.tr.Send(context.Background(), &mcp.Request{
				JSONRPC: "2.0",
				ID:      json.RawMessage(id),
				Method:  "hang",
			})
			results <- err
		}(id)
	}
	<-started
	<-started
	e.next(t)
	e.next(t)

	// Closing stdout is how the transport observes process death.
	start := time.Now()
	e.out.Close()

	for i := 0; i < 2; i++ {
		if err := <-results; !errors.Is(err, ErrEngineExited) {
			t.Fatalf("Send error = %v, want ErrEngineExited", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("in-flight requests took %s to fail, want prompt failure", elapsed)
	}
}

func TestStdioSend_DuplicateID(t *testing.T) {
	e := newPipeEngine(t, time.Second)

	go func() {
		req := e.next(t)
		time.Sleep(100 * time.Millisecond)
		e.respond(t, req.ID, `"late"`)
	}()

	errs := make(chan error, 1)
	go func() {
		_, err := e.tr.Send(context.Background(), &mcp.Request{
			JSONRPC: "2.0",
			ID:      json.RawMessage("5"),
			Method:  "first",
		})
		errs <- err
	}()

	time.Sleep(20 * time.Millisecond)
	_, err := e.tr.Send(context.Background(), &mcp.Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage("5"),
		Method:  "second",
	})
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("duplicate id error = %v, want ErrTransport", err)
	}
	if err := <-errs; err != nil {
		t.Fatalf("first sender must be unaffected: %v", err)
	}
}

func TestStdioSend_NotRunning(t *testing.T) {
	tr := newStdioTransport("./conhub-engine", nil, time.Second, time.Second, slog.Default())

	_, err := tr.Send(context.Background(), &mcp.Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage("1"),
		Method:  "ping",
	})
	if !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Send error = %v, want ErrNotRunning", err)
	}
}

func TestStdioStart_CommandNotFound(t *testing.T) {
	tr := newStdioTransport("/nonexistent/conhub-engine", nil, time.Second, time.Second, slog.Default())

	if err := tr.Start(context.Background()); err == nil {
		t.Fatal("expected Start to fail for missing binary")
	}
	if tr.Running() {
		t.Error("Running() must be false after failed Start")
	}
	if err := tr.Stop(context.Background()); err != nil {
		t.Errorf("Stop after failed Start: %v", err)
	}
}

func TestStdioLifecycle(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on cat")
	}

	tr := newStdioTransport("cat", nil, time.Second, time.Second, slog.Default())
	ctx := context.Background()

	if err := tr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !tr.Running() {
		t.Fatal("Running() = false after Start")
	}

	// cat echoes the request line back, which parses as a response
	// carrying the same id.
	resp, err := tr.Send(ctx, &mcp.Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage("11"),
		Method:  "echo",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if string(resp.ID) != "11" {
		t.Errorf("echoed id = %s, want 11", resp.ID)
	}

	if err := tr.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if tr.Running() {
		t.Error("Running() = true after Stop")
	}
	if err := tr.Stop(ctx); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}
