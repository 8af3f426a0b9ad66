// ABOUTME: Subprocess transport speaking newline-delimited JSON-RPC over stdio.
// ABOUTME: One reader goroutine resolves pending requests by correlation id.

package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/conhub/mcp-gateway/internal/mcp"
)

// maxLineBytes bounds a single engine output line. Search results can be
// large, so this is well above the bufio default.
const maxLineBytes = 4 << 20

type stdioTransport struct {
	command string
	args    []string
	timeout time.Duration
	grace   time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	exited chan struct{}

	// writeMu serializes stdin writes so concurrent senders never
	// interleave partial lines.
	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan *mcp.Response
}

func newStdioTransport(command string, args []string, timeout, grace time.Duration, logger *slog.Logger) *stdioTransport {
	return &stdioTransport{
		command: command,
		args:    args,
		timeout: timeout,
		grace:   grace,
		logger:  logger,
		pending: make(map[string]chan *mcp.Response),
	}
}

// Start spawns the engine process with piped stdio and launches the
// response reader. The process is not restarted if it exits.
func (t *stdioTransport) Start(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cmd != nil {
		return fmt.Errorf("engine already started")
	}

	cmd := exec.Command(t.command, t.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("engine stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("engine stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("engine stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start engine %q: %w", t.command, err)
	}

	t.cmd = cmd
	t.stdin = stdin
	t.exited = make(chan struct{})

	readerDone := make(chan struct{})
	go t.readLoop(stdout, readerDone)
	go t.drainStderr(stderr)
	go func() {
		<-readerDone
		if err := cmd.Wait(); err != nil {
			t.logger.Warn("engine process exited", "error", err)
		} else {
			t.logger.Debug("engine process exited")
		}
		close(t.exited)
	}()

	t.logger.Info("engine started", "command", t.command, "pid", cmd.Process.Pid)
	return nil
}

// Send writes one newline-terminated request and awaits the response
// carrying the same id. The request must already carry its id.
func (t *stdioTransport) Send(ctx context.Context, req *mcp.Request) (*mcp.Response, error) {
	t.mu.Lock()
	stdin := t.stdin
	t.mu.Unlock()
	if stdin == nil {
		return nil, ErrNotRunning
	}

	line, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	line = append(line, '\n')

	id := string(req.ID)
	ch := make(chan *mcp.Response, 1)
	t.pendingMu.Lock()
	if _, exists := t.pending[id]; exists {
		t.pendingMu.Unlock()
		return nil, fmt.Errorf("%w: duplicate request id %s", ErrTransport, id)
	}
	t.pending[id] = ch
	t.pendingMu.Unlock()

	t.writeMu.Lock()
	_, werr := stdin.Write(line)
	t.writeMu.Unlock()
	if werr != nil {
		t.takePending(id)
		return nil, fmt.Errorf("%w: write to engine: %v", ErrTransport, werr)
	}

	timer := time.NewTimer(t.timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok || resp == nil {
			return nil, ErrEngineExited
		}
		return resp, nil
	case <-ctx.Done():
		if resp := t.abandon(id, ch); resp != nil {
			return resp, nil
		}
		return nil, ctx.Err()
	case <-timer.C:
		if resp := t.abandon(id, ch); resp != nil {
			return resp, nil
		}
		return nil, fmt.Errorf("%w after %s", ErrTimeout, t.timeout)
	}
}

// Stop closes stdin, asks the process to terminate, and kills it if the
// grace period expires. Safe to call twice and after a failed Start.
func (t *stdioTransport) Stop(ctx context.Context) error {
	t.mu.Lock()
	cmd, stdin, exited := t.cmd, t.stdin, t.exited
	t.cmd, t.stdin = nil, nil
	t.mu.Unlock()

	if cmd == nil {
		return nil
	}
	if stdin != nil {
		_ = stdin.Close()
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)

	select {
	case <-exited:
		t.logger.Info("engine stopped")
		return nil
	case <-time.After(t.grace):
	case <-ctx.Done():
	}

	t.logger.Warn("engine did not exit in time, killing", "grace", t.grace)
	_ = cmd.Process.Kill()

	select {
	case <-exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether the engine process is alive.
func (t *stdioTransport) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cmd == nil {
		return false
	}
	select {
	case <-t.exited:
		return false
	default:
		return true
	}
}

// readLoop consumes engine stdout line by line until EOF, resolving
// pending requests as their responses arrive.
func (t *stdioTransport) readLoop(stdout io.Reader, done chan<- struct{}) {
	defer close(done)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		// Scanner reuses its buffer; the response keeps RawMessage
		// slices into the line, so copy before decoding.
		line := append([]byte(nil), raw...)

		var resp mcp.Response
		if err := json.Unmarshal(line, &resp); err != nil {
			t.logger.Warn("discarding malformed engine output", "error", err)
			continue
		}
		t.resolve(&resp)
	}

	if err := scanner.Err(); err != nil {
		t.logger.Warn("engine stdout closed", "error", err)
	}
	t.failPending()
}

// resolve routes a response to the pending request with the matching id.
// Unmatched responses are logged and discarded.
func (t *stdioTransport) resolve(resp *mcp.Response) {
	id := string(resp.ID)
	if id == "" || id == "null" {
		t.logger.Warn("engine response without id")
		return
	}

	t.pendingMu.Lock()
	ch, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
		ch <- resp
	}
	t.pendingMu.Unlock()

	if !ok {
		t.logger.Warn("engine response for unknown request", "id", id)
	}
}

// abandon removes the pending entry for id. If the reader resolved it in
// the same instant, the buffered response is returned so it wins over the
// timeout.
func (t *stdioTransport) abandon(id string, ch chan *mcp.Response) *mcp.Response {
	t.pendingMu.Lock()
	_, live := t.pending[id]
	delete(t.pending, id)
	t.pendingMu.Unlock()

	if !live {
		select {
		case resp := <-ch:
			return resp
		default:
		}
	}
	return nil
}

func (t *stdioTransport) takePending(id string) {
	t.pendingMu.Lock()
	delete(t.pending, id)
	t.pendingMu.Unlock()
}

// failPending closes every pending channel after the reader sees EOF so
// in-flight callers fail immediately instead of waiting out the timeout.
func (t *stdioTransport) failPending() {
	t.pendingMu.Lock()
	n := len(t.pending)
	for id, ch := range t.pending {
		delete(t.pending, id)
		close(ch)
	}
	t.pendingMu.Unlock()

	if n > 0 {
		t.logger.Warn("engine exited with requests in flight", "count", n)
	}
}

func (t *stdioTransport) drainStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if line := bytes.TrimSpace(scanner.Bytes()); len(line) > 0 {
			t.logger.Debug("engine stderr", "line", string(line))
		}
	}
}
