// ABOUTME: Tests for the tool registry.
// ABOUTME: Covers registration rules, listing order, and dispatch.

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/conhub/mcp-gateway/internal/mcp"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noopTool(name string) Tool {
	return Tool{
		Name:        name,
		Description: name + " does nothing",
		InputSchema: json.RawMessage(`{"type":"object"}`),
		Handler: func(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error) {
			return &mcp.CallToolResult{Content: []mcp.Content{{Type: "text", Text: name}}}, nil
		},
	}
}

func TestRegister(t *testing.T) {
	reg := NewRegistry(testLogger())
	if err := reg.Register(noopTool("alpha")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if got := len(reg.List()); got != 1 {
		t.Errorf("List() length = %d, want 1", got)
	}
}

func TestRegister_Duplicate(t *testing.T) {
	reg := NewRegistry(testLogger())
	if err := reg.Register(noopTool("alpha")); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}
	if err := reg.Register(noopTool("alpha")); err == nil {
		t.Fatal("second Register() error = nil, want duplicate error")
	}
}

func TestRegister_Invalid(t *testing.T) {
	reg := NewRegistry(testLogger())
	if err := reg.Register(Tool{Handler: noopTool("x").Handler}); err == nil {
		t.Error("Register() with empty name error = nil")
	}
	if err := reg.Register(Tool{Name: "no-handler"}); err == nil {
		t.Error("Register() without handler error = nil")
	}
}

func TestList_PreservesRegistrationOrder(t *testing.T) {
	reg := NewRegistry(testLogger())
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := reg.Register(noopTool(name)); err != nil {
			t.Fatalf("Register(%s) error = %v", name, err)
		}
	}

	infos := reg.List()
	if len(infos) != 3 {
		t.Fatalf("List() length = %d, want 3", len(infos))
	}
	for i, want := range []string{"zeta", "alpha", "mid"} {
		if infos[i].Name != want {
			t.Errorf("List()[%d] = %q, want %q", i, infos[i].Name, want)
		}
	}
	if infos[0].Description == "" || len(infos[0].InputSchema) == 0 {
		t.Errorf("listing metadata missing: %+v", infos[0])
	}
}

func TestCall(t *testing.T) {
	reg := NewRegistry(testLogger())

	var gotArgs json.RawMessage
	tool := noopTool("echo")
	tool.Handler = func(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error) {
		gotArgs = args
		return &mcp.CallToolResult{Content: []mcp.Content{{Type: "text", Text: "done"}}}, nil
	}
	if err := reg.Register(tool); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	result, err := reg.Call(context.Background(), "echo", json.RawMessage(`{"k":"v"}`))
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if result.Content[0].Text != "done" {
		t.Errorf("result text = %q, want done", result.Content[0].Text)
	}
	if string(gotArgs) != `{"k":"v"}` {
		t.Errorf("handler saw args %s", gotArgs)
	}
}

func TestCall_UnknownTool(t *testing.T) {
	reg := NewRegistry(testLogger())
	_, err := reg.Call(context.Background(), "missing", nil)
	if !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("Call() error = %v, want ErrUnknownTool", err)
	}
}
