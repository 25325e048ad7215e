package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/recall/internal/checkpoint"
	"github.com/hpungsan/recall/internal/config"
	"github.com/hpungsan/recall/internal/db"
	"github.com/hpungsan/recall/internal/errors"
	"github.com/hpungsan/recall/internal/inject"
	"github.com/hpungsan/recall/internal/ops"
	"github.com/hpungsan/recall/internal/project"
	"github.com/hpungsan/recall/internal/state"
	"github.com/hpungsan/recall/internal/store/local"
)

// testSetup creates an Env over a temporary database with the local store.
func testSetup(t *testing.T) *ops.Env {
	t.Helper()

	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	cfg.StoreBackend = config.StoreLocal
	kv := state.NewSQLiteStore(database)
	s := local.New(database)
	return &ops.Env{
		Config:      cfg,
		Store:       s,
		Resolver:    project.NewResolver(s, kv, "", nil),
		Checkpoints: checkpoint.NewStore(kv, nil),
		Dedup:       inject.NewDeduplicator(kv, nil),
	}
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func TestHandleAddThenSearch(t *testing.T) {
	env := testSetup(t)
	h := NewHandlers(env, t.TempDir())
	ctx := context.Background()

	result, err := h.HandleAdd(ctx, makeRequest(map[string]any{"content": "The hook log lives in ~/.recall/logs"}))
	if err != nil {
		t.Fatalf("HandleAdd returned error: %v", err)
	}
	added := parseOutput(t, result)
	if added["id"] == "" {
		t.Fatalf("expected id, got %v", added)
	}

	result, err = h.HandleSearch(ctx, makeRequest(map[string]any{"query": "hook log", "limit": float64(5)}))
	if err != nil {
		t.Fatalf("HandleSearch returned error: %v", err)
	}
	out := parseOutput(t, result)
	items, ok := out["items"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("items = %v, want one hit", out["items"])
	}
	if out["collection"] != added["collection"] {
		t.Errorf("collection = %v, want %v", out["collection"], added["collection"])
	}
}

func TestHandleSearch_Errors(t *testing.T) {
	env := testSetup(t)
	h := NewHandlers(env, t.TempDir())
	ctx := context.Background()

	tests := []struct {
		name      string
		args      map[string]any
		errorCode string
	}{
		{"missing query", map[string]any{}, "INVALID_REQUEST"},
		{"unknown argument", map[string]any{"query": "x", "workspace": "w"}, "INVALID_REQUEST"},
		{"bad limit type", map[string]any{"query": "x", "limit": "ten"}, "INVALID_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandleSearch(ctx, makeRequest(tt.args))
			if err != nil {
				t.Fatalf("HandleSearch returned error: %v", err)
			}
			if !result.IsError {
				t.Fatalf("expected error result")
			}
			assertErrorCode(t, result, tt.errorCode)
		})
	}
}

func TestHandleAdd_NotConfigured(t *testing.T) {
	env := testSetup(t)
	env.Store = nil
	h := NewHandlers(env, t.TempDir())

	result, err := h.HandleAdd(context.Background(), makeRequest(map[string]any{"content": "something to keep"}))
	if err != nil {
		t.Fatalf("HandleAdd returned error: %v", err)
	}
	assertErrorCode(t, result, "NOT_CONFIGURED")
}

func TestHandleStatus(t *testing.T) {
	env := testSetup(t)
	h := NewHandlers(env, t.TempDir())
	ctx := context.Background()

	if err := env.Checkpoints.Save(ctx, checkpoint.Checkpoint{SessionID: "s1", LastUUID: "u1"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	result, err := h.HandleStatus(ctx, makeRequest(nil))
	if err != nil {
		t.Fatalf("HandleStatus returned error: %v", err)
	}
	out := parseOutput(t, result)
	if out["configured"] != true {
		t.Errorf("configured = %v, want true", out["configured"])
	}
	sessions, ok := out["sessions"].([]any)
	if !ok || len(sessions) != 1 {
		t.Fatalf("sessions = %v, want one", out["sessions"])
	}

	result, err = h.HandleStatus(ctx, makeRequest(map[string]any{"session_id": "nope"}))
	if err != nil {
		t.Fatalf("HandleStatus returned error: %v", err)
	}
	assertErrorCode(t, result, "NOT_FOUND")
}

func TestServerRegistration(t *testing.T) {
	env := testSetup(t)

	s := NewServer(env, "test")
	tools := s.ListTools()
	if tools == nil {
		t.Fatal("expected tools to be registered, got nil")
	}

	expectedTools := []string{"memory_search", "memory_add", "memory_status"}
	if len(tools) != len(expectedTools) {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(expectedTools))
	}
	for _, name := range expectedTools {
		if _, ok := tools[name]; !ok {
			t.Errorf("missing registered tool: %s", name)
		}
	}
}

func TestServerRegistration_WithDisabledTools(t *testing.T) {
	env := testSetup(t)
	env.Config.DisabledTools = []string{"memory_add", "memory_add"}

	tools := NewServer(env, "test").ListTools()
	if len(tools) != 2 {
		t.Errorf("registered tool count = %d, want 2", len(tools))
	}
	if _, ok := tools["memory_add"]; ok {
		t.Error("disabled tool memory_add should not be registered")
	}
}

func TestValidateDisabledTools(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{"all known", []string{"memory_add", "memory_status"}, []string{}},
		{"unknown", []string{"memory_add", "memory_delete"}, []string{"memory_delete"}},
		{"empty", nil, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateDisabledTools(tt.input)
			if !slices.Equal(got, tt.want) {
				t.Errorf("ValidateDisabledTools(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestAllToolNames(t *testing.T) {
	want := []string{"memory_add", "memory_search", "memory_status"}
	if got := AllToolNames(); !slices.Equal(got, want) {
		t.Errorf("AllToolNames() = %v, want %v", got, want)
	}
}

func TestErrorResult_InternalDoesNotExposeDetails(t *testing.T) {
	r := errorResult(errors.NewInternal(fmt.Errorf("sql error: open /tmp/secret.db: permission denied")))
	if !r.IsError {
		t.Fatal("expected IsError=true")
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(r.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	errObj := payload["error"].(map[string]any)

	if errObj["code"] != string(errors.ErrInternal) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrInternal)
	}
	if errObj["message"] != "an internal error occurred" {
		t.Fatalf("message leaked: %v", errObj["message"])
	}
}

func TestErrorResult_WrappedErrorKeepsCode(t *testing.T) {
	r := errorResult(fmt.Errorf("search: %w", errors.NewStoreUnavailable("search", nil)))
	assertErrorCode(t, r, string(errors.ErrStoreUnavailable))
}

func TestErrorResult_NonInternalIncludesDetails(t *testing.T) {
	r := errorResult(errors.NewNotFound("session", "abc"))

	var payload map[string]any
	if err := json.Unmarshal([]byte(r.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	errObj := payload["error"].(map[string]any)
	if _, ok := errObj["details"]; !ok {
		t.Fatal("expected non-INTERNAL errors to include details when present")
	}
}

// Helper functions

// parseOutput extracts and unmarshals the JSON output from an MCP result.
func parseOutput(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	var output map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &output); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return output
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()

	if len(result.Content) == 0 {
		t.Errorf("no content in error result")
		return
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Errorf("content is not TextContent")
		return
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(text.Text), &payload); err != nil {
		t.Errorf("failed to unmarshal error payload: %v", err)
		return
	}
	errorObj, ok := payload["error"].(map[string]any)
	if !ok {
		t.Errorf("no error object in payload")
		return
	}
	if code, _ := errorObj["code"].(string); code != expectedCode {
		t.Errorf("got error code %q, want %q", code, expectedCode)
	}
}

func extractErrorMessage(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return "<no content>"
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return "<not text content>"
	}
	return text.Text
}
