package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	rerrors "github.com/hpungsan/recall/internal/errors"
)

func TestLoad_DefaultWhenMissing(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	def := DefaultConfig()
	if cfg.MaxProfileItems != def.MaxProfileItems {
		t.Fatalf("MaxProfileItems = %d, want %d", cfg.MaxProfileItems, def.MaxProfileItems)
	}
	if cfg.CharBudget != 2000 {
		t.Errorf("CharBudget = %d, want 2000", cfg.CharBudget)
	}
	if cfg.MinScore != 0.3 {
		t.Errorf("MinScore = %v, want 0.3", cfg.MinScore)
	}
	if cfg.StateBackend != StateFile {
		t.Errorf("StateBackend = %q, want %q", cfg.StateBackend, StateFile)
	}
	if !reflect.DeepEqual(cfg.SkipTools, def.SkipTools) {
		t.Errorf("SkipTools = %v, want %v", cfg.SkipTools, def.SkipTools)
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte(`{"max_profile_items": 3, "skip_tools": ["Bash"], "debug": true}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxProfileItems != 3 {
		t.Fatalf("MaxProfileItems = %d, want %d", cfg.MaxProfileItems, 3)
	}
	if !reflect.DeepEqual(cfg.SkipTools, []string{"Bash"}) {
		t.Errorf("SkipTools = %v, want [Bash]", cfg.SkipTools)
	}
	if !cfg.Debug {
		t.Error("Debug = false, want true")
	}
	if cfg.CharBudget != 2000 {
		t.Errorf("CharBudget = %d, want default 2000", cfg.CharBudget)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte(`{not json}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := Load(tmpDir); err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
}

func TestLoadWithRepo(t *testing.T) {
	globalDir := t.TempDir()
	repoDir := t.TempDir()
	nested := filepath.Join(repoDir, "a", "b")
	if err := os.MkdirAll(filepath.Join(repoDir, ".recall"), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(nested, 0700); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(globalDir, "config.json"),
		[]byte(`{"char_budget": 1500, "disabled_tools": ["memory_add"]}`), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(repoDir, ".recall", "config.json"),
		[]byte(`{"char_budget": 800, "collection_id": "col-1", "disabled_tools": ["memory_status"]}`), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadWithRepo(globalDir, nested)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.CharBudget != 800 {
		t.Errorf("CharBudget = %d, want 800 (repo wins)", cfg.CharBudget)
	}
	if cfg.CollectionID != "col-1" {
		t.Errorf("CollectionID = %q, want col-1", cfg.CollectionID)
	}
	want := []string{"memory_add", "memory_status"}
	if !reflect.DeepEqual(cfg.DisabledTools, want) {
		t.Errorf("DisabledTools = %v, want %v", cfg.DisabledTools, want)
	}
}

func TestFindRepoConfig_NotFound(t *testing.T) {
	if got := FindRepoConfig(t.TempDir()); got != "" {
		t.Errorf("FindRepoConfig() = %q, want empty", got)
	}
	if got := FindRepoConfig(""); got != "" {
		t.Errorf("FindRepoConfig(\"\") = %q, want empty", got)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"NEBULA_API_KEY":    "nebula-key-123",
		"RECALL_SKIP_TOOLS": "Read, Bash ,,Read",
		"RECALL_DEBUG":      "true",
		"RECALL_REDIS_ADDR": "localhost:6379",
	}
	cfg := DefaultConfig()
	cfg.ApplyEnv(func(k string) string { return env[k] })

	if cfg.APIKey != "nebula-key-123" {
		t.Errorf("APIKey = %q", cfg.APIKey)
	}
	if !reflect.DeepEqual(cfg.SkipTools, []string{"Read", "Bash"}) {
		t.Errorf("SkipTools = %v, want [Read Bash]", cfg.SkipTools)
	}
	if !cfg.Debug {
		t.Error("Debug = false, want true")
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("RedisAddr = %q", cfg.RedisAddr)
	}

	// RECALL_API_KEY takes precedence over NEBULA_API_KEY
	env["RECALL_API_KEY"] = "recall-key-456"
	cfg.ApplyEnv(func(k string) string { return env[k] })
	if cfg.APIKey != "recall-key-456" {
		t.Errorf("APIKey = %q, want recall-key-456", cfg.APIKey)
	}
}

func TestLoadCredentials(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, "credentials.json"), []byte(`{"api_key": " file-key-0001 "}`), 0600); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.LoadCredentials(tmpDir)
	if cfg.APIKey != "file-key-0001" {
		t.Errorf("APIKey = %q, want file-key-0001", cfg.APIKey)
	}

	// An already configured key is kept
	cfg = DefaultConfig()
	cfg.APIKey = "env-key-00001"
	cfg.LoadCredentials(tmpDir)
	if cfg.APIKey != "env-key-00001" {
		t.Errorf("APIKey = %q, want env-key-00001", cfg.APIKey)
	}

	// Missing file leaves the key empty
	cfg = DefaultConfig()
	cfg.LoadCredentials(t.TempDir())
	if cfg.APIKey != "" {
		t.Errorf("APIKey = %q, want empty", cfg.APIKey)
	}
}

func TestRequireAPIKey(t *testing.T) {
	cfg := DefaultConfig()
	if _, err := cfg.RequireAPIKey(); !rerrors.Is(err, rerrors.ErrNotConfigured) {
		t.Fatalf("RequireAPIKey() error = %v, want NOT_CONFIGURED", err)
	}

	cfg.APIKey = "valid-api-key"
	key, err := cfg.RequireAPIKey()
	if err != nil || key != "valid-api-key" {
		t.Fatalf("RequireAPIKey() = %q, %v", key, err)
	}

	local := DefaultConfig()
	local.StoreBackend = StoreLocal
	if _, err := local.RequireAPIKey(); err != nil {
		t.Fatalf("local backend should not need a key: %v", err)
	}
}

func TestValidateAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"empty", "", true},
		{"short", "abc", true},
		{"whitespace", "abcdef ghijkl", true},
		{"valid", "neb_0123456789", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAPIKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAPIKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
		})
	}
}

func TestShouldCaptureTool(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		tool string
		want bool
	}{
		{"Edit", true},
		{"Bash", true},
		{"Read", false},
		{"TodoWrite", false},
		{"WebFetch", false}, // not on the allowlist
	}
	for _, tt := range tests {
		if got := cfg.ShouldCaptureTool(tt.tool); got != tt.want {
			t.Errorf("ShouldCaptureTool(%q) = %v, want %v", tt.tool, got, tt.want)
		}
	}

	mcp := &Config{CaptureTools: []string{"mcp__github__*", "Edit"}, SkipTools: []string{"mcp__github__get_*"}}
	if !mcp.ShouldCaptureTool("mcp__github__create_issue") {
		t.Error("glob capture pattern should match")
	}
	if mcp.ShouldCaptureTool("mcp__github__get_file") {
		t.Error("glob skip pattern should win")
	}
	if mcp.ShouldCaptureTool("mcp__slack__post") {
		t.Error("tool outside allowlist should not be captured")
	}

	open := &Config{SkipTools: []string{"Read"}}
	if !open.ShouldCaptureTool("WebFetch") {
		t.Error("empty capture list should allow everything not skipped")
	}
	if open.ShouldCaptureTool("Read") {
		t.Error("skip list should win")
	}
}

func TestMerge_ToolListsReplace(t *testing.T) {
	base := DefaultConfig()
	overlay := &Config{CaptureTools: []string{"Write"}}

	got := Merge(base, overlay)
	if !reflect.DeepEqual(got.CaptureTools, []string{"Write"}) {
		t.Errorf("CaptureTools = %v, want [Write]", got.CaptureTools)
	}
	if !reflect.DeepEqual(got.SkipTools, base.SkipTools) {
		t.Errorf("SkipTools = %v, want defaults", got.SkipTools)
	}
}
