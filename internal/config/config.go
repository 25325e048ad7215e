package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/gobwas/glob"

	rerrors "github.com/hpungsan/recall/internal/errors"
)

// State backends.
const (
	StateFile   = "file"
	StateSQLite = "sqlite"
	StateRedis  = "redis"
)

// Memory store backends.
const (
	StoreNebula = "nebula"
	StoreLocal  = "local"
)

// DefaultBaseURL is the Nebula API endpoint used when base_url is unset.
const DefaultBaseURL = "https://api.trynebula.ai"

// Config holds application configuration.
type Config struct {
	// APIKey authenticates against the remote memory store.
	// Never written to disk by recall; comes from env, config.json, or credentials.json.
	APIKey string `json:"api_key,omitempty"`

	// BaseURL is the remote memory store endpoint.
	BaseURL string `json:"base_url,omitempty"`

	// CollectionID pins every project to one collection instead of resolving per project.
	CollectionID string `json:"collection_id,omitempty"`

	// Debug enables the hook log (stderr plus ~/.recall/logs/hooks.log).
	Debug bool `json:"debug,omitempty"`

	// MaxProfileItems caps each section of the session-start context block.
	MaxProfileItems int `json:"max_profile_items"`

	// MinScore drops prompt-time search hits below this relevance (0..1).
	MinScore float64 `json:"min_score"`

	// CharBudget caps the size of the prompt-time context block.
	CharBudget int `json:"char_budget"`

	// MinContentChars is the length a cleaned message must exceed to be captured.
	MinContentChars int `json:"min_content_chars"`

	// SkipTools are never captured on post-tool events. Overlay replaces base.
	SkipTools []string `json:"skip_tools,omitempty"`

	// CaptureTools, when non-empty, is the allowlist for post-tool capture. Overlay replaces base.
	CaptureTools []string `json:"capture_tools,omitempty"`

	// SkipProfile disables the session-start context block.
	SkipProfile bool `json:"skip_profile,omitempty"`

	// DisablePromptSearch turns off prompt-time memory injection (capture still runs).
	DisablePromptSearch bool `json:"disable_prompt_search,omitempty"`

	// StateBackend selects where checkpoints and dedup hashes live: file, sqlite or redis.
	StateBackend string `json:"state_backend,omitempty"`

	// RedisAddr is host:port for the redis state backend.
	RedisAddr string `json:"redis_addr,omitempty"`

	// RedisPrefix namespaces recall keys in a shared redis.
	RedisPrefix string `json:"redis_prefix,omitempty"`

	// RedisTTLHours expires redis state; 0 keeps it forever.
	RedisTTLHours int `json:"redis_ttl_hours,omitempty"`

	// StoreBackend selects the memory store: nebula (remote) or local (sqlite FTS).
	StoreBackend string `json:"store_backend,omitempty"`

	// StoreTimeoutSeconds bounds each HTTP request to the remote store.
	StoreTimeoutSeconds int `json:"store_timeout_seconds"`

	// StoreMaxRetries bounds attempts per remote call, including the first.
	StoreMaxRetries int `json:"store_max_retries"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:             DefaultBaseURL,
		MaxProfileItems:     5,
		MinScore:            0.3,
		CharBudget:          2000,
		MinContentChars:     10,
		SkipTools:           []string{"Read", "Glob", "Grep", "TodoWrite", "AskUserQuestion"},
		CaptureTools:        []string{"Edit", "Write", "Bash", "Task"},
		StateBackend:        StateFile,
		RedisPrefix:         "recall:",
		StoreBackend:        StoreNebula,
		StoreTimeoutSeconds: 10,
		StoreMaxRetries:     3,
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.recall.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.recall) and repo (.recall) directories.
// Repo config is found by walking upward from startDir to find the nearest .recall/config.json.
// Repo config takes precedence for scalar values.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .recall/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	if startDir == "" {
		return ""
	}
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".recall", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars. Tool filters are replaced wholesale
// so a repo can narrow them; DisabledTools is merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.APIKey = pickString(overlay.APIKey, base.APIKey)
	result.BaseURL = pickString(overlay.BaseURL, base.BaseURL)
	result.CollectionID = pickString(overlay.CollectionID, base.CollectionID)
	result.StateBackend = pickString(overlay.StateBackend, base.StateBackend)
	result.RedisAddr = pickString(overlay.RedisAddr, base.RedisAddr)
	result.RedisPrefix = pickString(overlay.RedisPrefix, base.RedisPrefix)
	result.StoreBackend = pickString(overlay.StoreBackend, base.StoreBackend)

	result.MaxProfileItems = pickInt(overlay.MaxProfileItems, base.MaxProfileItems)
	result.CharBudget = pickInt(overlay.CharBudget, base.CharBudget)
	result.MinContentChars = pickInt(overlay.MinContentChars, base.MinContentChars)
	result.RedisTTLHours = pickInt(overlay.RedisTTLHours, base.RedisTTLHours)
	result.StoreTimeoutSeconds = pickInt(overlay.StoreTimeoutSeconds, base.StoreTimeoutSeconds)
	result.StoreMaxRetries = pickInt(overlay.StoreMaxRetries, base.StoreMaxRetries)
	result.DBMaxOpenConns = pickInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = pickInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	result.MinScore = overlay.MinScore
	if result.MinScore == 0 {
		result.MinScore = base.MinScore
	}

	// Booleans: overlay wins if true, else base
	result.Debug = base.Debug || overlay.Debug
	result.SkipProfile = base.SkipProfile || overlay.SkipProfile
	result.DisablePromptSearch = base.DisablePromptSearch || overlay.DisablePromptSearch

	result.SkipTools = pickSlice(overlay.SkipTools, base.SkipTools)
	result.CaptureTools = pickSlice(overlay.CaptureTools, base.CaptureTools)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

// ApplyEnv overrides config values from environment variables.
// getenv is os.Getenv in production; tests pass a map lookup.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("RECALL_API_KEY"); v != "" {
		c.APIKey = v
	} else if v := getenv("NEBULA_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := getenv("RECALL_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := getenv("RECALL_COLLECTION_ID"); v != "" {
		c.CollectionID = v
	}
	if v := getenv("RECALL_SKIP_TOOLS"); v != "" {
		c.SkipTools = splitList(v)
	}
	if v := getenv("RECALL_STATE_BACKEND"); v != "" {
		c.StateBackend = v
	}
	if v := getenv("RECALL_REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if b, err := strconv.ParseBool(getenv("RECALL_DEBUG")); err == nil && b {
		c.Debug = true
	}
}

// credentials is the on-disk shape of credentials.json.
type credentials struct {
	APIKey string `json:"api_key"`
}

// LoadCredentials fills APIKey from baseDir/credentials.json when nothing else set it.
// A missing or unreadable credentials file is not an error.
func (c *Config) LoadCredentials(baseDir string) {
	if c.APIKey != "" {
		return
	}
	data, err := os.ReadFile(filepath.Join(baseDir, "credentials.json"))
	if err != nil {
		return
	}
	var creds credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return
	}
	c.APIKey = strings.TrimSpace(creds.APIKey)
}

// RequireAPIKey returns the API key or a NOT_CONFIGURED error.
// The local store backend needs no key.
func (c *Config) RequireAPIKey() (string, error) {
	if c.StoreBackend == StoreLocal {
		return "", nil
	}
	if c.APIKey == "" {
		return "", rerrors.NewNotConfigured("api_key",
			"set RECALL_API_KEY or add api_key to ~/.recall/credentials.json")
	}
	if err := ValidateAPIKey(c.APIKey); err != nil {
		return "", err
	}
	return c.APIKey, nil
}

var whitespace = regexp.MustCompile(`\s`)

// ValidateAPIKey checks the key looks like a key: at least 10 characters, no whitespace.
func ValidateAPIKey(key string) error {
	switch {
	case key == "":
		return rerrors.NewNotConfigured("api_key", "key is empty")
	case len(key) < 10:
		return rerrors.NewNotConfigured("api_key", "key is too short")
	case whitespace.MatchString(key):
		return rerrors.NewNotConfigured("api_key", "key contains whitespace")
	}
	return nil
}

// ShouldCaptureTool reports whether a post-tool event for toolName is captured.
// SkipTools always wins; a non-empty CaptureTools acts as an allowlist.
// Entries may be glob patterns such as "mcp__github__*".
func (c *Config) ShouldCaptureTool(toolName string) bool {
	if matchAny(c.SkipTools, toolName) {
		return false
	}
	if len(c.CaptureTools) > 0 {
		return matchAny(c.CaptureTools, toolName)
	}
	return true
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if p == name {
			return true
		}
		g, err := glob.Compile(p)
		if err != nil {
			continue
		}
		if g.Match(name) {
			return true
		}
	}
	return false
}

func pickString(overlay, base string) string {
	if overlay != "" {
		return overlay
	}
	return base
}

func pickInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

func pickSlice(overlay, base []string) []string {
	if len(overlay) > 0 {
		return mergeStringSlice(nil, overlay)
	}
	return mergeStringSlice(nil, base)
}

func splitList(s string) []string {
	return mergeStringSlice(nil, strings.Split(s, ","))
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
