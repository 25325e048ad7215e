package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hpungsan/recall/internal/checkpoint"
	"github.com/hpungsan/recall/internal/config"
	"github.com/hpungsan/recall/internal/db"
	"github.com/hpungsan/recall/internal/errors"
	"github.com/hpungsan/recall/internal/inject"
	"github.com/hpungsan/recall/internal/logging"
	"github.com/hpungsan/recall/internal/mcp"
	"github.com/hpungsan/recall/internal/ops"
	"github.com/hpungsan/recall/internal/project"
	"github.com/hpungsan/recall/internal/state"
	"github.com/hpungsan/recall/internal/store"
	"github.com/hpungsan/recall/internal/store/local"
	"github.com/hpungsan/recall/internal/store/nebula"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"hook": true, "add": true, "search": true, "status": true, "index": true,
	"ui": true, "help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v"
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
                      _ _
   _ __ ___  ___ __ _| | |
  | '__/ _ \/ __/ _' | | |
  | | |  __/ (_| (_| | | |
  |_|  \___|\___\__,_|_|_|

  Persistent memory across coding sessions

  Usage: recall <command> [options]
         recall --help

  MCP server mode requires piped input.`)
}

// baseDir returns ~/.recall.
func baseDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".recall"), nil
}

// runtime owns the resources shared by every command.
type runtime struct {
	env     *ops.Env
	closers []func() error
}

// Close releases the runtime's resources in reverse order.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			rt.env.Logger.Debug("close failed", "error", err)
		}
	}
}

// newRuntime loads configuration for cwd and opens state and the memory
// store. A memory store that is not configured is not an error: Env.Store
// stays nil and Env.StoreErr says why.
func newRuntime(ctx context.Context, base, cwd, component string) (*runtime, error) {
	cfg, err := config.LoadWithRepo(base, cwd)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.ApplyEnv(os.Getenv)
	cfg.LoadCredentials(base)

	logger, closeLog, logErr := logging.New(logging.Options{
		Debug:     cfg.Debug,
		BaseDir:   base,
		Component: component,
	})
	if logErr != nil {
		logger.Warn("hook log unavailable", "error", logErr)
	}
	rt := &runtime{closers: []func() error{closeLog}}
	rt.env = &ops.Env{Config: cfg, Logger: logger}

	kv, err := state.Open(ctx, cfg, base)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to open state: %w", err)
	}
	rt.closers = append(rt.closers, kv.Close)

	s, storeErr, err := openStore(cfg, base, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	if s != nil {
		if c, ok := s.(interface{ Close() error }); ok {
			rt.closers = append(rt.closers, c.Close)
		}
		rt.env.Store = s
	}
	rt.env.StoreErr = storeErr
	pinned := cfg.CollectionID
	if pinned != "" {
		if err := project.ValidateTag(pinned); err != nil {
			logger.Warn("ignoring collection_id", "collection_id", pinned, "error", err)
			pinned = ""
		}
	}
	rt.env.Resolver = project.NewResolver(s, kv, pinned, logger)
	rt.env.Checkpoints = checkpoint.NewStore(kv, logger)
	rt.env.Dedup = inject.NewDeduplicator(kv, logger)
	return rt, nil
}

// openStore builds the memory store selected by cfg.StoreBackend. A missing
// or malformed API key is reported as storeErr, not err.
func openStore(cfg *config.Config, base string, logger *slog.Logger) (s store.Store, storeErr, err error) {
	switch cfg.StoreBackend {
	case config.StoreLocal:
		database, err := db.Init(base)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		db.ConfigurePool(database, cfg)
		return &localStore{Store: local.New(database), close: database.Close}, nil, nil
	case "", config.StoreNebula:
		key, err := cfg.RequireAPIKey()
		if err != nil {
			logger.Debug("memory store not configured", "error", err)
			return nil, err, nil
		}
		return nebula.New(nebula.Options{
			BaseURL:    cfg.BaseURL,
			APIKey:     key,
			Timeout:    time.Duration(cfg.StoreTimeoutSeconds) * time.Second,
			MaxRetries: cfg.StoreMaxRetries,
		}), nil, nil
	default:
		return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown store backend %q", cfg.StoreBackend)), nil
	}
}

// localStore ties the local store to the database it owns.
type localStore struct {
	*local.Store
	close func() error
}

func (l *localStore) Close() error { return l.close() }

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before any setup
	if isHelpOrVersion() {
		app := newCLIApp(nil)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	base, err := baseDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// CLI mode: known subcommand
	if isCLIMode() {
		app := newCLIApp(&setup{baseDir: base})
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'recall --help' for usage.\n")
		os.Exit(1)
	}

	// MCP server mode (default)
	cwd, _ := os.Getwd()
	rt, err := newRuntime(context.Background(), base, cwd, "mcp")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer rt.Close()

	if unknown := mcp.ValidateDisabledTools(rt.env.Config.DisabledTools); len(unknown) > 0 {
		fmt.Fprintf(os.Stderr, "warning: unknown tools in disabled_tools: %v\n", unknown)
	}
	if err := mcp.Run(rt.env, Version); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
