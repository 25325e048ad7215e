// Package ops implements the user-invoked operations shared by the CLI, the
// MCP server and the web UI.
package ops

import (
	"context"
	"log/slog"
	"time"

	"github.com/hpungsan/recall/internal/checkpoint"
	"github.com/hpungsan/recall/internal/config"
	"github.com/hpungsan/recall/internal/errors"
	"github.com/hpungsan/recall/internal/inject"
	"github.com/hpungsan/recall/internal/project"
	"github.com/hpungsan/recall/internal/store"
)

// Search limits
const (
	DefaultSearchLimit = 10
	MaxSearchLimit     = 50
	MaxQueryLength     = 2000
)

// Env carries everything an operation may touch.
type Env struct {
	Config *config.Config
	// Store is nil when the memory store is not configured; StoreErr says why.
	Store       store.Store
	StoreErr    error
	Resolver    *project.Resolver
	Checkpoints *checkpoint.Store
	Dedup       *inject.Deduplicator
	Logger      *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// requireStore returns the configured store or a NOT_CONFIGURED error.
func (e *Env) requireStore() (store.Store, error) {
	if e.Store != nil {
		return e.Store, nil
	}
	if e.StoreErr != nil {
		return nil, e.StoreErr
	}
	return nil, errors.NewNotConfigured("api_key", "set RECALL_API_KEY or use store_backend \"local\"")
}

// resolve detects the project for cwd and resolves its collection.
func (e *Env) resolve(ctx context.Context, cwd string) (project.Info, string) {
	info := project.Detect(ctx, cwd)
	return info, e.Resolver.Resolve(ctx, info)
}
