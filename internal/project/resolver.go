package project

import (
	"context"
	"log/slog"

	"github.com/hpungsan/recall/internal/errors"
	"github.com/hpungsan/recall/internal/state"
	"github.com/hpungsan/recall/internal/store"
)

// Namespace is the state namespace for cached collection ids.
const Namespace = "collections"

type cachedCollection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Resolver maps a project to its store collection, caching the answer.
type Resolver struct {
	store  store.Store
	kv     state.Store
	fixed  string
	logger *slog.Logger
}

// NewResolver creates a Resolver. A non-empty fixedID short-circuits every
// lookup. A nil logger discards.
func NewResolver(s store.Store, kv state.Store, fixedID string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{store: s, kv: kv, fixed: fixedID, logger: logger}
}

// Resolve returns the collection id for the project. It never fails: when
// the store cannot be reached the tag itself is returned uncached so a later
// call can resolve properly.
func (r *Resolver) Resolve(ctx context.Context, info Info) string {
	if r.fixed != "" {
		return r.fixed
	}
	key := state.Key(Namespace, info.Tag)

	var cached cachedCollection
	if found, err := state.GetJSON(ctx, r.kv, key, &cached); err == nil && found && cached.ID != "" {
		return cached.ID
	}

	name := CollectionName(info.Tag, info.Name)
	id, err := r.store.CreateCollection(ctx, name)
	if errors.Is(err, errors.ErrConflict) {
		id, err = r.store.CollectionByName(ctx, name)
		if err != nil {
			// Fall back to the name; the store accepts it in place of an id.
			r.logger.Debug("collection lookup failed, using name", "name", name, "error", err)
			id, err = name, nil
		}
	}
	if err != nil {
		r.logger.Warn("collection unresolved, using tag", "tag", info.Tag, "error", err)
		return info.Tag
	}

	if err := state.SetJSON(ctx, r.kv, key, cachedCollection{ID: id, Name: name}); err != nil {
		r.logger.Debug("collection cache not saved", "tag", info.Tag, "error", err)
	}
	return id
}
