// Package checkpoint remembers, per session, how far the transcript has been
// captured and which remote conversation it was appended to.
package checkpoint

import (
	"context"
	"log/slog"
	"time"

	"github.com/hpungsan/recall/internal/state"
)

// Namespace is the state namespace for checkpoint records.
const Namespace = "checkpoint"

// Checkpoint is the capture progress of one session.
type Checkpoint struct {
	SessionID string `json:"sessionId"`
	// LastUUID is the last transcript entry already processed; empty means
	// start from the beginning.
	LastUUID string `json:"lastUuid,omitempty"`
	// RemoteHandle identifies the store conversation later appends extend.
	RemoteHandle string    `json:"memoryId,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt,omitzero"`
}

// Store loads and saves checkpoints.
type Store struct {
	kv     state.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates a checkpoint store over kv. A nil logger discards.
func NewStore(kv state.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{kv: kv, logger: logger, now: time.Now}
}

// Load returns the checkpoint for sessionID. It never fails: a missing,
// unreadable or corrupt record yields an empty checkpoint.
func (s *Store) Load(ctx context.Context, sessionID string) Checkpoint {
	var cp Checkpoint
	found, err := state.GetJSON(ctx, s.kv, state.Key(Namespace, sessionID), &cp)
	if err != nil {
		s.logger.Warn("checkpoint unreadable, starting over", "session", sessionID, "error", err)
		return Checkpoint{SessionID: sessionID}
	}
	if !found {
		return Checkpoint{SessionID: sessionID}
	}
	cp.SessionID = sessionID
	return cp
}

// Save persists cp, overwriting any previous record.
func (s *Store) Save(ctx context.Context, cp Checkpoint) error {
	cp.UpdatedAt = s.now().UTC()
	return state.SetJSON(ctx, s.kv, state.Key(Namespace, cp.SessionID), cp)
}

// List returns every stored checkpoint, skipping unreadable ones.
func (s *Store) List(ctx context.Context) ([]Checkpoint, error) {
	keys, err := s.kv.List(ctx, Namespace+"/")
	if err != nil {
		return nil, err
	}
	out := make([]Checkpoint, 0, len(keys))
	for _, k := range keys {
		var cp Checkpoint
		found, err := state.GetJSON(ctx, s.kv, k, &cp)
		if err != nil || !found {
			continue
		}
		out = append(out, cp)
	}
	return out, nil
}
