// Package inject suppresses re-injecting the same context block twice in a row.
package inject

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"

	"github.com/hpungsan/recall/internal/state"
)

// Namespace is the state namespace for injection records.
const Namespace = "inject"

type record struct {
	Hash string `json:"hash"`
}

// Deduplicator compares formatted context with the last block injected into
// the same session.
type Deduplicator struct {
	kv     state.Store
	logger *slog.Logger
}

// NewDeduplicator creates a Deduplicator over kv. A nil logger discards.
func NewDeduplicator(kv state.Store, logger *slog.Logger) *Deduplicator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Deduplicator{kv: kv, logger: logger}
}

// Hash returns the content hash recorded for text.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// ShouldInject reports whether text differs from the last injected block and,
// if so, records it. Unreadable records count as "nothing injected"; a failed
// write still returns true.
func (d *Deduplicator) ShouldInject(ctx context.Context, sessionID, text string) bool {
	h := Hash(text)
	key := state.Key(Namespace, sessionID)

	var prev record
	found, err := state.GetJSON(ctx, d.kv, key, &prev)
	if err != nil {
		d.logger.Debug("injection record unreadable", "session", sessionID, "error", err)
	}
	if found && prev.Hash == h {
		return false
	}

	if err := state.SetJSON(ctx, d.kv, key, record{Hash: h}); err != nil {
		d.logger.Warn("injection record not saved", "session", sessionID, "error", err)
	}
	return true
}

// Last returns the last recorded hash for sessionID, or "".
func (d *Deduplicator) Last(ctx context.Context, sessionID string) string {
	var prev record
	if found, err := state.GetJSON(ctx, d.kv, state.Key(Namespace, sessionID), &prev); err != nil || !found {
		return ""
	}
	return prev.Hash
}
