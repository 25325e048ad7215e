package ops

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hpungsan/recall/internal/errors"
	"github.com/hpungsan/recall/internal/project"
)

// counter is implemented by stores that can count their memories locally.
type counter interface {
	Count(ctx context.Context, collection string) (int, error)
}

// SessionSummary describes one captured session.
type SessionSummary struct {
	SessionID string    `json:"session_id"`
	LastUUID  string    `json:"last_uuid"`
	MemoryID  string    `json:"memory_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
	// UpdatedAgo is UpdatedAt in words, e.g. "3 minutes ago".
	UpdatedAgo string `json:"updated_ago,omitempty"`
}

// StatusInput contains parameters for the Status operation.
type StatusInput struct {
	SessionID string // optional; empty reports every session
	CWD       string // project directory
}

// StatusOutput contains the result of the Status operation.
type StatusOutput struct {
	Configured   bool   `json:"configured"`
	ConfigError  string `json:"config_error,omitempty"`
	StoreBackend string `json:"store_backend"`
	StateBackend string `json:"state_backend"`
	Project      string `json:"project"`
	Collection   string `json:"collection,omitempty"`
	// MemoryCount is only known for the local store.
	MemoryCount *int `json:"memory_count,omitempty"`

	Session        *SessionSummary  `json:"session,omitempty"`
	LastInjectHash string           `json:"last_inject_hash,omitempty"`
	Sessions       []SessionSummary `json:"sessions,omitempty"`
}

// Status reports configuration and capture progress. With a session id it
// describes that session; otherwise it lists every session.
func Status(ctx context.Context, env *Env, input StatusInput) (*StatusOutput, error) {
	out := &StatusOutput{}
	if env.Config != nil {
		out.StoreBackend = env.Config.StoreBackend
		out.StateBackend = env.Config.StateBackend
	}

	info := project.Detect(ctx, input.CWD)
	out.Project = info.Name

	s, err := env.requireStore()
	if err != nil {
		out.ConfigError = err.Error()
	} else {
		out.Configured = true
		collection := env.Resolver.Resolve(ctx, info)
		out.Collection = collection
		if c, ok := s.(counter); ok {
			if n, err := c.Count(ctx, collection); err == nil {
				out.MemoryCount = &n
			}
		}
	}

	sessionID := strings.TrimSpace(input.SessionID)
	if sessionID == "" {
		sessions, err := Sessions(ctx, env)
		if err != nil {
			return nil, err
		}
		out.Sessions = sessions
		return out, nil
	}

	cp := env.Checkpoints.Load(ctx, sessionID)
	if cp.LastUUID == "" && cp.UpdatedAt.IsZero() {
		return nil, errors.NewNotFound("session", sessionID)
	}
	summary := summarize(cp.SessionID, cp.LastUUID, cp.RemoteHandle, cp.UpdatedAt, env.now())
	out.Session = &summary
	if env.Dedup != nil {
		out.LastInjectHash = env.Dedup.Last(ctx, sessionID)
	}
	return out, nil
}

// Sessions lists every checkpointed session, most recently updated first.
func Sessions(ctx context.Context, env *Env) ([]SessionSummary, error) {
	cps, err := env.Checkpoints.List(ctx)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	now := env.now()
	out := make([]SessionSummary, 0, len(cps))
	for _, cp := range cps {
		out = append(out, summarize(cp.SessionID, cp.LastUUID, cp.RemoteHandle, cp.UpdatedAt, now))
	}
	slices.SortStableFunc(out, func(a, b SessionSummary) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.SessionID, b.SessionID)
	})
	return out, nil
}

func summarize(id, lastUUID, memoryID string, updated, now time.Time) SessionSummary {
	s := SessionSummary{SessionID: id, LastUUID: lastUUID, MemoryID: memoryID, UpdatedAt: updated}
	if !updated.IsZero() {
		s.UpdatedAgo = humanize.RelTime(updated, now, "ago", "from now")
	}
	return s
}
