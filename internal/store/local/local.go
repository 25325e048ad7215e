// Package local is an offline store.Store on the recall SQLite database.
// Search uses FTS5 bm25 ranking instead of semantic retrieval.
package local

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/recall/internal/db"
	"github.com/hpungsan/recall/internal/errors"
	"github.com/hpungsan/recall/internal/store"
)

// Store implements store.Store over db.
type Store struct {
	db  *sql.DB
	now func() time.Time

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

var _ store.Store = (*Store)(nil)

// New wraps an initialized database (see db.Init).
func New(database *sql.DB) *Store {
	return &Store{
		db:      database,
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

func (s *Store) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(s.now()), s.entropy).String()
}

// Append stores messages under one conversation id.
func (s *Store) Append(ctx context.Context, req store.AppendRequest) (string, error) {
	if req.Collection == "" {
		return "", errors.NewInvalidRequest("collection is required")
	}
	handle := req.Handle
	if handle == "" {
		handle = s.newID()
	}

	var meta string
	if md := store.SanitizeMetadata(req.Metadata); len(md) > 0 {
		data, err := json.Marshal(md)
		if err != nil {
			return "", errors.NewInternal(err)
		}
		meta = string(data)
	}

	now := s.now().UnixMilli()
	rows := make([]db.Memory, len(req.Messages))
	for i, m := range req.Messages {
		rows[i] = db.Memory{
			ID:             s.newID(),
			ConversationID: handle,
			CollectionID:   req.Collection,
			Role:           m.Role,
			Content:        m.Content,
			MetadataJSON:   meta,
			// Keep insertion order visible in created_at
			CreatedAt: now + int64(i),
		}
	}
	if err := db.InsertMemories(ctx, s.db, rows); err != nil {
		return "", err
	}
	return handle, nil
}

// Search ranks the collection's memories against the query terms. Scores
// are relative: the best hit is 1.0 and the rest scale by bm25.
func (s *Store) Search(ctx context.Context, req store.SearchRequest) (*store.SearchResult, error) {
	match := buildMatchExpr(req.Query)
	if match == "" {
		return &store.SearchResult{}, nil
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	matches, err := db.SearchMemories(ctx, s.db, req.Collection, match, limit)
	if err != nil {
		return nil, err
	}

	res := &store.SearchResult{Hits: make([]store.Hit, 0, len(matches))}
	if len(matches) == 0 {
		return res, nil
	}
	best := math.Abs(matches[0].Rank)
	for _, m := range matches {
		score := 1.0
		if best > 0 {
			score = math.Abs(m.Rank) / best
		}
		res.Hits = append(res.Hits, store.Hit{
			ID:        m.ID,
			Text:      m.Content,
			Score:     score,
			Role:      m.Role,
			Timestamp: time.UnixMilli(m.CreatedAt),
		})
	}
	return res, nil
}

// CreateCollection registers name and returns its id.
func (s *Store) CreateCollection(ctx context.Context, name string) (string, error) {
	id := s.newID()
	if err := db.InsertCollection(ctx, s.db, id, name, s.now().Unix()); err != nil {
		return "", err
	}
	return id, nil
}

// CollectionByName looks up a collection id.
func (s *Store) CollectionByName(ctx context.Context, name string) (string, error) {
	return db.CollectionIDByName(ctx, s.db, name)
}

// Count returns how many memories a collection holds.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	return db.CountMemories(ctx, s.db, collection)
}

// buildMatchExpr turns free text into an FTS5 expression: every term quoted
// as a prefix match, OR-ed so partial overlap still ranks.
func buildMatchExpr(raw string) string {
	terms := tokenize(raw)
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		quoted = append(quoted, fmt.Sprintf(`"%s"*`, t))
	}
	return strings.Join(quoted, " OR ")
}

func tokenize(raw string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range strings.Fields(strings.ToLower(raw)) {
		p = strings.Trim(p, "`\"'.,:;!?()[]{}<>|*^")
		p = strings.ReplaceAll(p, `"`, "")
		if len(p) < 2 || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
