package db

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"

	"github.com/hpungsan/recall/internal/errors"
)

// ErrNoValue is returned by KVGet when the key has never been set.
var ErrNoValue = errors.NewNotFound("key", "")

// KVGet returns the value stored under key, or ErrNoValue.
func KVGet(ctx context.Context, db *sql.DB, key string) ([]byte, error) {
	var value []byte
	err := db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoValue
		}
		return nil, errors.NewInternal(err)
	}
	return value, nil
}

// KVSet upserts value under key. Last write wins.
func KVSet(ctx context.Context, db *sql.DB, key string, value []byte, now int64) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, now)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// KVList returns all keys starting with prefix, sorted.
func KVList(ctx context.Context, db *sql.DB, prefix string) ([]string, error) {
	// substr avoids LIKE escaping of user-supplied prefixes
	rows, err := db.QueryContext(ctx,
		`SELECT key FROM kv WHERE substr(key, 1, length(?1)) = ?1 ORDER BY key`, prefix)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, errors.NewInternal(err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return keys, nil
}

// Memory is one stored message in the local memory store.
type Memory struct {
	ID             string
	ConversationID string
	CollectionID   string
	Role           string
	Content        string
	MetadataJSON   string
	CreatedAt      int64
}

// MemoryMatch is a full-text search hit. Rank is the FTS5 bm25 value
// (more negative is more relevant).
type MemoryMatch struct {
	Memory
	Rank float64
}

// InsertMemories stores messages in one transaction, preserving order.
func InsertMemories(ctx context.Context, db *sql.DB, memories []Memory) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO memories (id, conversation_id, collection_id, role, content, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer stmt.Close()

	for _, m := range memories {
		if _, err := stmt.ExecContext(ctx,
			m.ID, m.ConversationID, m.CollectionID, toNullString(m.Role),
			m.Content, toNullString(m.MetadataJSON), m.CreatedAt,
		); err != nil {
			return errors.NewInternal(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// SearchMemories runs an FTS5 MATCH within one collection, best first.
// matchExpr must already be a valid FTS5 expression.
func SearchMemories(ctx context.Context, db *sql.DB, collectionID, matchExpr string, limit int) ([]MemoryMatch, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT m.id, m.conversation_id, m.collection_id, m.role, m.content,
			m.metadata_json, m.created_at, bm25(memories_fts) AS rank
		FROM memories_fts
		JOIN memories m ON m.rowid = memories_fts.rowid
		WHERE memories_fts MATCH ? AND m.collection_id = ?
		ORDER BY rank
		LIMIT ?
	`, matchExpr, collectionID, limit)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var matches []MemoryMatch
	for rows.Next() {
		var mm MemoryMatch
		var role, meta sql.NullString
		if err := rows.Scan(&mm.ID, &mm.ConversationID, &mm.CollectionID, &role,
			&mm.Content, &meta, &mm.CreatedAt, &mm.Rank); err != nil {
			return nil, errors.NewInternal(err)
		}
		mm.Role = role.String
		mm.MetadataJSON = meta.String
		matches = append(matches, mm)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return matches, nil
}

// CountMemories returns the number of memories in a collection.
func CountMemories(ctx context.Context, db *sql.DB, collectionID string) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memories WHERE collection_id = ?`, collectionID).Scan(&n); err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// InsertCollection creates a named collection.
// Returns a CONFLICT error if the name is taken.
func InsertCollection(ctx context.Context, db *sql.DB, id, name string, now int64) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO collections (id, name, created_at) VALUES (?, ?, ?)`, id, name, now)
	if err != nil {
		if isUniqueConstraintError(err) {
			return errors.NewConflict("collection already exists: " + name)
		}
		return errors.NewInternal(err)
	}
	return nil
}

// CollectionIDByName looks up a collection id by its name.
func CollectionIDByName(ctx context.Context, db *sql.DB, name string) (string, error) {
	var id string
	err := db.QueryRowContext(ctx, `SELECT id FROM collections WHERE name = ?`, name).Scan(&id)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return "", errors.NewNotFound("collection", name)
		}
		return "", errors.NewInternal(err)
	}
	return id, nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// SQLite returns "UNIQUE constraint failed: ..." for unique violations
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
