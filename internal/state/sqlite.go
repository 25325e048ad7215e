package state

import (
	"context"
	"database/sql"
	"time"

	"github.com/hpungsan/recall/internal/db"
)

// SQLiteStore keeps state in the kv table of the recall database.
type SQLiteStore struct {
	db     *sql.DB
	ownsDB bool
}

// NewSQLiteStore wraps an initialized database (see db.Init).
// The caller keeps ownership of database.
func NewSQLiteStore(database *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: database}
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	if _, _, err := splitKey(key); err != nil {
		return nil, err
	}
	v, err := db.KVGet(ctx, s.db, key)
	if err == db.ErrNoValue {
		return nil, ErrNotFound
	}
	return v, err
}

// Set implements Store.
func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	if _, _, err := splitKey(key); err != nil {
		return err
	}
	return db.KVSet(ctx, s.db, key, value, time.Now().Unix())
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, prefix string) ([]string, error) {
	return db.KVList(ctx, s.db, prefix)
}

// Close implements Store. The database is closed only when Open created it.
func (s *SQLiteStore) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}
