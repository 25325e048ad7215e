package state

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/hpungsan/recall/internal/config"
	"github.com/hpungsan/recall/internal/db"
)

// Open builds the Store selected by cfg.StateBackend.
// File state lives in baseDir/state; SQLite state in baseDir/recall.db.
func Open(ctx context.Context, cfg *config.Config, baseDir string) (Store, error) {
	switch cfg.StateBackend {
	case "", config.StateFile:
		return NewFileStore(filepath.Join(baseDir, "state")), nil
	case config.StateSQLite:
		database, err := db.Init(baseDir)
		if err != nil {
			return nil, err
		}
		db.ConfigurePool(database, cfg)
		return &SQLiteStore{db: database, ownsDB: true}, nil
	case config.StateRedis:
		return NewRedisStore(ctx, RedisConfig{
			Addr:   cfg.RedisAddr,
			Prefix: cfg.RedisPrefix,
			TTL:    time.Duration(cfg.RedisTTLHours) * time.Hour,
		})
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.StateBackend)
	}
}
