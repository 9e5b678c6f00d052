package sqlitestore

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS samples (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  latitude REAL NOT NULL,
  longitude REAL NOT NULL,
  accuracy REAL NULL,
  altitude REAL NULL,
  speed REAL NULL,
  heading REAL NULL,
  captured_at DATETIME NOT NULL,
  sync_state TEXT NOT NULL DEFAULT 'PENDING',
  created_at DATETIME NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_samples_pending ON samples(sync_state, captured_at)`,
		`
CREATE TABLE IF NOT EXISTS outbox (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  target_collection TEXT NOT NULL,
  target_id INTEGER NOT NULL,
  operation TEXT NOT NULL,
  created_at DATETIME NOT NULL,
  UNIQUE (target_collection, target_id)
)`,
		`
CREATE TABLE IF NOT EXISTS audit_log (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  level TEXT NOT NULL,
  message TEXT NOT NULL,
  created_at DATETIME NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS engine_state (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL
)`,
	}

	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
