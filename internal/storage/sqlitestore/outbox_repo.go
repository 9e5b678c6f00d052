package sqlitestore

import (
	"context"

	"github.com/BearBump/GeoPulse/internal/models"
	"github.com/pkg/errors"
)

func (s *Storage) CountOutbox(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count outbox")
	}
	return n, nil
}

func (s *Storage) ListOutbox(ctx context.Context, limit int) ([]*models.OutboxEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, target_collection, target_id, operation, created_at
FROM outbox
ORDER BY id ASC
LIMIT ?
`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select outbox")
	}
	defer rows.Close()

	var out []*models.OutboxEntry
	for rows.Next() {
		var e models.OutboxEntry
		if err := rows.Scan(&e.ID, &e.TargetCollection, &e.TargetID, &e.Operation, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan outbox entry")
		}
		out = append(out, &e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
