package sqlitestore

import (
	"context"
	"time"

	"github.com/BearBump/GeoPulse/internal/models"
	"github.com/pkg/errors"
)

// AppendAudit пишет строку журнала. Журнал только растёт, записи никогда не
// меняются и ни на что не ссылаются.
func (s *Storage) AppendAudit(ctx context.Context, level, message string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO audit_log (level, message, created_at) VALUES (?,?,?)
`, level, message, time.Now().UTC())
	return errors.Wrap(err, "append audit")
}

func (s *Storage) ListAudit(ctx context.Context, limit int) ([]*models.AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, level, message, created_at
FROM audit_log
ORDER BY id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select audit")
	}
	defer rows.Close()

	var out []*models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.Level, &e.Message, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan audit entry")
		}
		out = append(out, &e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
