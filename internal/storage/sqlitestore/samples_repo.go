package sqlitestore

import (
	"context"
	"strings"
	"time"

	"github.com/BearBump/GeoPulse/internal/models"
	"github.com/pkg/errors"
)

// InsertPending валидирует fix и в ОДНОЙ транзакции пишет сэмпл и его
// outbox-запись. Либо появляются обе строки, либо ни одной.
func (s *Storage) InsertPending(ctx context.Context, fix models.Fix) (*models.Sample, error) {
	if err := models.ValidateFix(fix); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	capturedAt := fix.CapturedAt.UTC()
	if fix.CapturedAt.IsZero() {
		capturedAt = now
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
INSERT INTO samples (latitude, longitude, accuracy, altitude, speed, heading, captured_at, sync_state, created_at)
VALUES (?,?,?,?,?,?,?,?,?)
`, fix.Latitude, fix.Longitude, fix.Accuracy, fix.Altitude, fix.Speed, fix.Heading, capturedAt, models.SyncStatePending, now)
	if err != nil {
		return nil, errors.Wrap(err, "insert sample")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "sample id")
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO outbox (target_collection, target_id, operation, created_at)
VALUES (?,?,?,?)
`, models.OutboxCollectionLocations, id, models.OutboxOpInsert, now)
	if err != nil {
		return nil, errors.Wrap(err, "enqueue outbox")
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}

	return &models.Sample{
		ID:         uint64(id),
		Latitude:   fix.Latitude,
		Longitude:  fix.Longitude,
		Accuracy:   fix.Accuracy,
		Altitude:   fix.Altitude,
		Speed:      fix.Speed,
		Heading:    fix.Heading,
		CapturedAt: capturedAt,
		SyncState:  models.SyncStatePending,
		CreatedAt:  now,
	}, nil
}

// ListPending возвращает pending-сэмплы, старые первыми (captured_at ASC).
func (s *Storage) ListPending(ctx context.Context, limit int) ([]*models.Sample, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, latitude, longitude, accuracy, altitude, speed, heading, captured_at, sync_state, created_at
FROM samples
WHERE sync_state = ?
ORDER BY captured_at ASC, id ASC
LIMIT ?
`, models.SyncStatePending, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select pending")
	}
	defer rows.Close()

	var out []*models.Sample
	for rows.Next() {
		var m models.Sample
		if err := rows.Scan(
			&m.ID, &m.Latitude, &m.Longitude,
			&m.Accuracy, &m.Altitude, &m.Speed, &m.Heading,
			&m.CapturedAt, &m.SyncState, &m.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan sample")
		}
		out = append(out, &m)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// MarkSynced в ОДНОЙ транзакции переводит pending -> synced и удаляет ровно
// соответствующие outbox-записи. Идемпотентна: уже synced id — no-op.
func (s *Storage) MarkSynced(ctx context.Context, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+2)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	args = append(args, models.SyncStateSynced, models.SyncStatePending)
	for _, id := range ids {
		args = append(args, id)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE samples SET sync_state = ? WHERE sync_state = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return errors.Wrap(err, "mark synced")
	}

	args = args[:0]
	args = append(args, models.OutboxCollectionLocations)
	for _, id := range ids {
		args = append(args, id)
	}
	_, err = tx.ExecContext(ctx,
		`DELETE FROM outbox WHERE target_collection = ? AND target_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return errors.Wrap(err, "dequeue outbox")
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

func (s *Storage) Stats(ctx context.Context) (models.StoreStats, error) {
	var st models.StoreStats
	err := s.db.QueryRowContext(ctx, `
SELECT
  COUNT(*),
  COALESCE(SUM(CASE WHEN sync_state = ? THEN 1 ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN sync_state = ? THEN 1 ELSE 0 END), 0)
FROM samples
`, models.SyncStateSynced, models.SyncStatePending).Scan(&st.Total, &st.Synced, &st.Pending)
	if err != nil {
		return models.StoreStats{}, errors.Wrap(err, "stats")
	}
	return st, nil
}

// PurgeAll необратимо чистит сэмплы, outbox и журнал. Подтверждение — забота
// вызывающего слоя.
func (s *Storage) PurgeAll(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range []string{
		`DELETE FROM samples`,
		`DELETE FROM outbox`,
		`DELETE FROM audit_log`,
	} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return errors.Wrap(err, "purge")
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}
