package pgingest

import (
	"context"
	"time"

	"github.com/BearBump/GeoPulse/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// InsertBatch пишет батч одной транзакцией. Повторы (device_id, source_id)
// тихо пропускаются — так ретраи агента остаются безопасными. Возвращает
// число реально вставленных строк.
func (s *Storage) InsertBatch(ctx context.Context, deviceID string, items []models.LocationInput) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	accepted := 0
	for _, it := range items {
		ct, err := tx.Exec(ctx, `
INSERT INTO locations (
  device_id, source_id, latitude, longitude, accuracy, altitude, speed, heading, captured_at, received_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (device_id, source_id) DO NOTHING
`, deviceID, it.SourceID, it.Latitude, it.Longitude, it.Accuracy, it.Altitude, it.Speed, it.Heading, it.CapturedAt.UTC(), now)
		if err != nil {
			return 0, errors.Wrap(err, "insert location")
		}
		accepted += int(ct.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, errors.Wrap(err, "commit tx")
	}
	return accepted, nil
}

func (s *Storage) ListByDevice(ctx context.Context, deviceID string, limit, offset int) ([]*models.Location, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT
  id, device_id, source_id, latitude, longitude,
  accuracy, altitude, speed, heading,
  captured_at, received_at
FROM locations
WHERE device_id = $1
ORDER BY captured_at DESC
LIMIT $2 OFFSET $3
`, deviceID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select locations")
	}
	defer rows.Close()

	var out []*models.Location
	for rows.Next() {
		var l models.Location
		if err := rows.Scan(
			&l.ID, &l.DeviceID, &l.SourceID, &l.Latitude, &l.Longitude,
			&l.Accuracy, &l.Altitude, &l.Speed, &l.Heading,
			&l.CapturedAt, &l.ReceivedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan location")
		}
		out = append(out, &l)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) LatestByDevice(ctx context.Context, deviceID string) (*models.Location, error) {
	var l models.Location
	err := s.db.QueryRow(ctx, `
SELECT
  id, device_id, source_id, latitude, longitude,
  accuracy, altitude, speed, heading,
  captured_at, received_at
FROM locations
WHERE device_id = $1
ORDER BY captured_at DESC
LIMIT 1
`, deviceID).Scan(
		&l.ID, &l.DeviceID, &l.SourceID, &l.Latitude, &l.Longitude,
		&l.Accuracy, &l.Altitude, &l.Speed, &l.Heading,
		&l.CapturedAt, &l.ReceivedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select latest location")
	}
	return &l, nil
}
