package sqlitestore

import (
	"context"
	"database/sql"

	"github.com/BearBump/GeoPulse/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	stateKeyTrackingEnabled = "tracking_enabled"
	stateKeyDeviceID        = "device_id"
)

// LoadState читает персистентную часть состояния движка. device_id генерится
// при первом запуске и дальше не меняется.
func (s *Storage) LoadState(ctx context.Context) (models.EngineState, error) {
	st := models.EngineState{}

	var v string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM engine_state WHERE key = ?`, stateKeyTrackingEnabled).Scan(&v)
	if err != nil && err != sql.ErrNoRows {
		return st, errors.Wrap(err, "load tracking_enabled")
	}
	st.TrackingEnabled = v == "true"

	err = s.db.QueryRowContext(ctx,
		`SELECT value FROM engine_state WHERE key = ?`, stateKeyDeviceID).Scan(&st.DeviceID)
	if err == sql.ErrNoRows {
		st.DeviceID = uuid.NewString()
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO engine_state (key, value) VALUES (?,?)`, stateKeyDeviceID, st.DeviceID); err != nil {
			return st, errors.Wrap(err, "persist device_id")
		}
	} else if err != nil {
		return st, errors.Wrap(err, "load device_id")
	}

	return st, nil
}

func (s *Storage) SetTrackingEnabled(ctx context.Context, enabled bool) error {
	v := "false"
	if enabled {
		v = "true"
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO engine_state (key, value) VALUES (?,?)
ON CONFLICT (key) DO UPDATE SET value = excluded.value
`, stateKeyTrackingEnabled, v)
	return errors.Wrap(err, "set tracking_enabled")
}
