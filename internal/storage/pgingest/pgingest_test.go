package pgingest

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/GeoPulse/internal/models"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestPGIngest_RepoFlow(t *testing.T) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "admin",
			"POSTGRES_PASSWORD": "admin",
			"POSTGRES_DB":       "geopulse_test",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := "postgres://admin:admin@" + host + ":" + port.Port() + "/geopulse_test?sslmode=disable"
	st, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(st.Close)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	batch := []models.LocationInput{
		{SourceID: 1, Latitude: 28.1, Longitude: 77.2, CapturedAt: base},
		{SourceID: 2, Latitude: 28.2, Longitude: 77.3, CapturedAt: base.Add(time.Minute)},
	}

	accepted, err := st.InsertBatch(ctx, "dev-1", batch)
	require.NoError(t, err)
	require.Equal(t, 2, accepted)

	// Повтор того же батча (ретрай агента) дедуплицируется целиком.
	accepted, err = st.InsertBatch(ctx, "dev-1", batch)
	require.NoError(t, err)
	require.Zero(t, accepted)

	// Тот же source_id от другого устройства — отдельная запись.
	accepted, err = st.InsertBatch(ctx, "dev-2", batch[:1])
	require.NoError(t, err)
	require.Equal(t, 1, accepted)

	got, err := st.ListByDevice(ctx, "dev-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Свежие первыми.
	require.Equal(t, uint64(2), got[0].SourceID)

	latest, err := st.LatestByDevice(ctx, "dev-1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.Equal(t, uint64(2), latest.SourceID)
	require.WithinDuration(t, base.Add(time.Minute), latest.CapturedAt, time.Second)

	none, err := st.LatestByDevice(ctx, "dev-unknown")
	require.NoError(t, err)
	require.Nil(t, none)
}
