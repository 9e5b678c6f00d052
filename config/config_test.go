package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
database:
  host: "localhost"
  port: 5432
  username: "u"
  password: "p"
  name: "db"
kafka:
  host: "localhost"
  port: 9092
  locations_received_topic_name: "locations.received"
redis:
  host: "localhost"
  port: 6379
agent:
  http_addr: ":8081"
  store_path: "/var/lib/geopulse/agent.db"
  sync_wake_interval_seconds: 900
  sync_batch_size: 100
  ingest_base_url: "http://localhost:8080"
  assume_authorized: true
ingest:
  http_addr: ":8080"
  rate_limit_per_device_per_minute: 600
`), 0o600))

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "u", cfg.Database.Username)
	require.Equal(t, "locations.received", cfg.Kafka.LocationsReceivedTopicName)
	require.Equal(t, 6379, cfg.Redis.Port)
	require.Equal(t, ":8081", cfg.Agent.HTTPAddr)
	require.Equal(t, "/var/lib/geopulse/agent.db", cfg.Agent.StorePath)
	require.Equal(t, 900, cfg.Agent.SyncWakeIntervalSeconds)
	require.True(t, cfg.Agent.AssumeAuthorized)
	require.Equal(t, 600, cfg.Ingest.RateLimitPerDevicePerMin)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
