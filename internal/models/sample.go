package models

import "time"

// Состояния синхронизации сэмпла. Переход только pending -> synced.
const (
	SyncStatePending = "PENDING"
	SyncStateSynced  = "SYNCED"
)

// Outbox operations. Только INSERT сейчас производится пайплайном.
const (
	OutboxOpInsert = "INSERT"
	OutboxOpUpdate = "UPDATE"
	OutboxOpDelete = "DELETE"
)

const OutboxCollectionLocations = "locations"

// Audit log levels.
const (
	AuditLevelInfo  = "info"
	AuditLevelError = "error"
)

// Fix is a raw location observation as delivered by the location source.
// Optional readings are nil when the source did not report them.
type Fix struct {
	Latitude   float64
	Longitude  float64
	Accuracy   *float64
	Altitude   *float64
	Speed      *float64
	Heading    *float64
	CapturedAt time.Time
}

// Sample is a persisted location observation.
type Sample struct {
	ID         uint64
	Latitude   float64
	Longitude  float64
	Accuracy   *float64
	Altitude   *float64
	Speed      *float64
	Heading    *float64
	CapturedAt time.Time
	SyncState  string
	CreatedAt  time.Time
}

type OutboxEntry struct {
	ID               uint64
	TargetCollection string
	TargetID         uint64
	Operation        string
	CreatedAt        time.Time
}

type AuditEntry struct {
	ID        uint64
	Level     string
	Message   string
	CreatedAt time.Time
}

// StoreStats is a derived aggregate over committed samples.
type StoreStats struct {
	Total   int64 `json:"total"`
	Synced  int64 `json:"synced"`
	Pending int64 `json:"pending"`
}

// EngineState is the persisted part of the engine configuration.
type EngineState struct {
	TrackingEnabled bool
	DeviceID        string
}
