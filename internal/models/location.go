package models

import "time"

// Location — серверная запись принятого сэмпла. (device_id, source_id) —
// идемпотентный ключ: повтор батча от агента не создаёт дубликатов.
type Location struct {
	ID         uint64
	DeviceID   string
	SourceID   uint64
	Latitude   float64
	Longitude  float64
	Accuracy   *float64
	Altitude   *float64
	Speed      *float64
	Heading    *float64
	CapturedAt time.Time
	ReceivedAt time.Time
}

type LocationInput struct {
	SourceID   uint64
	Latitude   float64
	Longitude  float64
	Accuracy   *float64
	Altitude   *float64
	Speed      *float64
	Heading    *float64
	CapturedAt time.Time
}
