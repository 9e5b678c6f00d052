package messages

import "time"

// LocationsReceived публикуется ingest-ом после принятия батча. Консьюмеры
// топика (аналитика, геозоны) — вне этого репозитория.
type LocationsReceived struct {
	DeviceID   string    `json:"device_id"`
	Count      int       `json:"count"`
	Accepted   int       `json:"accepted"`
	ReceivedAt time.Time `json:"received_at"`

	Locations []Location `json:"locations,omitempty"`
}

type Location struct {
	SourceID   uint64    `json:"source_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Accuracy   *float64  `json:"accuracy,omitempty"`
	Altitude   *float64  `json:"altitude,omitempty"`
	Speed      *float64  `json:"speed,omitempty"`
	Heading    *float64  `json:"heading,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}
