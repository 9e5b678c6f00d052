package httpsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/BearBump/GeoPulse/internal/models"
	"github.com/BearBump/GeoPulse/internal/transport/remote"
	"github.com/pkg/errors"
)

type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

var _ remote.Client = (*Client)(nil)

func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc: &http.Client{
			Timeout: timeout,
		},
	}
}

type batchRequest struct {
	DeviceID string        `json:"device_id"`
	Samples  []batchSample `json:"samples"`
}

type batchSample struct {
	SourceID   uint64    `json:"source_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Accuracy   *float64  `json:"accuracy,omitempty"`
	Altitude   *float64  `json:"altitude,omitempty"`
	Speed      *float64  `json:"speed,omitempty"`
	Heading    *float64  `json:"heading,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

type batchResponse struct {
	Status   string `json:"status"`
	Accepted int    `json:"accepted"`
}

// SyncBatch шлёт весь батч одним запросом. source_id — локальный id сэмпла:
// вместе с device_id это идемпотентный ключ, повтор батча на сервере — no-op.
func (c *Client) SyncBatch(ctx context.Context, deviceID string, samples []*models.Sample) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return errors.Wrap(err, "parse base url")
	}
	u.Path = "/v1/locations:batch"

	body := batchRequest{DeviceID: deviceID, Samples: make([]batchSample, 0, len(samples))}
	for _, m := range samples {
		body.Samples = append(body.Samples, batchSample{
			SourceID:   m.ID,
			Latitude:   m.Latitude,
			Longitude:  m.Longitude,
			Accuracy:   m.Accuracy,
			Altitude:   m.Altitude,
			Speed:      m.Speed,
			Heading:    m.Heading,
			CapturedAt: m.CapturedAt,
		})
	}

	b, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "marshal batch")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(b))
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return &remote.TransportError{Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return &remote.TransportError{Reason: fmt.Sprintf("ingest http %d", resp.StatusCode)}
	}

	var r batchResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return &remote.TransportError{Reason: "decode response: " + err.Error()}
	}
	if r.Status != "ok" {
		return &remote.TransportError{Reason: "ingest status=" + r.Status}
	}
	return nil
}

// Probe — дешёвая проверка связности через /healthz.
func (c *Client) Probe(ctx context.Context) bool {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return false
	}
	u.Path = "/healthz"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return false
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode/100 == 2
}
