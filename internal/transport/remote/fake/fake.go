package fake

import (
	"context"
	"sync"

	"github.com/BearBump/GeoPulse/internal/models"
	"github.com/BearBump/GeoPulse/internal/transport/remote"
)

// Client — локальная заглушка удалённой стороны: принимает любой батч.
// Используется по умолчанию, когда base_url не задан, и в тестах.
type Client struct {
	mu      sync.Mutex
	batches [][]*models.Sample
	err     error
	online  bool
}

func New() *Client {
	return &Client{online: true}
}

func (c *Client) SyncBatch(_ context.Context, _ string, samples []*models.Sample) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	cp := make([]*models.Sample, len(samples))
	copy(cp, samples)
	c.batches = append(c.batches, cp)
	return nil
}

func (c *Client) Probe(_ context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

// FailWith заставляет следующие вызовы SyncBatch возвращать err (nil — снова успех).
func (c *Client) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *Client) SetOnline(online bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.online = online
}

func (c *Client) Batches() [][]*models.Sample {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]*models.Sample, len(c.batches))
	copy(out, c.batches)
	return out
}

var _ remote.Client = (*Client)(nil)
