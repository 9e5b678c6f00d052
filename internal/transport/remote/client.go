package remote

import (
	"context"
	"fmt"

	"github.com/BearBump/GeoPulse/internal/models"
)

// TransportError — отказ удалённой стороны или сети. Батч остаётся pending и
// будет повторён целиком на следующем триггере.
type TransportError struct {
	Reason string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure: %s", e.Reason)
}

// Client is the remote sync endpoint. SyncBatch is atomic per call: the whole
// batch is accepted or the call fails.
type Client interface {
	SyncBatch(ctx context.Context, deviceID string, samples []*models.Sample) error
	Probe(ctx context.Context) bool
}
