package testutil

import (
	"context"

	"qcsync/internal/qc"
)

// GatedEndpoint wraps an endpoint and holds every SubmitBatch call until the
// test releases it. Started receives one value per call as it begins.
type GatedEndpoint struct {
	Inner   qc.Endpoint
	Started chan struct{}
	release chan struct{}
}

// NewGatedEndpoint creates a GatedEndpoint in front of inner.
func NewGatedEndpoint(inner qc.Endpoint) *GatedEndpoint {
	return &GatedEndpoint{
		Inner:   inner,
		Started: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

// Release lets all held and future calls proceed.
func (g *GatedEndpoint) Release() {
	close(g.release)
}

func (g *GatedEndpoint) SubmitBatch(ctx context.Context, entries []qc.Entry) ([]qc.Result, error) {
	g.Started <- struct{}{}
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.Inner.SubmitBatch(ctx, entries)
}
