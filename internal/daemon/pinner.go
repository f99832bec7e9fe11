package daemon

import (
	"context"
	"sync"

	"nftpin/internal/pinning"
	"nftpin/internal/pinstore"
)

// serialPinner funnels every backend-touching reconciler call through one
// mutex. The scheduler already runs one intent at a time; the mutex extends
// that to manual CLI requests.
type serialPinner struct {
	*pinning.Reconciler
	mu sync.Mutex
}

func (p *serialPinner) AddPin(ctx context.Context, service string, token pinstore.TokenKey) pinning.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Reconciler.AddPin(ctx, service, token)
}

func (p *serialPinner) RemovePin(ctx context.Context, service string, token pinstore.TokenKey) pinning.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Reconciler.RemovePin(ctx, service, token)
}

func (p *serialPinner) Validate(ctx context.Context, service string, token pinstore.TokenKey) (pinning.Result, pinning.ValidateOutcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Reconciler.Validate(ctx, service, token)
}

func (p *serialPinner) Reset(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Reconciler.Reset(ctx)
}
