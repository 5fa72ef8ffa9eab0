package infra

import (
	"context"

	"pagewise-gateway/middleware/ratelimit/domain"
)

// ChanPool é um semáforo de capacidade fixa sobre um channel bufferizado.
type ChanPool struct {
	sem chan struct{}
}

var _ domain.SlotPool = (*ChanPool)(nil)

func NewChanPool(capacity int) *ChanPool {
	return &ChanPool{sem: make(chan struct{}, capacity)}
}

func (p *ChanPool) Acquire(ctx context.Context) (func(), bool) {
	select {
	case p.sem <- struct{}{}:
		return func() { <-p.sem }, true
	case <-ctx.Done():
		return nil, false
	}
}

func (p *ChanPool) Capacity() int { return cap(p.sem) }

func (p *ChanPool) InUse() int { return len(p.sem) }
