package application

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"pagewise-gateway/middleware/ratelimit/domain"
)

// StreamGate limita quantos streams do upstream ficam abertos ao mesmo
// tempo. Não sabe nada sobre HTTP.
type StreamGate struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration

	inFlight atomic.Int64
	rejected atomic.Int64
}

// Acquire tenta reservar uma vaga.
//   - AcquireTimeout <= 0: espera até ctx encerrar.
//   - AcquireTimeout > 0: espera no máximo o timeout.
//
// Com ok=false nenhuma vaga foi reservada. O release devolvido pode ser
// chamado mais de uma vez; só a primeira chamada libera.
func (g *StreamGate) Acquire(ctx context.Context) (release func(), ok bool) {
	if g.Pool == nil {
		return func() {}, true
	}

	acqCtx := ctx
	if g.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acqCtx, cancel = context.WithTimeout(ctx, g.AcquireTimeout)
		defer cancel()
	}

	poolRelease, ok := g.Pool.Acquire(acqCtx)
	if !ok {
		g.rejected.Add(1)
		return func() {}, false
	}

	g.inFlight.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			g.inFlight.Add(-1)
			poolRelease()
		})
	}, true
}

// InFlight é o número de vagas ocupadas agora.
func (g *StreamGate) InFlight() int64 { return g.inFlight.Load() }

// Rejected conta as aquisições que desistiram por timeout/cancelamento.
func (g *StreamGate) Rejected() int64 { return g.rejected.Load() }
