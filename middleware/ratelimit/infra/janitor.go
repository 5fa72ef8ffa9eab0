package infra

import (
	"context"
	"time"
)

const (
	defaultIdleTTL      = 60 * time.Second
	defaultCleanupEvery = 60 * time.Second
)

// startJanitor chama sweep a cada `every` até ctx ser cancelado.
// every <= 0 desliga a limpeza periódica.
func startJanitor(ctx context.Context, every time.Duration, sweep func()) {
	if every <= 0 {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				sweep()
			}
		}
	}()
}
