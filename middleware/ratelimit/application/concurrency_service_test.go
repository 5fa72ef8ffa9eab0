package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingPool struct{}

func (blockingPool) Acquire(ctx context.Context) (func(), bool) {
	<-ctx.Done()
	return nil, false
}

type countingPool struct {
	acquired int
	released int
}

func (p *countingPool) Acquire(context.Context) (func(), bool) {
	p.acquired++
	return func() { p.released++ }, true
}

func TestStreamGate_Acquire_AllowsWhenNoPool(t *testing.T) {
	g := &StreamGate{}
	release, ok := g.Acquire(context.Background())
	require.True(t, ok)
	release()
	assert.Zero(t, g.InFlight())
}

func TestStreamGate_Acquire_GivesUpAfterTimeout(t *testing.T) {
	g := &StreamGate{Pool: blockingPool{}, AcquireTimeout: 10 * time.Millisecond}

	release, ok := g.Acquire(context.Background())

	assert.False(t, ok)
	assert.NotNil(t, release)
	assert.Equal(t, int64(1), g.Rejected())
	assert.Zero(t, g.InFlight())
}

func TestStreamGate_Acquire_HonoursCallerContext(t *testing.T) {
	g := &StreamGate{Pool: blockingPool{}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := g.Acquire(ctx)
	assert.False(t, ok)
}

func TestStreamGate_Release_IsIdempotent(t *testing.T) {
	pool := &countingPool{}
	g := &StreamGate{Pool: pool}

	release, ok := g.Acquire(context.Background())
	require.True(t, ok)
	assert.Equal(t, int64(1), g.InFlight())

	release()
	release()

	assert.Equal(t, 1, pool.acquired)
	assert.Equal(t, 1, pool.released)
	assert.Zero(t, g.InFlight())
}
