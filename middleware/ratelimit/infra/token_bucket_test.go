package infra

import (
	"testing"
	"time"

	"pagewise-gateway/middleware/ratelimit/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucket_BurstThenRetryAfterOneToken(t *testing.T) {
	clock := newManualClock()
	tb := NewTokenBucket(WithClock(clock.Now))

	for i := 0; i < 5; i++ {
		require.Truef(t, tb.Check("summary:u1", summaryRule).Allowed, "request %d should pass", i+1)
	}

	dec := tb.Check("summary:u1", summaryRule)
	require.False(t, dec.Allowed)
	// 5 tokens por minuto: um token a cada 12s
	assert.InDelta(t, float64(12*time.Second), float64(dec.RetryAfter), float64(time.Millisecond))

	clock.Advance(12 * time.Second)
	assert.True(t, tb.Check("summary:u1", summaryRule).Allowed)
	assert.False(t, tb.Check("summary:u1", summaryRule).Allowed)
}

func TestTokenBucket_RuleChangeRecreatesBucket(t *testing.T) {
	tb := NewTokenBucket(WithClock(newManualClock().Now))

	require.True(t, tb.Check("k", domain.Rule{Limit: 1, Window: time.Minute}).Allowed)
	require.False(t, tb.Check("k", domain.Rule{Limit: 1, Window: time.Minute}).Allowed)

	assert.True(t, tb.Check("k", domain.Rule{Limit: 2, Window: time.Minute}).Allowed)
}

func TestTokenBucket_NonPositiveRules(t *testing.T) {
	tb := NewTokenBucket(WithClock(newManualClock().Now))

	dec := tb.Check("k", domain.Rule{Limit: 0, Window: time.Minute})
	assert.False(t, dec.Allowed)
	assert.Equal(t, time.Minute, dec.RetryAfter)

	assert.True(t, tb.Check("k", domain.Rule{Limit: 3, Window: 0}).Allowed)
}

func TestTokenBucket_SweepRemovesIdleBuckets(t *testing.T) {
	clock := newManualClock()
	tb := NewTokenBucket(WithClock(clock.Now), WithIdleTTL(time.Minute))

	tb.Check("old", summaryRule)
	clock.Advance(2 * time.Minute)
	tb.Check("recent", summaryRule)

	tb.Sweep()
	assert.Equal(t, 1, tb.Keys())
}

func TestTokenBucket_SweepWaitsForLongWindowToRefill(t *testing.T) {
	clock := newManualClock()
	tb := NewTokenBucket(WithClock(clock.Now), WithIdleTTL(time.Minute))
	rule := domain.Rule{Limit: 1, Window: 10 * time.Minute}

	require.True(t, tb.Check("k", rule).Allowed)
	clock.Advance(61 * time.Second)
	tb.Sweep()

	assert.Equal(t, 1, tb.Keys())
	assert.False(t, tb.Check("k", rule).Allowed)

	clock.Advance(11 * time.Minute)
	tb.Sweep()
	assert.Equal(t, 0, tb.Keys())
}
