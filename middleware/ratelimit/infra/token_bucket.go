package infra

import (
	"context"
	"sync"
	"time"

	"pagewise-gateway/middleware/ratelimit/domain"

	"golang.org/x/time/rate"
)

// TokenBucket é a alternativa ao SlidingWindow baseada em golang.org/x/time/rate.
//
// Cada chave recebe um bucket com capacidade rule.Limit, reabastecido a
// rule.Limit tokens por rule.Window. Permite a mesma rajada inicial, mas
// libera as vagas aos poucos em vez de todas de uma vez.
type TokenBucket struct {
	mu           sync.Mutex
	entries      map[domain.Key]*bucketEntry
	now          func() time.Time
	idleTTL      time.Duration
	cleanupEvery time.Duration
}

type bucketEntry struct {
	lim      *rate.Limiter
	rule     domain.Rule
	lastSeen time.Time
}

func NewTokenBucket(opts ...Option) *TokenBucket {
	s := buildSettings(opts)
	return &TokenBucket{
		entries:      make(map[domain.Key]*bucketEntry),
		now:          s.now,
		idleTTL:      s.idleTTL,
		cleanupEvery: s.cleanupEvery,
	}
}

// Check implementa domain.Limiter.
func (b *TokenBucket) Check(key domain.Key, rule domain.Rule) domain.Decision {
	if rule.Limit <= 0 {
		return domain.Decision{Allowed: false, RetryAfter: max(rule.Window, time.Millisecond)}
	}
	if rule.Window <= 0 {
		return domain.Decision{Allowed: true}
	}

	now := b.now()
	lim := b.limiter(key, rule, now)

	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return domain.Decision{Allowed: false, RetryAfter: rule.Window}
	}
	delay := r.DelayFrom(now)
	if delay == 0 {
		return domain.Decision{Allowed: true}
	}
	// não vamos esperar: devolve o token reservado
	r.CancelAt(now)
	return domain.Decision{Allowed: false, RetryAfter: delay}
}

func (b *TokenBucket) limiter(key domain.Key, rule domain.Rule, now time.Time) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ent, ok := b.entries[key]; ok && ent.rule == rule {
		ent.lastSeen = now
		return ent.lim
	}

	every := rule.Window / time.Duration(rule.Limit)
	lim := rate.NewLimiter(rate.Every(every), rule.Limit)
	b.entries[key] = &bucketEntry{lim: lim, rule: rule, lastSeen: now}
	return lim
}

// Sweep remove buckets sem uso há mais que max(idle TTL, janela da regra),
// quando o bucket já estaria cheio de novo.
func (b *TokenBucket) Sweep() {
	now := b.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	for k, ent := range b.entries {
		if ent.lastSeen.Before(now.Add(-max(b.idleTTL, ent.rule.Window))) {
			delete(b.entries, k)
		}
	}
}

func (b *TokenBucket) StartJanitor(ctx context.Context) {
	startJanitor(ctx, b.cleanupEvery, b.Sweep)
}

func (b *TokenBucket) Keys() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
