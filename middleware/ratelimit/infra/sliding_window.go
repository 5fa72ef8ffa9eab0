package infra

import (
	"context"
	"sync"
	"time"

	"pagewise-gateway/middleware/ratelimit/domain"
)

// SlidingWindow guarda, por chave, os instantes das requisições aceitas
// dentro da janela e bloqueia quando a janela está cheia.
//
// Estado local ao processo; não há coordenação entre réplicas.
type SlidingWindow struct {
	mu           sync.Mutex
	windows      map[domain.Key]*window
	now          func() time.Time
	idleTTL      time.Duration
	cleanupEvery time.Duration
}

// window é o histórico de uma chave. span é a maior janela já usada com
// ela; Sweep não remove a chave antes disso.
type window struct {
	ts   []time.Time
	span time.Duration
}

type Option func(*limiterSettings)

type limiterSettings struct {
	now          func() time.Time
	idleTTL      time.Duration
	cleanupEvery time.Duration
}

func WithClock(now func() time.Time) Option {
	return func(s *limiterSettings) { s.now = now }
}

// WithIdleTTL define após quanto tempo sem requisições uma chave é removida.
func WithIdleTTL(d time.Duration) Option {
	return func(s *limiterSettings) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) Option {
	return func(s *limiterSettings) { s.cleanupEvery = d }
}

func buildSettings(opts []Option) limiterSettings {
	s := limiterSettings{
		now:          time.Now,
		idleTTL:      defaultIdleTTL,
		cleanupEvery: defaultCleanupEvery,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func NewSlidingWindow(opts ...Option) *SlidingWindow {
	s := buildSettings(opts)
	return &SlidingWindow{
		windows:      make(map[domain.Key]*window),
		now:          s.now,
		idleTTL:      s.idleTTL,
		cleanupEvery: s.cleanupEvery,
	}
}

// Check implementa domain.Limiter.
//
// Instantes <= now-window saem da janela. Com limit <= 0 tudo é bloqueado;
// com window <= 0 a janela nunca retém nada e tudo passa.
func (s *SlidingWindow) Check(key domain.Key, rule domain.Rule) domain.Decision {
	now := s.now()
	cutoff := now.Add(-rule.Window)

	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.windows[key]
	if w == nil {
		w = &window{}
		s.windows[key] = w
	}
	w.span = max(w.span, rule.Window)

	i := 0
	for i < len(w.ts) && !w.ts[i].After(cutoff) {
		i++
	}
	w.ts = w.ts[i:]

	if len(w.ts) >= rule.Limit {
		if len(w.ts) == 0 {
			return domain.Decision{Allowed: false, RetryAfter: max(rule.Window, time.Millisecond)}
		}
		return domain.Decision{Allowed: false, RetryAfter: w.ts[0].Add(rule.Window).Sub(now)}
	}

	w.ts = append(w.ts, now)
	return domain.Decision{Allowed: true}
}

// Sweep remove chaves sem instantes ou cujo último instante é mais antigo
// que max(idle TTL, maior janela da chave). Uma chave ainda dentro da sua
// janela nunca é removida.
func (s *SlidingWindow) Sweep() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, w := range s.windows {
		if len(w.ts) == 0 {
			delete(s.windows, k)
			continue
		}
		cutoff := now.Add(-max(s.idleTTL, w.span))
		if w.ts[len(w.ts)-1].Before(cutoff) {
			delete(s.windows, k)
		}
	}
}

// StartJanitor roda Sweep periodicamente. Pare cancelando o contexto.
func (s *SlidingWindow) StartJanitor(ctx context.Context) {
	startJanitor(ctx, s.cleanupEvery, s.Sweep)
}

// Keys é o número de chaves rastreadas.
func (s *SlidingWindow) Keys() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}
