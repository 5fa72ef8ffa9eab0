package application

import (
	"time"

	"pagewise-gateway/middleware/ratelimit/domain"
)

// fallbackRetryAfter é usado quando o limiter bloqueia sem sugerir espera.
const fallbackRetryAfter = time.Second

// Service aplica uma Rule fixa sobre um Limiter.
type Service struct {
	Limiter domain.Limiter
	Rule    domain.Rule
}

func (s Service) Decide(key domain.Key) domain.Decision {
	if s.Limiter == nil {
		return domain.Decision{Allowed: true}
	}

	dec := s.Limiter.Check(key, s.Rule)
	if dec.Allowed {
		return domain.Decision{Allowed: true}
	}
	if dec.RetryAfter <= 0 {
		dec.RetryAfter = fallbackRetryAfter
	}
	return dec
}
