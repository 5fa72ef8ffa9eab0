package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"time"

	"pagewise-gateway/internal/observability"
	"pagewise-gateway/middleware/ratelimit/application"
	"pagewise-gateway/middleware/ratelimit/domain"

	"github.com/sirupsen/logrus"
)

// UserHeader é o header com o id do usuário autenticado, preenchido pela
// camada de autenticação na frente do gateway.
const UserHeader = "X-User-Id"

type KeyFunc func(r *http.Request) string

type Options struct {
	Limiter domain.Limiter
	Rule    domain.Rule
	// Operation prefixa a chave: "<operation>:<cliente>".
	Operation string
	Stats     domain.StatsStore
	Logger    logrus.FieldLogger

	KeyFn              KeyFunc
	KeyHeader          string
	TrustXForwardedFor bool

	RejectStatus        int
	AddRateLimitHeaders bool
}

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// Middleware aplica opts.Rule por chave e responde 429 com Retry-After
// quando a janela está cheia.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.Logger == nil {
		opts.Logger = observability.WithComponent("ratelimit")
	}

	svc := application.Service{
		Limiter: opts.Limiter,
		Rule:    opts.Rule,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)
			if opts.Operation != "" {
				key = opts.Operation + ":" + key
			}

			if opts.AddRateLimitHeaders {
				w.Header().Set("X-RateLimit-Limit", formatInt(opts.Rule.Limit))
				w.Header().Set("X-RateLimit-Window", formatInt(int(opts.Rule.Window/time.Second)))
			}

			dec := svc.Decide(domain.Key(key))
			if opts.Stats != nil {
				err := opts.Stats.Record(r.Context(), domain.StatsEvent{
					Key:       domain.Key(key),
					Operation: opts.Operation,
					Allowed:   dec.Allowed,
					At:        time.Now(),
				})
				if err != nil {
					opts.Logger.WithError(err).Debug("rate limit stats not recorded")
				}
			}
			if !dec.Allowed {
				opts.Logger.WithFields(logrus.Fields{
					"operation":      opts.Operation,
					"key":            observability.MaskID(key),
					"retry_after_ms": dec.RetryAfter.Milliseconds(),
				}).Info("rate limited")
				w.Header().Set("Retry-After", formatInt(retryAfterSeconds(dec.RetryAfter)))
				writeJSONError(w, opts.RejectStatus, "Too many requests")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
