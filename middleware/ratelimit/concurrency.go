package ratelimit

import (
	"net/http"
	"time"

	"pagewise-gateway/middleware/ratelimit/application"
	"pagewise-gateway/middleware/ratelimit/infra"
)

type ConcurrencyOptions struct {
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
}

// NewStreamGate monta o StreamGate usado por ConcurrencyMiddleware.
// Max <= 0 devolve nil (sem limite).
func NewStreamGate(opts ConcurrencyOptions) *application.StreamGate {
	if opts.Max <= 0 {
		return nil
	}
	return &application.StreamGate{
		Pool:           infra.NewChanPool(opts.Max),
		AcquireTimeout: opts.AcquireTimeout,
	}
}

// ConcurrencyMiddleware limita requisições simultâneas pelo gate; sem vaga
// dentro do timeout responde 503. gate nil não limita nada.
func ConcurrencyMiddleware(gate *application.StreamGate, rejectStatus int) func(next http.Handler) http.Handler {
	if gate == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if rejectStatus == 0 {
		rejectStatus = http.StatusServiceUnavailable
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, ok := gate.Acquire(r.Context())
			if !ok {
				writeJSONError(w, rejectStatus, "Too many concurrent requests")
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
