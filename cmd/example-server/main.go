// Command example-server mostra a fila de mensagens e o rate limit
// embutidos direto em um webserver, sem proxy: o próprio servidor responde
// ao chat e ao resumo.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pagewise-gateway/chatapi"
	"pagewise-gateway/internal/observability"
	"pagewise-gateway/messagequeue/application"
	"pagewise-gateway/messagequeue/infra"
	"pagewise-gateway/middleware/ratelimit"
	rldomain "pagewise-gateway/middleware/ratelimit/domain"
	rlinfra "pagewise-gateway/middleware/ratelimit/infra"
)

func main() {
	observability.InitLogger(os.Getenv("LOG_LEVEL"), "text")
	log := observability.WithComponent("example-server")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store := infra.NewMemoryMessageStore()
	deadLetters := infra.NewMemoryDeadLetters(100)
	queue := application.New(store, application.WithDeadLetters(deadLetters))
	go queue.Run(ctx)

	limiter := rlinfra.NewSlidingWindow()
	limiter.StartJanitor(ctx)

	// resposta local no lugar do serviço de IA
	answer := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "ok\n")
	})

	h := chatapi.NewRouter(chatapi.Deps{
		Queue:       queue,
		Reader:      store,
		DeadLetters: deadLetters,
		Upstream:    answer,
		SummaryLimit: ratelimit.Middleware(ratelimit.Options{
			Limiter:             limiter,
			Rule:                rldomain.Rule{Limit: 5, Window: time.Minute},
			Operation:           "summary",
			KeyHeader:           ratelimit.UserHeader,
			AddRateLimitHeaders: true,
		}),
		StreamLimit: ratelimit.ConcurrencyMiddleware(ratelimit.NewStreamGate(ratelimit.ConcurrencyOptions{Max: 50}), 0),
		AdminToken:  os.Getenv("ADMIN_TOKEN"),
	})

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", addr).Info("example server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}
