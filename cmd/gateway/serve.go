package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"pagewise-gateway/chatapi"
	"pagewise-gateway/internal/config"
	"pagewise-gateway/internal/observability"
	"pagewise-gateway/messagequeue/application"
	"pagewise-gateway/middleware/ratelimit"
	rlapp "pagewise-gateway/middleware/ratelimit/application"
	rldomain "pagewise-gateway/middleware/ratelimit/domain"
	rlinfra "pagewise-gateway/middleware/ratelimit/infra"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func runServe(ctx context.Context, cfg config.Config) error {
	log := observability.WithComponent("gateway")

	var rdb *redis.Client
	if cfg.NeedsRedis() {
		var err error
		if rdb, err = openRedis(ctx, cfg.Redis); err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()
	}

	store, err := buildMessageStore(cfg, rdb)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.close(); err != nil {
			log.WithError(err).Warn("closing message store")
		}
	}()

	metrics := observability.NewInMemoryQueueMetrics()
	queueOpts := []application.Option{
		application.WithMetrics(metrics),
		application.WithMaxAttempts(cfg.Queue.MaxAttempts),
		application.WithBaseDelay(cfg.Queue.BaseDelay),
		application.WithLogger(observability.WithComponent("messagequeue")),
	}
	deadLetters := buildDeadLetters(cfg, rdb)
	if deadLetters != nil {
		queueOpts = append(queueOpts, application.WithDeadLetters(deadLetters))
	}
	queue := application.New(store.writer, queueOpts...)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		queue.Run(workerCtx)
	}()

	limiter := buildLimiter(cfg.RateLimit)
	limiter.StartJanitor(ctx)
	stats := buildStats(cfg.RateStats, rdb)

	var upstream http.Handler
	if cfg.HTTP.UpstreamURL != "" {
		target, err := url.Parse(cfg.HTTP.UpstreamURL)
		if err != nil {
			stopWorker()
			return fmt.Errorf("invalid UPSTREAM_URL: %w", err)
		}
		upstream = chatapi.NewUpstreamProxy(target, observability.WithComponent("proxy"))
	}

	gate := ratelimit.NewStreamGate(ratelimit.ConcurrencyOptions{
		Max:            cfg.Concurrency.Max,
		AcquireTimeout: cfg.Concurrency.Timeout,
	})

	limitFor := func(operation string, rule config.Rule) chatapi.Middleware {
		return ratelimit.Middleware(ratelimit.Options{
			Limiter:             limiter,
			Rule:                toRule(rule),
			Operation:           operation,
			Stats:               stats,
			KeyHeader:           cfg.RateLimit.KeyHeader,
			TrustXForwardedFor:  cfg.RateLimit.TrustXFF,
			AddRateLimitHeaders: cfg.RateLimit.AddHeaders,
		})
	}
	var chatLimit chatapi.Middleware
	if cfg.RateLimit.Chat.Limit > 0 {
		chatLimit = limitFor("chat", cfg.RateLimit.Chat)
	}

	handler := chatapi.NewRouter(chatapi.Deps{
		Queue:        queue,
		Reader:       store.reader,
		DeadLetters:  deadLetters,
		Upstream:     upstream,
		ChatLimit:    chatLimit,
		SummaryLimit: limitFor("summary", cfg.RateLimit.Summary),
		StreamLimit:  ratelimit.ConcurrencyMiddleware(gate, 0),
		AdminToken:   cfg.HTTP.AdminToken,
		Health:       healthReport(metrics, limiter, gate, stats),
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// respostas do chat são streams longos
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  90 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	log.WithFields(logrus.Fields{
		"addr":         cfg.HTTP.ListenAddr,
		"upstream":     cfg.HTTP.UpstreamURL,
		"store":        cfg.Store.Kind,
		"dead_letters": cfg.Queue.DeadLetters,
		"algorithm":    cfg.RateLimit.Algorithm,
		"summary_rule": fmt.Sprintf("%d/%s", cfg.RateLimit.Summary.Limit, cfg.RateLimit.Summary.Window),
		"concurrency":  cfg.Concurrency.Max,
	}).Info("gateway listening")

	select {
	case err := <-serveErr:
		stopWorker()
		<-workerDone
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}

	stopWorker()
	<-workerDone
	finalDrain(queue, cfg.HTTP.ShutdownTimeout, log)
	log.Info("gateway stopped")
	return nil
}

// finalDrain faz uma última passada na fila com prazo próprio, independente
// do tempo gasto encerrando o HTTP. Devolve quantas mensagens ficaram.
func finalDrain(queue *application.Queue, timeout time.Duration, log logrus.FieldLogger) int {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	queue.Process(ctx)
	pending := queue.Len()
	if pending > 0 {
		log.WithField("pending", pending).Warn("shutting down with unsaved messages")
	}
	return pending
}

func healthReport(metrics *observability.InMemoryQueueMetrics, limiter limiterBackend, gate *rlapp.StreamGate, stats rldomain.StatsStore) func() map[string]any {
	return func() map[string]any {
		out := map[string]any{
			"queue_metrics": metrics.Snapshot(),
			"limiter_keys":  limiter.Keys(),
		}
		if gate != nil {
			out["streams_in_flight"] = gate.InFlight()
		}
		if mem, ok := stats.(*rlinfra.MemoryStatsStore); ok {
			out["rate_limit"] = map[string]any{
				"total":        mem.Total(),
				"by_operation": mem.ByOperation(),
			}
		}
		return out
	}
}
