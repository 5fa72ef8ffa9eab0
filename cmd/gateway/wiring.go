package main

import (
	"context"
	"fmt"
	"time"

	"pagewise-gateway/internal/config"
	"pagewise-gateway/messagequeue/domain"
	"pagewise-gateway/messagequeue/infra"
	rldomain "pagewise-gateway/middleware/ratelimit/domain"
	rlinfra "pagewise-gateway/middleware/ratelimit/infra"

	"github.com/redis/go-redis/v9"
)

// limiterBackend é o limiter com ciclo de vida (janitor) e inspeção.
type limiterBackend interface {
	rldomain.Limiter
	StartJanitor(ctx context.Context)
	Keys() int
}

// messageStore junta escrita e leitura; Close libera conexões/arquivos.
type messageStore struct {
	writer domain.MessageWriter
	reader domain.MessageReader
	close  func() error
}

func openRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

func buildMessageStore(cfg config.Config, rdb *redis.Client) (messageStore, error) {
	noop := func() error { return nil }

	switch cfg.Store.Kind {
	case config.StoreRedis:
		s := infra.NewRedisMessageStore(rdb, infra.WithRedisPrefix(cfg.Store.Prefix))
		return messageStore{writer: s, reader: s, close: noop}, nil
	case config.StorePebble:
		s, err := infra.OpenPebbleMessageStore(cfg.Store.PebbleDir)
		if err != nil {
			return messageStore{}, err
		}
		return messageStore{writer: s, reader: s, close: s.Close}, nil
	case config.StoreKafka:
		s := infra.NewKafkaMessageStore(infra.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		return messageStore{writer: s, reader: s, close: s.Close}, nil
	case config.StoreMemory:
		s := infra.NewMemoryMessageStore()
		return messageStore{writer: s, reader: s, close: noop}, nil
	default:
		return messageStore{}, fmt.Errorf("%w: unknown MESSAGE_STORE %q", config.ErrInvalid, cfg.Store.Kind)
	}
}

// buildDeadLetters devolve nil quando DEAD_LETTERS=off.
func buildDeadLetters(cfg config.Config, rdb *redis.Client) domain.DeadLetterStore {
	switch cfg.Queue.DeadLetters {
	case config.DeadLettersMemory:
		return infra.NewMemoryDeadLetters(cfg.Queue.DeadLetterCapacity)
	case config.DeadLettersRedis:
		return infra.NewRedisDeadLetters(rdb, cfg.Store.Prefix)
	default:
		return nil
	}
}

func buildLimiter(cfg config.RateLimitConfig) limiterBackend {
	opts := []rlinfra.Option{
		rlinfra.WithIdleTTL(cfg.IdleTTL),
		rlinfra.WithCleanupEvery(cfg.CleanupEvery),
	}
	if cfg.Algorithm == config.AlgorithmTokenBucket {
		return rlinfra.NewTokenBucket(opts...)
	}
	return rlinfra.NewSlidingWindow(opts...)
}

// buildStats devolve nil quando as estatísticas estão desligadas.
func buildStats(cfg config.RateStatsConfig, rdb *redis.Client) rldomain.StatsStore {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Backend == "redis" {
		return rlinfra.NewRedisStatsStore(
			rdb,
			rlinfra.WithStatsPrefix(cfg.Prefix),
			rlinfra.WithStatsTTL(cfg.TTL),
			rlinfra.WithStatsTrackKeys(cfg.TrackKeys),
		)
	}
	return rlinfra.NewMemoryStatsStore(rlinfra.WithTrackKeys(cfg.TrackKeys))
}

func toRule(r config.Rule) rldomain.Rule {
	return rldomain.Rule{Limit: r.Limit, Window: r.Window}
}
