package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pagewise-gateway/internal/config"
	"pagewise-gateway/internal/observability"
	"pagewise-gateway/messagequeue/application"
	"pagewise-gateway/messagequeue/domain"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

type configLoader func(cmd *cobra.Command) (config.Config, error)

// newDLQCmd opera sobre a lista de dead letters no Redis. Dead letters em
// memória só existem dentro do processo do gateway (use /api/admin).
func newDLQCmd(load configLoader) *cobra.Command {
	dlq := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and redrive dropped chat messages",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Print dead letters as JSON lines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt64("limit")
			return withDeadLetters(cmd, load, func(ctx context.Context, _ config.Config, _ *redis.Client, store domain.DeadLetterStore) error {
				items, err := store.List(ctx, limit)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				for _, dl := range items {
					if err := enc.Encode(dl); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	list.Flags().Int64("limit", 100, "maximum number of dead letters to print (0 = all)")

	redrive := &cobra.Command{
		Use:   "redrive",
		Short: "Write dead letters to the message store again",
		Long: "Pops dead letters and runs them through a local queue with the configured store. " +
			"Messages that fail again go back to the dead-letter list.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, _ := cmd.Flags().GetInt64("count")
			timeout, _ := cmd.Flags().GetDuration("timeout")
			return withDeadLetters(cmd, load, func(ctx context.Context, cfg config.Config, rdb *redis.Client, store domain.DeadLetterStore) error {
				ctx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()
				return redriveToStore(ctx, cmd, cfg, rdb, store, n)
			})
		},
	}
	redrive.Flags().Int64("count", 0, "number of dead letters to redrive (0 = all)")
	redrive.Flags().Duration("timeout", time.Minute, "maximum time spent writing redriven messages")

	dlq.AddCommand(list, redrive)
	return dlq
}

func withDeadLetters(cmd *cobra.Command, load configLoader, fn func(context.Context, config.Config, *redis.Client, domain.DeadLetterStore) error) error {
	cfg, err := load(cmd)
	if err != nil {
		return err
	}
	if cfg.Queue.DeadLetters != config.DeadLettersRedis {
		return fmt.Errorf("dlq commands need DEAD_LETTERS=redis (got %q)", cfg.Queue.DeadLetters)
	}

	ctx, cancel := withSignals(cmd.Context())
	defer cancel()

	rdb, err := openRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer func() { _ = rdb.Close() }()

	return fn(ctx, cfg, rdb, buildDeadLetters(cfg, rdb))
}

func redriveToStore(ctx context.Context, cmd *cobra.Command, cfg config.Config, rdb *redis.Client, deadLetters domain.DeadLetterStore, n int64) error {
	log := observability.WithComponent("dlq")

	store, err := buildMessageStore(cfg, rdb)
	if err != nil {
		return err
	}
	defer func() { _ = store.close() }()

	metrics := observability.NewInMemoryQueueMetrics()
	queue := application.New(store.writer,
		application.WithDeadLetters(deadLetters),
		application.WithMetrics(metrics),
		application.WithMaxAttempts(cfg.Queue.MaxAttempts),
		application.WithBaseDelay(cfg.Queue.BaseDelay),
		application.WithLogger(log),
	)

	count, err := application.Redrive(ctx, deadLetters, queue, n)
	if err != nil {
		return err
	}
	for queue.Len() > 0 && ctx.Err() == nil {
		queue.Process(ctx)
	}

	pending := queue.Snapshot()
	queue.Clear()
	if err := returnToDeadLetters(deadLetters, pending); err != nil {
		return err
	}

	snap := metrics.Snapshot()
	fmt.Fprintf(cmd.OutOrStdout(), "redriven=%d persisted=%d dead_lettered=%d returned=%d\n",
		count, snap.Persisted, snap.DeadLettered, len(pending))
	if len(pending) > 0 {
		return fmt.Errorf("timed out with %d messages not written", len(pending))
	}
	return nil
}

// returnToDeadLetters devolve para a lista o que não foi escrito antes do
// prazo, para não perder mensagens já retiradas do Redis.
func returnToDeadLetters(deadLetters domain.DeadLetterSink, pending []domain.Entry) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, e := range pending {
		err := deadLetters.Put(ctx, domain.DeadLetter{
			Payload:   e.Payload,
			Attempts:  e.Attempts,
			LastError: "redrive timed out",
			FailedAt:  time.Now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("return message to dead letters: %w", err)
		}
	}
	return nil
}
