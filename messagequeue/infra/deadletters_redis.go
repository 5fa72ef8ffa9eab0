package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"pagewise-gateway/messagequeue/domain"

	"github.com/redis/go-redis/v9"
)

// RedisDeadLetters mantém as mensagens descartadas em uma lista Redis
// (<prefix>:dlq). Pop retira do início, na ordem em que foram descartadas.
type RedisDeadLetters struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisDeadLetters(rdb *redis.Client, prefix string) *RedisDeadLetters {
	prefix = strings.Trim(prefix, ":")
	if prefix == "" {
		prefix = "pagewise"
	}
	return &RedisDeadLetters{rdb: rdb, prefix: prefix}
}

func (d *RedisDeadLetters) key() string { return d.prefix + ":dlq" }

func (d *RedisDeadLetters) Put(ctx context.Context, dl domain.DeadLetter) error {
	raw, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("encode dead letter: %w", err)
	}
	if err := d.rdb.RPush(ctx, d.key(), raw).Err(); err != nil {
		return fmt.Errorf("redis rpush: %w", err)
	}
	return nil
}

func (d *RedisDeadLetters) List(ctx context.Context, limit int64) ([]domain.DeadLetter, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = limit - 1
	}
	vals, err := d.rdb.LRange(ctx, d.key(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}
	return decodeDeadLetters(vals)
}

func (d *RedisDeadLetters) Pop(ctx context.Context, n int64) ([]domain.DeadLetter, error) {
	if n <= 0 {
		size, err := d.rdb.LLen(ctx, d.key()).Result()
		if err != nil {
			return nil, fmt.Errorf("redis llen: %w", err)
		}
		n = size
	}
	if n == 0 {
		return nil, nil
	}
	vals, err := d.rdb.LPopCount(ctx, d.key(), int(n)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis lpop: %w", err)
	}
	return decodeDeadLetters(vals)
}

func decodeDeadLetters(vals []string) ([]domain.DeadLetter, error) {
	out := make([]domain.DeadLetter, 0, len(vals))
	for _, v := range vals {
		var dl domain.DeadLetter
		if err := json.Unmarshal([]byte(v), &dl); err != nil {
			return nil, fmt.Errorf("decode dead letter: %w", err)
		}
		out = append(out, dl)
	}
	return out, nil
}
