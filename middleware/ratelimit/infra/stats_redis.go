package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"pagewise-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore agrega decisões em hashes Redis:
//
//	<prefix>:total                 allowed/denied (cumulativo)
//	<prefix>:op:<operation>        allowed/denied por operação
//	<prefix>:minute:<yyyymmddhhmm> allowed/denied por minuto (expira)
//	<prefix>:key:<key>             opcional, por chave (expira)
type RedisStatsStore struct {
	rdb *redis.Client

	prefix string
	// ttl vale só para as séries por minuto e por chave
	ttl time.Duration

	perMinute bool
	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.prefix = strings.Trim(prefix, ":") }
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsPerMinute(on bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.perMinute = on }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb *redis.Client, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:       rdb,
		prefix:    "ratelimit:stats",
		ttl:       24 * time.Hour,
		perMinute: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := "denied"
	if ev.Allowed {
		field = "allowed"
	}

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)

	if op := strings.TrimSpace(ev.Operation); op != "" {
		pipe.HIncrBy(ctx, s.prefix+":op:"+op, field, 1)
	}

	if s.perMinute {
		bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
		s.incrExpiring(ctx, pipe, bucketKey, field)
	}

	if s.trackKeys {
		if k := strings.TrimSpace(string(ev.Key)); k != "" {
			s.incrExpiring(ctx, pipe, s.prefix+":key:"+k, field)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record rate limit stats: %w", err)
	}
	return nil
}

func (s *RedisStatsStore) incrExpiring(ctx context.Context, pipe redis.Pipeliner, key, field string) {
	pipe.HIncrBy(ctx, key, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
}

// Total lê os contadores cumulativos.
func (s *RedisStatsStore) Total(ctx context.Context) (Counters, error) {
	vals, err := s.rdb.HMGet(ctx, s.prefix+":total", "allowed", "denied").Result()
	if err != nil {
		return Counters{}, fmt.Errorf("read rate limit stats: %w", err)
	}
	return Counters{Allowed: toInt64(vals[0]), Denied: toInt64(vals[1])}, nil
}

func toInt64(v any) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
