package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"pagewise-gateway/messagequeue/domain"

	"github.com/redis/go-redis/v9"
)

// RedisMessageStore grava cada mensagem como JSON no fim da lista
// <prefix>:doc:<documentId>:messages. A ordem da lista é a ordem de criação.
type RedisMessageStore struct {
	rdb    *redis.Client
	prefix string
	ids    recordIDs
}

type RedisStoreOption func(*RedisMessageStore)

func WithRedisPrefix(prefix string) RedisStoreOption {
	return func(s *RedisMessageStore) { s.prefix = strings.Trim(prefix, ":") }
}

func NewRedisMessageStore(rdb *redis.Client, opts ...RedisStoreOption) *RedisMessageStore {
	s := &RedisMessageStore{
		rdb:    rdb,
		prefix: "pagewise",
		ids:    defaultRecordIDs(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisMessageStore) key(documentID string) string {
	return s.prefix + ":doc:" + documentID + ":messages"
}

func (s *RedisMessageStore) SaveMessage(ctx context.Context, p domain.Payload) (domain.Message, error) {
	msg := domain.NewMessage(s.ids.newID(), p, s.ids.now())
	raw, err := json.Marshal(msg)
	if err != nil {
		return domain.Message{}, fmt.Errorf("encode message: %w", err)
	}
	if err := s.rdb.RPush(ctx, s.key(p.DocumentID), raw).Err(); err != nil {
		return domain.Message{}, fmt.Errorf("redis rpush: %w", err)
	}
	return msg, nil
}

func (s *RedisMessageStore) ListMessages(ctx context.Context, documentID string) ([]domain.Message, error) {
	vals, err := s.rdb.LRange(ctx, s.key(documentID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}
	out := make([]domain.Message, 0, len(vals))
	for _, v := range vals {
		var msg domain.Message
		if err := json.Unmarshal([]byte(v), &msg); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		out = append(out, msg)
	}
	return out, nil
}
