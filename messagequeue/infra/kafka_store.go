package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pagewise-gateway/messagequeue/domain"

	kafka "github.com/segmentio/kafka-go"
)

// KafkaWriter é o subconjunto de *kafka.Writer usado pelo store.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaMessageStore publica cada mensagem em um tópico, com o documentId
// como chave (mesma partição por documento). Não permite leitura.
type KafkaMessageStore struct {
	w   KafkaWriter
	ids recordIDs
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		WriteTimeout:           10 * time.Second,
		AllowAutoTopicCreation: false,
	}
}

func NewKafkaMessageStore(w KafkaWriter) *KafkaMessageStore {
	return &KafkaMessageStore{w: w, ids: defaultRecordIDs()}
}

func (s *KafkaMessageStore) SaveMessage(ctx context.Context, p domain.Payload) (domain.Message, error) {
	msg := domain.NewMessage(s.ids.newID(), p, s.ids.now())
	raw, err := json.Marshal(msg)
	if err != nil {
		return domain.Message{}, fmt.Errorf("encode message: %w", err)
	}
	err = s.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(p.DocumentID),
		Value: raw,
		Time:  msg.CreatedAt,
		Headers: []kafka.Header{
			{Key: "message-id", Value: []byte(msg.ID)},
			{Key: "role", Value: []byte(p.Role)},
			{Key: "user-id", Value: []byte(p.UserID)},
		},
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("kafka write: %w", err)
	}
	return msg, nil
}

func (s *KafkaMessageStore) ListMessages(context.Context, string) ([]domain.Message, error) {
	return nil, domain.ErrNotReadable
}

func (s *KafkaMessageStore) Close() error {
	return s.w.Close()
}
