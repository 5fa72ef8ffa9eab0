package domain

import (
	"context"
	"errors"
	"time"
)

// Limites da política de reentrega.
const (
	MaxAttempts = 5
	BaseDelay   = 500 * time.Millisecond
)

var ErrNotReadable = errors.New("messagequeue: store does not support reading messages")

// Payload é a mensagem que o request de chat entrega para persistência.
//
// UserID é o dono da conversa; o histórico só é devolvido a ele.
type Payload struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	DocumentID string `json:"documentId"`
	UserID     string `json:"userId,omitempty"`
}

// Message é o registro persistido.
type Message struct {
	ID         string    `json:"id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	DocumentID string    `json:"documentId"`
	UserID     string    `json:"userId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// NewMessage monta o registro a partir do payload.
func NewMessage(id string, p Payload, at time.Time) Message {
	return Message{
		ID:         id,
		Role:       p.Role,
		Content:    p.Content,
		DocumentID: p.DocumentID,
		UserID:     p.UserID,
		CreatedAt:  at.UTC(),
	}
}

// Entry é um item pendente na fila.
//
// Attempts só cresce até o sucesso ou até MaxAttempts, quando o item é
// descartado.
type Entry struct {
	Payload     Payload
	Attempts    int
	NextRetryAt time.Time
}

// MessageWriter é a escrita durável (banco, Redis, Kafka, ...).
type MessageWriter interface {
	SaveMessage(ctx context.Context, p Payload) (Message, error)
}

// MessageReader é implementado pelos stores que conseguem devolver o histórico.
type MessageReader interface {
	ListMessages(ctx context.Context, documentID string) ([]Message, error)
}
