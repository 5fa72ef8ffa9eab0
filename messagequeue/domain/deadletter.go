package domain

import (
	"context"
	"time"
)

// DeadLetter é uma mensagem que esgotou as tentativas de persistência.
type DeadLetter struct {
	Payload   Payload   `json:"payload"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"lastError"`
	FailedAt  time.Time `json:"failedAt"`
}

// DeadLetterSink guarda mensagens descartadas para inspeção ou reenvio.
// É opcional: sem sink, o descarte só aparece no log.
type DeadLetterSink interface {
	Put(ctx context.Context, dl DeadLetter) error
}

// DeadLetterStore é um sink que também permite listar e retirar itens.
type DeadLetterStore interface {
	DeadLetterSink
	List(ctx context.Context, limit int64) ([]DeadLetter, error)
	// Pop remove até n itens do início da lista.
	Pop(ctx context.Context, n int64) ([]DeadLetter, error)
}
