package application

import (
	"context"
	"fmt"

	"pagewise-gateway/messagequeue/domain"
)

// Enqueuer recebe mensagens para persistir (normalmente *Queue).
type Enqueuer interface {
	Enqueue(p domain.Payload)
}

// Redrive retira até n dead letters (todas com n <= 0) e as coloca de volta
// na fila com a contagem de tentativas zerada. Devolve quantas voltaram.
func Redrive(ctx context.Context, from domain.DeadLetterStore, to Enqueuer, n int64) (int, error) {
	items, err := from.Pop(ctx, n)
	if err != nil {
		return 0, fmt.Errorf("pop dead letters: %w", err)
	}
	for _, dl := range items {
		to.Enqueue(dl.Payload)
	}
	return len(items), nil
}
