package infra

import (
	"context"
	"sync"

	"pagewise-gateway/messagequeue/domain"
)

const defaultDeadLetterCapacity = 1000

// MemoryDeadLetters guarda até `capacity` mensagens descartadas; quando
// cheio, a mais antiga sai.
type MemoryDeadLetters struct {
	mu       sync.Mutex
	items    []domain.DeadLetter
	capacity int
}

func NewMemoryDeadLetters(capacity int) *MemoryDeadLetters {
	if capacity <= 0 {
		capacity = defaultDeadLetterCapacity
	}
	return &MemoryDeadLetters{capacity: capacity}
}

func (d *MemoryDeadLetters) Put(_ context.Context, dl domain.DeadLetter) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.items) >= d.capacity {
		d.items = d.items[1:]
	}
	d.items = append(d.items, dl)
	return nil
}

func (d *MemoryDeadLetters) List(_ context.Context, limit int64) ([]domain.DeadLetter, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := clampCount(limit, len(d.items))
	return append([]domain.DeadLetter(nil), d.items[:n]...), nil
}

func (d *MemoryDeadLetters) Pop(_ context.Context, n int64) ([]domain.DeadLetter, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	k := clampCount(n, len(d.items))
	out := append([]domain.DeadLetter(nil), d.items[:k]...)
	d.items = d.items[k:]
	return out, nil
}

// clampCount trata n <= 0 como "todos".
func clampCount(n int64, size int) int {
	if n <= 0 || n > int64(size) {
		return size
	}
	return int(n)
}
