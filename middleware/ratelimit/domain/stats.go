package domain

import (
	"context"
	"time"
)

// StatsEvent representa uma decisão do rate limit.
//
// Operation é o nome lógico da operação limitada ("summary", "chat"), não a
// rota HTTP, para manter a cardinalidade baixa.
type StatsEvent struct {
	Key       Key
	Operation string
	Allowed   bool
	At        time.Time
}

// StatsStore persiste estatísticas do rate limit.
// O middleware trata erro como best-effort (não derruba request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
