package domain

import "time"

// Key identifica quem está sendo limitado, já com o escopo da operação
// (ex: "summary:<userId>").
type Key string

// Rule é o limite aplicado a uma chave: no máximo Limit eventos em
// qualquer janela móvel de tamanho Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

func (r Rule) Valid() bool {
	return r.Limit > 0 && r.Window > 0
}

type Decision struct {
	Allowed bool
	// RetryAfter é quanto falta para a próxima requisição caber na janela.
	// Só é preenchido quando bloqueado.
	RetryAfter time.Duration
}

// Limiter decide se um evento da chave cabe na regra agora e, se couber,
// já o registra.
//
// Check nunca bloqueia e nunca falha.
type Limiter interface {
	Check(key Key, rule Rule) Decision
}
