package domain

import "context"

// SlotPool é um recurso de capacidade finita, aqui os streams de resposta
// abertos contra o serviço de IA.
//
// Acquire bloqueia até conseguir uma vaga ou até ctx encerrar. O release
// devolvido libera a vaga e deve ser chamado uma vez.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
}
