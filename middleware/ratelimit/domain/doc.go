// Package domain define contratos e tipos de domínio para rate limit e concorrência.
//
// Não depende de net/http nem de implementações concretas: a regra
// (limite por janela) e a decisão (allow/deny + retry-after) são tipos
// simples para que testes de unidade fiquem puros.
package domain
