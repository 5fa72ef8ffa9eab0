// Package infra contém as implementações concretas dos contratos de domain.
//
//   - SlidingWindow: janela móvel por chave (algoritmo padrão)
//   - TokenBucket: alternativa por chave usando golang.org/x/time/rate
//   - ChanPool: semáforo simples para limite de concorrência
//   - MemoryStatsStore / RedisStatsStore: contadores de decisões
package infra
