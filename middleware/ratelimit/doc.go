// Package ratelimit fornece os adapters HTTP (net/http) de rate limit e de
// limite de concorrência do gateway.
//
// Camadas:
//
//   - domain: Rule, Decision, Limiter, StatsStore, SlotPool (sem net/http)
//   - application: Service.Decide e StreamGate (sem net/http)
//   - infra: SlidingWindow, TokenBucket, ChanPool e stores de estatística
//   - ratelimit (este pacote): middlewares, extração de chave e tradução
//     para status/headers
//
// Fluxo:
//
//  1. Extrai a chave (X-User-Id, X-Forwarded-For ou RemoteAddr) e prefixa
//     com a operação ("summary:<user>")
//  2. Pede a decisão para a camada application
//  3. Se bloqueado, responde 429 com Retry-After em segundos (arredondado
//     para cima) ou 503 quando não há vaga de concorrência
//  4. Se permitido, chama o próximo handler (ex: reverse proxy)
package ratelimit
