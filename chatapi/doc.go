// Package chatapi expõe as rotas HTTP do gateway: chat (enfileira a última
// mensagem e repassa para o serviço de IA), histórico por documento, geração
// de resumo com rate limit, healthz e administração das dead letters.
//
// A autenticação acontece antes do gateway; aqui só se exige o header
// X-User-Id.
package chatapi
