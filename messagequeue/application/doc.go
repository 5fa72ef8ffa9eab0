// Package application contém o caso de uso da fila de persistência:
// enfileirar, processar com backoff exponencial e descartar após o limite
// de tentativas.
//
// Depende apenas de domain (e do logger/métricas de observability).
package application
