// Package domain define os tipos e contratos da fila de persistência de
// mensagens de chat.
//
// Não depende de armazenamento concreto nem de net/http: a escrita durável
// entra como MessageWriter e o destino das mensagens descartadas como
// DeadLetterSink.
package domain
