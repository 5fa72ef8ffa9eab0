// Package infra contém as implementações concretas de domain.MessageWriter,
// domain.MessageReader e domain.DeadLetterStore.
//
//   - MemoryMessageStore: desenvolvimento e testes
//   - RedisMessageStore: uma lista por documento (go-redis)
//   - PebbleMessageStore: armazenamento local durável (pebble)
//   - KafkaMessageStore: publica os registros em um tópico (somente escrita)
//   - MemoryDeadLetters / RedisDeadLetters: destino das mensagens descartadas
package infra
