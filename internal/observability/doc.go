// Package observability concentra o logger do processo (logrus) e os
// contadores da fila de mensagens.
package observability
