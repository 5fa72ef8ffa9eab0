package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

func formatInt(v int) string { return strconv.Itoa(v) }

// retryAfterSeconds arredonda para cima: Retry-After é em segundos inteiros
// e nunca deve sugerir voltar antes da hora. Mínimo de 1.
func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
