// Command upstream-stub simula o serviço de IA para testar o gateway
// localmente: responde ao chat e ao resumo em stream, linha a linha.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"pagewise-gateway/internal/observability"
)

func main() {
	observability.InitLogger(os.Getenv("LOG_LEVEL"), "text")
	log := observability.WithComponent("upstream-stub")

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			DocumentID string `json:"documentId"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		log.WithField("document_id", observability.MaskID(body.DocumentID)).Info("chat request")
		stream(w, "Esta", " é", " uma", " resposta", " simulada.")
	})
	mux.HandleFunc("POST /api/documents/{id}/generate-summary", func(w http.ResponseWriter, r *http.Request) {
		log.WithField("document_id", observability.MaskID(r.PathValue("id"))).Info("summary request")
		stream(w, "# Resumo\n", "- ponto 1\n", "- ponto 2\n")
	})

	addr := ":8082"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}
	log.WithField("addr", addr).Info("upstream stub listening")
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func stream(w http.ResponseWriter, chunks ...string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	flusher, _ := w.(http.Flusher)
	for _, c := range chunks {
		_, _ = fmt.Fprint(w, c)
		if flusher != nil {
			flusher.Flush()
		}
		time.Sleep(50 * time.Millisecond)
	}
}
