package chatapi

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"pagewise-gateway/internal/observability"
	"pagewise-gateway/messagequeue/application"
	"pagewise-gateway/messagequeue/domain"

	"github.com/sirupsen/logrus"
)

const (
	userHeader   = "X-User-Id"
	adminHeader  = "X-Admin-Token"
	maxBodyBytes = 1 << 20
)

// MessageQueue é a parte da fila usada pelas rotas.
type MessageQueue interface {
	Enqueue(p domain.Payload)
	Len() int
}

type Middleware func(http.Handler) http.Handler

// Deps reúne os colaboradores das rotas. Só Queue é obrigatório.
type Deps struct {
	Queue MessageQueue
	// Reader nil (ou que devolve domain.ErrNotReadable) faz o histórico
	// responder 501.
	Reader      domain.MessageReader
	DeadLetters domain.DeadLetterStore
	// Upstream recebe o chat e o resumo depois das verificações locais.
	Upstream http.Handler

	ChatLimit    Middleware
	SummaryLimit Middleware
	StreamLimit  Middleware

	// AdminToken vazio desliga as rotas /api/admin.
	AdminToken string
	Health     func() map[string]any
	Logger     logrus.FieldLogger
}

type server struct {
	Deps
}

type userKey struct{}

func identity(next http.Handler) http.Handler { return next }

func orIdentity(m Middleware) Middleware {
	if m == nil {
		return identity
	}
	return m
}

// NewRouter monta as rotas do gateway.
func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = observability.WithComponent("chatapi")
	}
	s := &server{Deps: d}

	chatLimit := orIdentity(d.ChatLimit)
	summaryLimit := orIdentity(d.SummaryLimit)
	streamLimit := orIdentity(d.StreamLimit)

	mux := http.NewServeMux()
	mux.Handle("POST /api/chat", s.requireUser(chatLimit(s.chat(streamLimit))))
	mux.Handle("GET /api/chat/{documentId}", s.requireUser(http.HandlerFunc(s.history)))
	mux.Handle("POST /api/documents/{id}/generate-summary", s.requireUser(summaryLimit(streamLimit(s.upstream()))))
	mux.HandleFunc("GET /healthz", s.healthz)

	if d.AdminToken != "" {
		mux.Handle("GET /api/admin/dead-letters", s.requireAdmin(http.HandlerFunc(s.listDeadLetters)))
		mux.Handle("POST /api/admin/dead-letters/redrive", s.requireAdmin(http.HandlerFunc(s.redriveDeadLetters)))
	}
	return mux
}

func (s *server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := strings.TrimSpace(r.Header.Get(userHeader))
		if user == "" {
			s.Logger.WithField("path", r.URL.Path).Warn("unauthorized request")
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	})
}

func userFrom(ctx context.Context) string {
	user, _ := ctx.Value(userKey{}).(string)
	return user
}

func (s *server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(adminHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.AdminToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// upstream repassa a requisição para o serviço de IA.
func (s *server) upstream() http.Handler {
	if s.Upstream == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusBadGateway, "Upstream not configured")
		})
	}
	return s.Upstream
}

// chat valida o request, enfileira a última mensagem e então repassa o
// request original (mesmo corpo) para o upstream. Sem upstream responde 202.
func (s *server) chat(streamLimit Middleware) http.Handler {
	var forward http.Handler
	if s.Upstream != nil {
		forward = streamLimit(s.Upstream)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := s.Logger.WithField("user_id", observability.MaskID(userFrom(r.Context())))

		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}

		var req chatRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			log.WithError(err).Error("failed to parse chat request body")
			writeError(w, http.StatusBadRequest, "Invalid JSON in request body")
			return
		}
		if errs := req.validate(); len(errs) > 0 {
			log.WithField("errors", errs.Error()).Warn("chat request validation failed")
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error":   "Validation failed",
				"details": errs.Error(),
			})
			return
		}

		last := req.Messages[len(req.Messages)-1]
		s.Queue.Enqueue(domain.Payload{
			Role:       last.Role,
			Content:    last.Content,
			DocumentID: req.DocumentID,
			UserID:     userFrom(r.Context()),
		})
		log.WithField("document_id", observability.MaskID(req.DocumentID)).Info("chat message queued for save")

		if forward == nil {
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(raw))
		r.ContentLength = int64(len(raw))
		forward.ServeHTTP(w, r)
	})
}

type historyResponse struct {
	Messages []domain.Message `json:"messages"`
	Total    int              `json:"total"`
}

func (s *server) history(w http.ResponseWriter, r *http.Request) {
	documentID := r.PathValue("documentId")
	if s.Reader == nil {
		writeError(w, http.StatusNotImplemented, "Message history is not available")
		return
	}

	msgs, err := s.Reader.ListMessages(r.Context(), documentID)
	if errors.Is(err, domain.ErrNotReadable) {
		writeError(w, http.StatusNotImplemented, "Message history is not available")
		return
	}
	if err != nil {
		s.Logger.WithError(err).WithField("document_id", observability.MaskID(documentID)).Error("error fetching messages")
		writeError(w, http.StatusInternalServerError, "Failed to fetch messages")
		return
	}

	own := ownedBy(msgs, userFrom(r.Context()))
	if len(msgs) > 0 && len(own) == 0 {
		s.Logger.WithFields(logrus.Fields{
			"document_id": observability.MaskID(documentID),
			"user_id":     observability.MaskID(userFrom(r.Context())),
		}).Warn("history requested for a document owned by another user")
		writeError(w, http.StatusNotFound, "Document not found")
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Messages: own, Total: len(own)})
}

// ownedBy filtra as mensagens do usuário. Nunca devolve nil.
func ownedBy(msgs []domain.Message, user string) []domain.Message {
	out := make([]domain.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.UserID == user {
			out = append(out, m)
		}
	}
	return out
}

func (s *server) healthz(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"status":        "ok",
		"queue_pending": s.Queue.Len(),
	}
	if s.Health != nil {
		for k, v := range s.Health() {
			body[k] = v
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func countParam(r *http.Request, name string) (int64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}

func (s *server) listDeadLetters(w http.ResponseWriter, r *http.Request) {
	if s.DeadLetters == nil {
		writeError(w, http.StatusNotFound, "Dead letters are disabled")
		return
	}
	limit, err := countParam(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, err := s.DeadLetters.List(r.Context(), limit)
	if err != nil {
		s.Logger.WithError(err).Error("list dead letters failed")
		writeError(w, http.StatusInternalServerError, "Failed to list dead letters")
		return
	}
	if items == nil {
		items = []domain.DeadLetter{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"deadLetters": items, "total": len(items)})
}

func (s *server) redriveDeadLetters(w http.ResponseWriter, r *http.Request) {
	if s.DeadLetters == nil {
		writeError(w, http.StatusNotFound, "Dead letters are disabled")
		return
	}
	n, err := countParam(r, "count")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	count, err := application.Redrive(r.Context(), s.DeadLetters, s.Queue, n)
	if err != nil {
		s.Logger.WithError(err).Error("redrive dead letters failed")
		writeError(w, http.StatusInternalServerError, "Failed to redrive dead letters")
		return
	}
	s.Logger.WithField("count", count).Info("dead letters redriven")
	writeJSON(w, http.StatusOK, map[string]int{"redriven": count})
}
