package chatapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"pagewise-gateway/messagequeue/domain"
	"pagewise-gateway/messagequeue/infra"
	"pagewise-gateway/middleware/ratelimit"
	rldomain "pagewise-gateway/middleware/ratelimit/domain"
	rlinfra "pagewise-gateway/middleware/ratelimit/infra"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingQueue struct {
	mu    sync.Mutex
	items []domain.Payload
}

func (q *recordingQueue) Enqueue(p domain.Payload) {
	q.mu.Lock()
	q.items = append(q.items, p)
	q.mu.Unlock()
}

func (q *recordingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

type failingReader struct{ err error }

func (r failingReader) ListMessages(context.Context, string) ([]domain.Message, error) {
	return nil, r.err
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

const chatBody = `{"messages":[{"role":"user","content":"first"},{"role":"user","content":"What is on page 2?"}],"documentId":"` + validDocID + `"}`

func do(t *testing.T, h http.Handler, method, target, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	if user != "" {
		r.Header.Set("X-User-Id", user)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestChat_RequiresUser(t *testing.T) {
	q := &recordingQueue{}
	h := NewRouter(Deps{Queue: q, Logger: quietLogger()})

	w := do(t, h, http.MethodPost, "/api/chat", "", chatBody)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Unauthorized", decode(t, w)["error"])
	assert.Zero(t, q.Len())
}

func TestChat_RejectsInvalidJSON(t *testing.T) {
	h := NewRouter(Deps{Queue: &recordingQueue{}, Logger: quietLogger()})

	w := do(t, h, http.MethodPost, "/api/chat", "u1", "{nope")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid JSON in request body", decode(t, w)["error"])
}

func TestChat_ReturnsValidationDetails(t *testing.T) {
	q := &recordingQueue{}
	h := NewRouter(Deps{Queue: q, Logger: quietLogger()})

	w := do(t, h, http.MethodPost, "/api/chat", "u1", `{"messages":[],"documentId":"bad"}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Validation failed", body["error"])
	assert.Equal(t, "messages: At least one message is required; documentId: Invalid document ID format", body["details"])
	assert.Zero(t, q.Len())
}

func TestChat_EnqueuesLastMessageAndAcceptsWithoutUpstream(t *testing.T) {
	q := &recordingQueue{}
	h := NewRouter(Deps{Queue: q, Logger: quietLogger()})

	w := do(t, h, http.MethodPost, "/api/chat", "u1", chatBody)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "queued", decode(t, w)["status"])
	require.Len(t, q.items, 1)
	assert.Equal(t, domain.Payload{Role: "user", Content: "What is on page 2?", DocumentID: validDocID, UserID: "u1"}, q.items[0])
}

func TestChat_ForwardsOriginalBodyUpstream(t *testing.T) {
	var gotBody, gotUser string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		gotUser = r.Header.Get("X-User-Id")
		_, _ = io.WriteString(w, "streamed answer")
	}))
	t.Cleanup(upstream.Close)
	target, err := url.Parse(upstream.URL)
	require.NoError(t, err)

	q := &recordingQueue{}
	h := NewRouter(Deps{Queue: q, Upstream: NewUpstreamProxy(target, quietLogger()), Logger: quietLogger()})

	w := do(t, h, http.MethodPost, "/api/chat", "u1", chatBody)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "streamed answer", w.Body.String())
	assert.JSONEq(t, chatBody, gotBody)
	assert.Equal(t, "u1", gotUser)
	assert.Equal(t, 1, q.Len())
}

func TestChat_UpstreamDownIsBadGateway(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	target, err := url.Parse(upstream.URL)
	require.NoError(t, err)
	upstream.Close()

	q := &recordingQueue{}
	h := NewRouter(Deps{Queue: q, Upstream: NewUpstreamProxy(target, quietLogger()), Logger: quietLogger()})

	w := do(t, h, http.MethodPost, "/api/chat", "u1", chatBody)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	// a mensagem já foi enfileirada antes do proxy
	assert.Equal(t, 1, q.Len())
}

func TestHistory_ListsMessagesInOrder(t *testing.T) {
	store := infra.NewMemoryMessageStore()
	for _, c := range []string{"question", "answer"} {
		_, err := store.SaveMessage(context.Background(), domain.Payload{Role: "user", Content: c, DocumentID: validDocID, UserID: "u1"})
		require.NoError(t, err)
	}
	h := NewRouter(Deps{Queue: &recordingQueue{}, Reader: store, Logger: quietLogger()})

	w := do(t, h, http.MethodGet, "/api/chat/"+validDocID, "u1", "")

	require.Equal(t, http.StatusOK, w.Code)
	var body historyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Total)
	assert.Equal(t, "question", body.Messages[0].Content)
	assert.Equal(t, "answer", body.Messages[1].Content)
}

func TestHistory_OtherUsersDocumentIsNotFound(t *testing.T) {
	store := infra.NewMemoryMessageStore()
	_, err := store.SaveMessage(context.Background(), domain.Payload{Role: "user", Content: "private", DocumentID: validDocID, UserID: "alice"})
	require.NoError(t, err)
	h := NewRouter(Deps{Queue: &recordingQueue{}, Reader: store, Logger: quietLogger()})

	w := do(t, h, http.MethodGet, "/api/chat/"+validDocID, "bob", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotContains(t, w.Body.String(), "private")
	assert.Equal(t, "Document not found", decode(t, w)["error"])

	own := do(t, h, http.MethodGet, "/api/chat/"+validDocID, "alice", "")
	require.Equal(t, http.StatusOK, own.Code)
	assert.EqualValues(t, 1, decode(t, own)["total"])
}

func TestHistory_OnlyReturnsCallersMessages(t *testing.T) {
	store := infra.NewMemoryMessageStore()
	for _, p := range []domain.Payload{
		{Role: "user", Content: "from alice", DocumentID: validDocID, UserID: "alice"},
		{Role: "user", Content: "from bob", DocumentID: validDocID, UserID: "bob"},
	} {
		_, err := store.SaveMessage(context.Background(), p)
		require.NoError(t, err)
	}
	h := NewRouter(Deps{Queue: &recordingQueue{}, Reader: store, Logger: quietLogger()})

	w := do(t, h, http.MethodGet, "/api/chat/"+validDocID, "bob", "")

	require.Equal(t, http.StatusOK, w.Code)
	var body historyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, 1, body.Total)
	assert.Equal(t, "from bob", body.Messages[0].Content)
}

func TestHistory_EmptyDocumentReturnsEmptyList(t *testing.T) {
	h := NewRouter(Deps{Queue: &recordingQueue{}, Reader: infra.NewMemoryMessageStore(), Logger: quietLogger()})

	w := do(t, h, http.MethodGet, "/api/chat/"+validDocID, "u1", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"messages":[],"total":0}`, w.Body.String())
}

func TestHistory_StatusByReader(t *testing.T) {
	cases := []struct {
		name   string
		reader domain.MessageReader
		want   int
	}{
		{"no reader", nil, http.StatusNotImplemented},
		{"write only store", failingReader{err: domain.ErrNotReadable}, http.StatusNotImplemented},
		{"store failure", failingReader{err: errors.New("timeout")}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewRouter(Deps{Queue: &recordingQueue{}, Reader: tc.reader, Logger: quietLogger()})
			w := do(t, h, http.MethodGet, "/api/chat/"+validDocID, "u1", "")
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestSummary_RateLimitedPerUser(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	limit := ratelimit.Middleware(ratelimit.Options{
		Limiter:   rlinfra.NewSlidingWindow(rlinfra.WithClock(func() time.Time { return now })),
		Rule:      rldomain.Rule{Limit: 5, Window: time.Minute},
		Operation: "summary",
		KeyHeader: ratelimit.UserHeader,
		Logger:    quietLogger(),
	})
	upstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "summary for "+r.URL.Path)
	})
	h := NewRouter(Deps{Queue: &recordingQueue{}, Upstream: upstream, SummaryLimit: limit, Logger: quietLogger()})

	for i := 0; i < 5; i++ {
		w := do(t, h, http.MethodPost, "/api/documents/doc1/generate-summary", "u1", "")
		require.Equalf(t, http.StatusOK, w.Code, "request %d", i+1)
	}

	w := do(t, h, http.MethodPost, "/api/documents/doc1/generate-summary", "u1", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	other := do(t, h, http.MethodPost, "/api/documents/doc1/generate-summary", "u2", "")
	assert.Equal(t, http.StatusOK, other.Code)
}

func TestSummary_UnauthenticatedIsNotCounted(t *testing.T) {
	limiter := rlinfra.NewSlidingWindow()
	limit := ratelimit.Middleware(ratelimit.Options{
		Limiter:   limiter,
		Rule:      rldomain.Rule{Limit: 5, Window: time.Minute},
		Operation: "summary",
		KeyHeader: ratelimit.UserHeader,
		Logger:    quietLogger(),
	})
	h := NewRouter(Deps{Queue: &recordingQueue{}, SummaryLimit: limit, Logger: quietLogger()})

	w := do(t, h, http.MethodPost, "/api/documents/doc1/generate-summary", "", "")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, limiter.Keys())
}

func TestSummary_WithoutUpstreamIsBadGateway(t *testing.T) {
	h := NewRouter(Deps{Queue: &recordingQueue{}, Logger: quietLogger()})

	w := do(t, h, http.MethodPost, "/api/documents/doc1/generate-summary", "u1", "")

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestHealthz_ReportsQueueDepthAndExtras(t *testing.T) {
	q := &recordingQueue{}
	q.Enqueue(domain.Payload{Role: "user", Content: "x", DocumentID: validDocID})
	h := NewRouter(Deps{
		Queue:  q,
		Health: func() map[string]any { return map[string]any{"limiter_keys": 3} },
		Logger: quietLogger(),
	})

	w := do(t, h, http.MethodGet, "/healthz", "", "")

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 1, body["queue_pending"])
	assert.EqualValues(t, 3, body["limiter_keys"])
}

func TestAdmin_DeadLetters(t *testing.T) {
	dls := infra.NewMemoryDeadLetters(10)
	for _, c := range []string{"a", "b"} {
		require.NoError(t, dls.Put(context.Background(), domain.DeadLetter{
			Payload:  domain.Payload{Role: "user", Content: c, DocumentID: validDocID},
			Attempts: domain.MaxAttempts,
		}))
	}
	q := &recordingQueue{}
	h := NewRouter(Deps{Queue: q, DeadLetters: dls, AdminToken: "secret", Logger: quietLogger()})

	unauth := do(t, h, http.MethodGet, "/api/admin/dead-letters", "", "")
	assert.Equal(t, http.StatusUnauthorized, unauth.Code)

	list := httptest.NewRequest(http.MethodGet, "/api/admin/dead-letters?limit=1", nil)
	list.Header.Set("X-Admin-Token", "secret")
	lw := httptest.NewRecorder()
	h.ServeHTTP(lw, list)
	require.Equal(t, http.StatusOK, lw.Code)
	assert.EqualValues(t, 1, decode(t, lw)["total"])

	redrive := httptest.NewRequest(http.MethodPost, "/api/admin/dead-letters/redrive", nil)
	redrive.Header.Set("X-Admin-Token", "secret")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, redrive)
	require.Equal(t, http.StatusOK, rw.Code)
	assert.EqualValues(t, 2, decode(t, rw)["redriven"])
	assert.Equal(t, 2, q.Len())

	rest, err := dls.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, rest)
}

func TestAdmin_RoutesDisabledWithoutToken(t *testing.T) {
	h := NewRouter(Deps{Queue: &recordingQueue{}, DeadLetters: infra.NewMemoryDeadLetters(1), Logger: quietLogger()})

	w := do(t, h, http.MethodGet, "/api/admin/dead-letters", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdmin_RejectsBadCount(t *testing.T) {
	h := NewRouter(Deps{Queue: &recordingQueue{}, DeadLetters: infra.NewMemoryDeadLetters(1), AdminToken: "t", Logger: quietLogger()})

	r := httptest.NewRequest(http.MethodPost, "/api/admin/dead-letters/redrive?count=-2", nil)
	r.Header.Set("X-Admin-Token", "t")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdmin_RedriveHonoursCount(t *testing.T) {
	dls := infra.NewMemoryDeadLetters(10)
	for _, c := range []string{"a", "b", "c"} {
		require.NoError(t, dls.Put(context.Background(), domain.DeadLetter{
			Payload:  domain.Payload{Role: "user", Content: c, DocumentID: validDocID},
			Attempts: domain.MaxAttempts,
		}))
	}
	q := &recordingQueue{}
	h := NewRouter(Deps{Queue: q, DeadLetters: dls, AdminToken: "secret", Logger: quietLogger()})

	r := httptest.NewRequest(http.MethodPost, "/api/admin/dead-letters/redrive?count=1", nil)
	r.Header.Set("X-Admin-Token", "secret")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["redriven"])
	require.Equal(t, 1, q.Len())
	assert.Equal(t, "a", q.items[0].Content)

	rest, err := dls.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, rest, 2)
}
