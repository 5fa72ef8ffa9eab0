package ratelimit

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pagewise-gateway/middleware/ratelimit/domain"
	"pagewise-gateway/middleware/ratelimit/infra"

	"github.com/sirupsen/logrus"
)

type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time { return c.now }

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func summaryRequest(user string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "http://gateway/api/documents/doc1/generate-summary", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	if user != "" {
		r.Header.Set(UserHeader, user)
	}
	return r
}

func newSummaryHandler(clock *stepClock, stats domain.StatsStore, calls *int) http.Handler {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.WriteHeader(http.StatusOK)
	})
	return Middleware(Options{
		Limiter:             infra.NewSlidingWindow(infra.WithClock(clock.Now)),
		Rule:                domain.Rule{Limit: 5, Window: time.Minute},
		Operation:           "summary",
		Stats:               stats,
		Logger:              quietLogger(),
		KeyHeader:           UserHeader,
		AddRateLimitHeaders: true,
	})(next)
}

func TestMiddleware_SixthSummaryInAMinuteIsRejected(t *testing.T) {
	clock := &stepClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	calls := 0
	h := newSummaryHandler(clock, nil, &calls)

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, summaryRequest("u1"))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, w.Code)
		}
		clock.now = clock.now.Add(time.Second)
	}

	clock.now = clock.now.Add(500 * time.Millisecond)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, summaryRequest("u1"))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	// mais antigo em t0, agora t0+5.5s: faltam 54.5s, arredonda para 55
	if got := w.Header().Get("Retry-After"); got != "55" {
		t.Fatalf("expected Retry-After=55, got %q", got)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "Too many requests" {
		t.Fatalf("unexpected body %v", body)
	}
	if got := w.Header().Get("X-RateLimit-Limit"); got != "5" {
		t.Fatalf("expected X-RateLimit-Limit=5, got %q", got)
	}
	if calls != 5 {
		t.Fatalf("expected next handler to be called 5 times, got %d", calls)
	}
}

func TestMiddleware_UsersHaveSeparateWindows(t *testing.T) {
	clock := &stepClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	calls := 0
	h := newSummaryHandler(clock, nil, &calls)

	for i := 0; i < 5; i++ {
		h.ServeHTTP(httptest.NewRecorder(), summaryRequest("u1"))
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, summaryRequest("u2"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for another user, got %d", w.Code)
	}
}

func TestMiddleware_RecordsStatsPerOperation(t *testing.T) {
	clock := &stepClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	stats := infra.NewMemoryStatsStore(infra.WithTrackKeys(true))
	calls := 0
	h := newSummaryHandler(clock, stats, &calls)

	for i := 0; i < 7; i++ {
		h.ServeHTTP(httptest.NewRecorder(), summaryRequest("u1"))
	}

	got := stats.ByOperation()["summary"]
	if got.Allowed != 5 || got.Denied != 2 {
		t.Fatalf("expected 5 allowed / 2 denied, got %+v", got)
	}
	if _, ok := stats.ByKey()["summary:u1"]; !ok {
		t.Fatalf("expected key summary:u1 to be tracked, got %v", stats.ByKey())
	}
}

func TestRetryAfterSeconds_RoundsUp(t *testing.T) {
	cases := map[time.Duration]int{
		time.Millisecond:         1,
		time.Second:              1,
		1001 * time.Millisecond:  2,
		54500 * time.Millisecond: 55,
		0:                        1,
	}
	for in, want := range cases {
		if got := retryAfterSeconds(in); got != want {
			t.Fatalf("retryAfterSeconds(%s) = %d, want %d", in, got, want)
		}
	}
}
