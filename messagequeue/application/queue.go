package application

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"pagewise-gateway/internal/observability"
	"pagewise-gateway/messagequeue/domain"

	"github.com/sirupsen/logrus"
)

// Queue é a fila FIFO em memória que persiste mensagens de chat fora do
// caminho do request.
//
// Um único worker consome a cabeça da fila. Se a escrita falha, a mensagem
// fica na cabeça aguardando o backoff e bloqueia as demais (head-of-line
// blocking). Depois de MaxAttempts falhas ela é descartada.
type Queue struct {
	writer      domain.MessageWriter
	deadLetters domain.DeadLetterSink
	metrics     observability.QueueMetrics
	log         logrus.FieldLogger
	maxAttempts int
	baseDelay   time.Duration
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error

	mu         sync.Mutex
	entries    []*domain.Entry
	cancelWait context.CancelFunc

	processing atomic.Bool
	wake       chan struct{}
}

type Option func(*Queue)

func WithDeadLetters(s domain.DeadLetterSink) Option {
	return func(q *Queue) { q.deadLetters = s }
}

func WithMetrics(m observability.QueueMetrics) Option {
	return func(q *Queue) { q.metrics = m }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(q *Queue) { q.log = l }
}

func WithMaxAttempts(n int) Option {
	return func(q *Queue) { q.maxAttempts = n }
}

func WithBaseDelay(d time.Duration) Option {
	return func(q *Queue) { q.baseDelay = d }
}

// WithClock troca a fonte de tempo (testes).
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithSleep troca a espera do backoff (testes). A função deve retornar
// quando ctx for cancelado.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(q *Queue) { q.sleep = fn }
}

func New(w domain.MessageWriter, opts ...Option) *Queue {
	q := &Queue{
		writer:      w,
		maxAttempts: domain.MaxAttempts,
		baseDelay:   domain.BaseDelay,
		now:         time.Now,
		sleep:       sleepContext,
		wake:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.metrics == nil {
		q.metrics = observability.NoopQueueMetrics{}
	}
	if q.log == nil {
		q.log = observability.WithComponent("messagequeue")
	}
	if q.maxAttempts <= 0 {
		q.maxAttempts = domain.MaxAttempts
	}
	if q.baseDelay <= 0 {
		q.baseDelay = domain.BaseDelay
	}
	return q
}

// Enqueue coloca a mensagem no fim da fila e acorda o worker.
// Não espera a persistência e nunca informa falha ao chamador.
func (q *Queue) Enqueue(p domain.Payload) {
	q.mu.Lock()
	q.entries = append(q.entries, &domain.Entry{Payload: p, NextRetryAt: q.now()})
	q.mu.Unlock()

	q.metrics.IncEnqueued()
	q.signal()
}

// Run é o loop do worker. Bloqueia até ctx ser cancelado.
func (q *Queue) Run(ctx context.Context) {
	for {
		q.Process(ctx)

		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		}
	}
}

// Process executa uma passada do worker sobre a cabeça da fila.
//
// Chamadas concorrentes com uma passada ativa não fazem nada. A passada
// termina quando a fila esvazia, quando uma mensagem agenda retry ou quando
// ctx é cancelado; se ainda houver itens, o worker é acordado de novo.
// Uma escrita que falha porque ctx foi cancelado não conta como tentativa.
func (q *Queue) Process(ctx context.Context) {
	if !q.processing.CompareAndSwap(false, true) {
		return
	}
	q.drain(ctx)
	q.processing.Store(false)

	if q.Len() > 0 {
		q.signal()
	}
}

func (q *Queue) drain(ctx context.Context) {
	for ctx.Err() == nil {
		e, ok := q.waitHead(ctx)
		if !ok {
			return
		}
		if e == nil {
			// a cabeça mudou durante a espera (Clear)
			continue
		}

		if _, err := q.writer.SaveMessage(ctx, e.Payload); err != nil {
			if ctx.Err() != nil {
				// parada do worker: a tentativa não conta
				return
			}
			if !q.fail(ctx, e, err) {
				return
			}
			continue
		}
		q.succeed(e)
	}
}

// waitHead devolve a cabeça da fila quando ela puder ser tentada.
// ok=false encerra a passada; e=nil pede para reavaliar a cabeça.
func (q *Queue) waitHead(ctx context.Context) (e *domain.Entry, ok bool) {
	q.mu.Lock()
	if len(q.entries) == 0 {
		q.mu.Unlock()
		return nil, false
	}
	head := q.entries[0]
	delay := head.NextRetryAt.Sub(q.now())
	if delay <= 0 {
		q.mu.Unlock()
		return head, true
	}
	waitCtx, cancel := context.WithCancel(ctx)
	q.cancelWait = cancel
	q.mu.Unlock()

	_ = q.sleep(waitCtx, delay)
	cancel()

	q.mu.Lock()
	q.cancelWait = nil
	stillHead := len(q.entries) > 0 && q.entries[0] == head
	q.mu.Unlock()

	if ctx.Err() != nil {
		return nil, false
	}
	if !stillHead {
		return nil, true
	}
	return head, true
}

func (q *Queue) succeed(e *domain.Entry) {
	q.mu.Lock()
	if len(q.entries) > 0 && q.entries[0] == e {
		q.popLocked()
	}
	q.mu.Unlock()
	q.metrics.IncPersisted()
}

// fail registra a falha da cabeça. Retorna true se a passada pode seguir
// para o próximo item.
func (q *Queue) fail(ctx context.Context, e *domain.Entry, cause error) bool {
	q.mu.Lock()
	if len(q.entries) == 0 || q.entries[0] != e {
		// fila limpa durante a escrita: resultado descartado
		q.mu.Unlock()
		return true
	}

	e.Attempts++
	attempts := e.Attempts
	if attempts >= q.maxAttempts {
		q.popLocked()
		q.mu.Unlock()
		q.drop(ctx, e, cause)
		return true
	}

	delay := backoff(q.baseDelay, attempts)
	e.NextRetryAt = q.now().Add(delay)
	q.mu.Unlock()

	q.metrics.IncRetried()
	q.log.WithFields(logrus.Fields{
		"attempt":       attempts,
		"next_retry_ms": delay.Milliseconds(),
		"document_id":   observability.MaskID(e.Payload.DocumentID),
	}).WithError(cause).Warn("message save failed, will retry")
	return false
}

// maxRetryDelay limita o backoff quando MaxAttempts é configurado alto.
const maxRetryDelay = time.Hour

// backoff devolve base*2^attempts, limitado a maxRetryDelay (e a base, se
// ela já passar disso) sem estourar int64.
func backoff(base time.Duration, attempts int) time.Duration {
	limit := max(maxRetryDelay, base)
	d := base
	for i := 0; i < attempts; i++ {
		if d >= limit/2 {
			return limit
		}
		d *= 2
	}
	return d
}

func (q *Queue) drop(ctx context.Context, e *domain.Entry, cause error) {
	q.metrics.IncDropped()
	q.log.WithFields(logrus.Fields{
		"attempts":    e.Attempts,
		"role":        e.Payload.Role,
		"document_id": observability.MaskID(e.Payload.DocumentID),
	}).WithError(cause).Error("message dropped after max retry attempts")

	if q.deadLetters == nil {
		return
	}
	dl := domain.DeadLetter{
		Payload:   e.Payload,
		Attempts:  e.Attempts,
		LastError: cause.Error(),
		FailedAt:  q.now().UTC(),
	}
	if err := q.deadLetters.Put(context.WithoutCancel(ctx), dl); err != nil {
		q.log.WithError(err).Error("dead letter write failed")
		return
	}
	q.metrics.IncDeadLettered()
}

func (q *Queue) popLocked() {
	q.entries[0] = nil
	q.entries = q.entries[1:]
}

// Clear descarta tudo que está pendente, inclusive itens aguardando retry.
// Uma escrita já em andamento não é cancelada; o resultado dela é ignorado.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.entries = nil
	cancel := q.cancelWait
	q.cancelWait = nil
	q.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Snapshot devolve uma cópia dos itens pendentes, da cabeça para o fim.
func (q *Queue) Snapshot() []domain.Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]domain.Entry, len(q.entries))
	for i, e := range q.entries {
		out[i] = *e
	}
	return out
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
