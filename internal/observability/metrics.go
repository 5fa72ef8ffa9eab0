package observability

import "sync/atomic"

// QueueMetrics recebe os eventos da fila de persistência de mensagens.
type QueueMetrics interface {
	IncEnqueued()
	IncPersisted()
	IncRetried()
	IncDropped()
	IncDeadLettered()
}

// QueueSnapshot é a leitura pontual dos contadores (exposta no /healthz).
type QueueSnapshot struct {
	Enqueued     int64 `json:"enqueued"`
	Persisted    int64 `json:"persisted"`
	Retried      int64 `json:"retried"`
	Dropped      int64 `json:"dropped"`
	DeadLettered int64 `json:"dead_lettered"`
}

type InMemoryQueueMetrics struct {
	enqueued     atomic.Int64
	persisted    atomic.Int64
	retried      atomic.Int64
	dropped      atomic.Int64
	deadLettered atomic.Int64
}

func NewInMemoryQueueMetrics() *InMemoryQueueMetrics {
	return &InMemoryQueueMetrics{}
}

func (m *InMemoryQueueMetrics) IncEnqueued()     { m.enqueued.Add(1) }
func (m *InMemoryQueueMetrics) IncPersisted()    { m.persisted.Add(1) }
func (m *InMemoryQueueMetrics) IncRetried()      { m.retried.Add(1) }
func (m *InMemoryQueueMetrics) IncDropped()      { m.dropped.Add(1) }
func (m *InMemoryQueueMetrics) IncDeadLettered() { m.deadLettered.Add(1) }

func (m *InMemoryQueueMetrics) Snapshot() QueueSnapshot {
	return QueueSnapshot{
		Enqueued:     m.enqueued.Load(),
		Persisted:    m.persisted.Load(),
		Retried:      m.retried.Load(),
		Dropped:      m.dropped.Load(),
		DeadLettered: m.deadLettered.Load(),
	}
}

// NoopQueueMetrics descarta todos os eventos.
type NoopQueueMetrics struct{}

func (NoopQueueMetrics) IncEnqueued()     {}
func (NoopQueueMetrics) IncPersisted()    {}
func (NoopQueueMetrics) IncRetried()      {}
func (NoopQueueMetrics) IncDropped()      {}
func (NoopQueueMetrics) IncDeadLettered() {}
