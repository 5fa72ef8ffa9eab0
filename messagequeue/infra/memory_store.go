package infra

import (
	"context"
	"sync"

	"pagewise-gateway/messagequeue/domain"
)

// MemoryMessageStore guarda as mensagens em memória, por documento.
// Útil para testes e desenvolvimento; não sobrevive a restart.
type MemoryMessageStore struct {
	mu    sync.Mutex
	byDoc map[string][]domain.Message
	ids   recordIDs
}

func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{
		byDoc: make(map[string][]domain.Message),
		ids:   defaultRecordIDs(),
	}
}

func (s *MemoryMessageStore) SaveMessage(_ context.Context, p domain.Payload) (domain.Message, error) {
	msg := domain.NewMessage(s.ids.newID(), p, s.ids.now())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byDoc[p.DocumentID] = append(s.byDoc[p.DocumentID], msg)
	return msg, nil
}

func (s *MemoryMessageStore) ListMessages(_ context.Context, documentID string) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Message(nil), s.byDoc[documentID]...), nil
}
