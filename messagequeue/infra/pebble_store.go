package infra

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"pagewise-gateway/messagequeue/domain"

	"github.com/cockroachdb/pebble"
)

// PebbleMessageStore persiste mensagens em um banco pebble local.
//
// Chave: msg/<documentId em hex>/<unix nanos, 20 dígitos>-<uuid>. O id vai
// em hex para que nenhum documento seja prefixo de outro ("a" e "a/b").
// A ordenação lexicográfica das chaves segue a ordem de criação dentro do
// documento.
type PebbleMessageStore struct {
	db  *pebble.DB
	ids recordIDs
}

// OpenPebbleMessageStore abre (ou cria) o banco em dir.
func OpenPebbleMessageStore(dir string) (*PebbleMessageStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble %q: %w", dir, err)
	}
	return &PebbleMessageStore{db: db, ids: defaultRecordIDs()}, nil
}

func (s *PebbleMessageStore) Close() error {
	return s.db.Close()
}

func docPrefix(documentID string) []byte {
	return []byte("msg/" + hex.EncodeToString([]byte(documentID)) + "/")
}

// prefixEnd devolve o menor limite superior exclusivo para o prefixo.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func (s *PebbleMessageStore) SaveMessage(_ context.Context, p domain.Payload) (domain.Message, error) {
	msg := domain.NewMessage(s.ids.newID(), p, s.ids.now())
	raw, err := json.Marshal(msg)
	if err != nil {
		return domain.Message{}, fmt.Errorf("encode message: %w", err)
	}
	key := fmt.Appendf(docPrefix(p.DocumentID), "%020d-%s", msg.CreatedAt.UnixNano(), msg.ID)
	if err := s.db.Set(key, raw, pebble.Sync); err != nil {
		return domain.Message{}, fmt.Errorf("pebble set: %w", err)
	}
	return msg, nil
}

func (s *PebbleMessageStore) ListMessages(_ context.Context, documentID string) ([]domain.Message, error) {
	prefix := docPrefix(documentID)
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixEnd(prefix)})
	if err != nil {
		return nil, fmt.Errorf("pebble iter: %w", err)
	}
	defer it.Close()

	var out []domain.Message
	for it.First(); it.Valid(); it.Next() {
		var msg domain.Message
		if err := json.Unmarshal(it.Value(), &msg); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		out = append(out, msg)
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("pebble iter: %w", err)
	}
	return out, nil
}
