package transcript

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process archive for local/dev use.
type InMemoryStore struct {
	mu         sync.RWMutex
	utterances map[string][]Utterance
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{utterances: make(map[string][]Utterance)}
}

func (s *InMemoryStore) Save(_ context.Context, u Utterance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	s.utterances[u.SessionID] = append(s.utterances[u.SessionID], u)
	return nil
}

func (s *InMemoryStore) BySession(_ context.Context, sessionID string, limit int) ([]Utterance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.utterances[sessionID]
	if len(arr) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > len(arr) {
		limit = len(arr)
	}
	out := make([]Utterance, 0, limit)
	for i := len(arr) - limit; i < len(arr); i++ {
		out = append(out, arr[i])
	}
	return out, nil
}

func (s *InMemoryStore) Ping(context.Context) error { return nil }

func (s *InMemoryStore) Close() error { return nil }
