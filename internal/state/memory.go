package state

import (
	"context"
	"sync"
)

// MemoryStore keeps the configuration in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	data []byte

	commits committer
}

// NewMemoryStore creates a store, optionally holding an initial configuration.
func NewMemoryStore(initial *Configuration) (*MemoryStore, error) {
	s := &MemoryStore{}
	if initial != nil {
		data, err := Encode(initial)
		if err != nil {
			return nil, err
		}
		s.data = data
	}
	return s, nil
}

func (s *MemoryStore) Get(ctx context.Context) (*Configuration, error) {
	s.mu.RLock()
	data := s.data
	s.mu.RUnlock()
	if data == nil {
		return nil, ErrNotFound
	}
	return Decode(data)
}

func (s *MemoryStore) Set(ctx context.Context, cfg *Configuration, done func(CommitResult)) {
	s.commits.commit(ctx, cfg, func(_ context.Context, data []byte) error {
		s.mu.Lock()
		s.data = data
		s.mu.Unlock()
		return nil
	}, done)
}
