package routing

import (
	"context"
	"sync"

	"github.com/vietddude/framerpc/internal/core/domain"
)

// StateStore persists endpoint reachability so it survives restarts and can
// be shared between processes talking to the same endpoints.
type StateStore interface {
	// Save stores the endpoint's current marks.
	Save(ctx context.Context, ep domain.Endpoint) error

	// Load returns the stored marks for address; ok is false if none exist.
	Load(ctx context.Context, address string) (ep domain.Endpoint, ok bool, err error)
}

// MemoryStore is a process-local StateStore.
type MemoryStore struct {
	mu        sync.RWMutex
	endpoints map[string]domain.Endpoint
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{endpoints: make(map[string]domain.Endpoint)}
}

func (s *MemoryStore) Save(_ context.Context, ep domain.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endpoints[ep.Address] = ep
	return nil
}

func (s *MemoryStore) Load(_ context.Context, address string) (domain.Endpoint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ep, ok := s.endpoints[address]
	return ep, ok, nil
}
