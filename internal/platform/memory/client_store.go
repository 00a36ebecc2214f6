package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/promoloop/exchange-api/internal/domain"
	"github.com/promoloop/exchange-api/internal/store"
)

// MemoryClientStore implements store.ClientStore with an in-process map.
type MemoryClientStore struct {
	mu      sync.Mutex
	clients map[uuid.UUID]*domain.Client
}

// NewMemoryClientStore creates an empty MemoryClientStore.
func NewMemoryClientStore() *MemoryClientStore {
	return &MemoryClientStore{clients: make(map[uuid.UUID]*domain.Client)}
}

var _ store.ClientStore = (*MemoryClientStore)(nil)

// Put inserts or replaces a client record. Used by the development
// seeding path and tests; the dashboard owns client records in
// production.
func (s *MemoryClientStore) Put(client *domain.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dup := *client
	s.clients[client.ID] = &dup
}

// Get retrieves a client by ID.
func (s *MemoryClientStore) Get(ctx context.Context, id uuid.UUID) (*domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, ok := s.clients[id]
	if !ok {
		return nil, store.ErrClientNotFound
	}
	dup := *client
	return &dup, nil
}

// DebitCredits decrements the balance, refusing to go negative.
func (s *MemoryClientStore) DebitCredits(ctx context.Context, id uuid.UUID, amount int) error {
	if amount <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	client, ok := s.clients[id]
	if !ok {
		return store.ErrClientNotFound
	}
	if client.Credits < amount {
		return store.ErrInsufficientCredits
	}
	client.Credits -= amount
	return nil
}
