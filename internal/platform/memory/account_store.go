package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/promoloop/exchange-api/internal/domain"
	"github.com/promoloop/exchange-api/internal/store"
)

// MemoryAccountStore implements store.AccountStore with an in-process
// map.
type MemoryAccountStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*domain.Account
}

// NewMemoryAccountStore creates an empty MemoryAccountStore.
func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{accounts: make(map[uuid.UUID]*domain.Account)}
}

var _ store.AccountStore = (*MemoryAccountStore)(nil)

// Put inserts or replaces an account record.
func (s *MemoryAccountStore) Put(acct *domain.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dup := *acct
	s.accounts[acct.ID] = &dup
}

// List returns up to limit accounts, oldest first.
func (s *MemoryAccountStore) List(ctx context.Context, limit int) ([]*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts := make([]*domain.Account, 0, len(s.accounts))
	for _, acct := range s.accounts {
		dup := *acct
		accounts = append(accounts, &dup)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
	})
	if limit > 0 && len(accounts) > limit {
		accounts = accounts[:limit]
	}
	return accounts, nil
}

// UpdateSession persists fresh session cookies.
func (s *MemoryAccountStore) UpdateSession(ctx context.Context, id uuid.UUID, cookies string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return store.ErrAccountNotFound
	}
	acct.SessionCookies = cookies
	acct.UpdatedAt = time.Now().UTC()
	return nil
}

// TouchComment records the account's latest comment time.
func (s *MemoryAccountStore) TouchComment(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return store.ErrAccountNotFound
	}
	acct.LastCommentAt = &at
	acct.UpdatedAt = time.Now().UTC()
	return nil
}

// Delete permanently removes an account.
func (s *MemoryAccountStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[id]; !ok {
		return store.ErrAccountNotFound
	}
	delete(s.accounts, id)
	return nil
}
