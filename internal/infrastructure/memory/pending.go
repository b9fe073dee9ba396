package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-2fa-confirm/internal/domain"
)

// PendingStore keeps one pending confirmation per account.
type PendingStore struct {
	mu      sync.Mutex
	pending map[string]domain.PendingConfirmation
	now     func() time.Time
}

func NewPendingStore() *PendingStore {
	return &PendingStore{pending: make(map[string]domain.PendingConfirmation), now: time.Now}
}

func (s *PendingStore) Put(_ context.Context, p *domain.PendingConfirmation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[p.AccountID] = *p
	return nil
}

func (s *PendingStore) Get(_ context.Context, accountID string) (*domain.PendingConfirmation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[accountID]
	if !ok || !s.now().Before(p.PurgeAt()) {
		delete(s.pending, accountID)
		return nil, fmt.Errorf("pending confirmation not found: %w", domain.ErrNotFound)
	}
	return &p, nil
}

// Delete removes the account's pending confirmation if it is still codeID.
func (s *PendingStore) Delete(_ context.Context, accountID, codeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pending[accountID]; ok && p.CodeID == codeID {
		delete(s.pending, accountID)
	}
	return nil
}
