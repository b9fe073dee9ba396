// Package memory holds in-process stores for development and tests.
// Their mutexes stand in for the storage engine's unique indexes.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-2fa-confirm/internal/domain"
	"github.com/go-2fa-confirm/internal/pkg/identitykey"
	"github.com/go-2fa-confirm/internal/pkg/otp"
)

type methodKey struct {
	identityKey string
	kind        domain.MethodKind
}

// MethodStore is a concurrency-safe in-memory verification method store.
type MethodStore struct {
	mu       sync.Mutex
	methods  map[methodKey]*domain.VerificationMethod
	byUnique map[string]methodKey
	now      func() time.Time
}

func NewMethodStore() *MethodStore {
	return &MethodStore{
		methods:  make(map[methodKey]*domain.VerificationMethod),
		byUnique: make(map[string]methodKey),
		now:      time.Now,
	}
}

func (s *MethodStore) GetMethod(_ context.Context, identityKey string, kind domain.MethodKind) (*domain.VerificationMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.methods[methodKey{identityKey, kind}]
	if !ok {
		return nil, fmt.Errorf("verification method not found: %w", domain.ErrNotFound)
	}
	return clone(m), nil
}

// ClaimMethod claims the method unconditionally.
func (s *MethodStore) ClaimMethod(_ context.Context, identityKey string, kind domain.MethodKind) (*domain.VerificationMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.methods[methodKey{identityKey, kind}]
	if !ok {
		return nil, fmt.Errorf("verification method not found: %w", domain.ErrNotFound)
	}
	m.Claimed = true
	m.SecurityCode = nil
	m.UpdatedAt = s.now().UTC()
	return clone(m), nil
}

// ClaimMethodWithCode claims the method if securityCode matches, under the
// same lock as the comparison.
func (s *MethodStore) ClaimMethodWithCode(_ context.Context, identityKey string, kind domain.MethodKind, securityCode string) (*domain.VerificationMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.methods[methodKey{identityKey, kind}]
	if !ok {
		return nil, fmt.Errorf("verification method not found: %w", domain.ErrNotFound)
	}
	if m.Claimed {
		return clone(m), nil
	}
	if m.SecurityCode == nil || !otp.Equal(*m.SecurityCode, securityCode) {
		return nil, fmt.Errorf("claim verification method: %w", domain.ErrCodeMismatch)
	}
	m.Claimed = true
	m.SecurityCode = nil
	m.UpdatedAt = s.now().UTC()
	return clone(m), nil
}

func (s *MethodStore) RecoverIdentity(_ context.Context, identityKey string, kind domain.MethodKind, securityCode string) (domain.RecoverOutcome, error) {
	identityKey = identitykey.Normalize(identityKey)
	unique, err := identitykey.Unique(identityKey, kind)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	k := methodKey{identityKey, kind}
	now := s.now().UTC()
	if m, ok := s.methods[k]; ok {
		if m.Claimed {
			return domain.RecoverAlreadyClaimed, nil
		}
		m.SecurityCode = &securityCode
		m.UpdatedAt = now
		return domain.RecoverRotated, nil
	}
	if unique != nil {
		if _, taken := s.byUnique[*unique]; taken {
			return domain.RecoverConflict, nil
		}
		s.byUnique[*unique] = k
	}
	s.methods[k] = &domain.VerificationMethod{
		IdentityKey:       identityKey,
		Kind:              kind,
		UniqueIdentityKey: unique,
		SecurityCode:      &securityCode,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	return domain.RecoverCreated, nil
}

// Len reports how many methods are stored.
func (s *MethodStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.methods)
}

func clone(m *domain.VerificationMethod) *domain.VerificationMethod {
	out := *m
	if m.SecurityCode != nil {
		c := *m.SecurityCode
		out.SecurityCode = &c
	}
	if m.UniqueIdentityKey != nil {
		u := *m.UniqueIdentityKey
		out.UniqueIdentityKey = &u
	}
	return &out
}
