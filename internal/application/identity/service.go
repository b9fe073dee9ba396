// Package identity recovers and claims out-of-band verification methods.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-2fa-confirm/internal/application/delivery"
	"github.com/go-2fa-confirm/internal/domain"
	"github.com/go-2fa-confirm/internal/metrics"
	"github.com/go-2fa-confirm/internal/pkg/identitykey"
	"github.com/go-2fa-confirm/internal/pkg/otp"
)

// MethodStore persists verification methods. Implementations resolve
// creation races with storage-level unique constraints only.
type MethodStore interface {
	GetMethod(ctx context.Context, identityKey string, kind domain.MethodKind) (*domain.VerificationMethod, error)
	// ClaimMethod marks the method claimed and clears its code. Claiming a
	// claimed method succeeds. Missing methods return domain.ErrNotFound.
	ClaimMethod(ctx context.Context, identityKey string, kind domain.MethodKind) (*domain.VerificationMethod, error)
	// ClaimMethodWithCode is ClaimMethod gated on securityCode matching the
	// outstanding code, checked and written in one atomic step. A wrong code
	// returns domain.ErrCodeMismatch; a claimed method is returned as is.
	ClaimMethodWithCode(ctx context.Context, identityKey string, kind domain.MethodKind, securityCode string) (*domain.VerificationMethod, error)
	// RecoverIdentity creates the method or rotates its code. Uniqueness
	// violations are reported as domain.RecoverConflict, never as an error.
	RecoverIdentity(ctx context.Context, identityKey string, kind domain.MethodKind, securityCode string) (domain.RecoverOutcome, error)
}

// Sender delivers a rendered message to a verification method.
type Sender interface {
	Send(ctx context.Context, method domain.DeliveryMethod, msg domain.Message) error
}

type Service interface {
	RecoverIdentity(ctx context.Context, req domain.RecoverIdentityRequest) (domain.IdentityResult, error)
	ClaimIdentity(ctx context.Context, req domain.ClaimIdentityRequest) (domain.IdentityResult, error)
	GetIdentity(ctx context.Context, identityKey string, kind domain.MethodKind) (*domain.VerificationMethod, error)
}

// ServiceDeps groups the collaborators of the identity service.
type ServiceDeps struct {
	Store   MethodStore
	Sender  Sender
	Metrics *metrics.Recorder
	CodeTTL time.Duration
}

type service struct {
	store   MethodStore
	sender  Sender
	metrics *metrics.Recorder
	codeTTL time.Duration
}

func NewService(deps ServiceDeps) Service {
	return &service{
		store:   deps.Store,
		sender:  deps.Sender,
		metrics: deps.Metrics,
		codeTTL: deps.CodeTTL,
	}
}

func (s *service) RecoverIdentity(ctx context.Context, req domain.RecoverIdentityRequest) (domain.IdentityResult, error) {
	kind, err := domain.ParseMethodKind(req.Kind)
	if err != nil {
		return domain.IdentityResult{}, err
	}
	key := identitykey.Normalize(req.IdentityKey)
	if kind == domain.MethodEmail {
		if _, err := identitykey.UniqueEmail(key); err != nil {
			return domain.IdentityResult{}, err
		}
	}

	code, err := otp.Generate()
	if err != nil {
		return domain.IdentityResult{}, err
	}

	outcome, err := s.store.RecoverIdentity(ctx, key, kind, code)
	if err != nil {
		return domain.IdentityResult{}, fmt.Errorf("recover identity: %w", err)
	}
	s.metrics.Recovery(string(outcome))
	if !outcome.Succeeded() {
		slog.Info("identity recovery refused", "kind", kind, "outcome", outcome)
		return domain.IdentityResult{Success: false, Reason: string(outcome)}, nil
	}

	msg, err := delivery.SecurityCodeMessage(key, code, delivery.Validity(s.codeTTL))
	if err != nil {
		return domain.IdentityResult{}, err
	}
	if err := s.sender.Send(ctx, domain.DeliveryMethod{Kind: kind, Destination: key}, msg); err != nil {
		return domain.IdentityResult{}, err
	}
	return domain.IdentityResult{Success: true}, nil
}

func (s *service) ClaimIdentity(ctx context.Context, req domain.ClaimIdentityRequest) (domain.IdentityResult, error) {
	kind, err := domain.ParseMethodKind(req.Kind)
	if err != nil {
		return domain.IdentityResult{}, err
	}
	key := identitykey.Normalize(req.IdentityKey)

	if req.SecurityCode == "" {
		return domain.IdentityResult{}, fmt.Errorf("security_code is required: %w", domain.ErrBadRequest)
	}

	if _, err := s.store.ClaimMethodWithCode(ctx, key, kind, req.SecurityCode); err != nil {
		switch {
		case errors.Is(err, domain.ErrCodeMismatch):
			return domain.IdentityResult{Success: false, Reason: domain.ReasonMismatch}, nil
		case errors.Is(err, domain.ErrNotFound):
			return domain.IdentityResult{}, err
		}
		return domain.IdentityResult{}, fmt.Errorf("claim identity: %w", err)
	}
	return domain.IdentityResult{Success: true}, nil
}

func (s *service) GetIdentity(ctx context.Context, identityKey string, kind domain.MethodKind) (*domain.VerificationMethod, error) {
	m, err := s.store.GetMethod(ctx, identitykey.Normalize(identityKey), kind)
	if err != nil {
		return nil, err
	}
	out := *m
	out.SecurityCode = nil
	return &out, nil
}
