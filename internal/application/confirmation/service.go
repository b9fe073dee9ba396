// Package confirmation implements the second-factor workflow for multisig
// requests: a per-account confirmation key, one-time codes delivered out of
// band, and confirmation on the backend once a code checks out.
package confirmation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-2fa-confirm/internal/application/delivery"
	"github.com/go-2fa-confirm/internal/domain"
	"github.com/go-2fa-confirm/internal/infrastructure/keys"
	"github.com/go-2fa-confirm/internal/metrics"
	"github.com/go-2fa-confirm/internal/pkg/id"
	"github.com/go-2fa-confirm/internal/pkg/otp"
)

// CodeStore keeps at most one pending confirmation per account.
type CodeStore interface {
	// Put replaces any pending confirmation for p.AccountID.
	Put(ctx context.Context, p *domain.PendingConfirmation) error
	// Get returns domain.ErrNotFound when nothing is pending.
	Get(ctx context.Context, accountID string) (*domain.PendingConfirmation, error)
	// Delete removes the pending confirmation only while it is still codeID.
	Delete(ctx context.Context, accountID, codeID string) error
}

// MethodResolver looks up the verified delivery method of an account.
type MethodResolver interface {
	Resolve(ctx context.Context, accountID string) (domain.DeliveryMethod, error)
}

// Backend is the multisig contract backend.
type Backend interface {
	// Confirm signs and submits a confirmation. A request the backend no
	// longer accepts returns domain.ErrRequestInvalid; anything retriable
	// returns domain.ErrBackendFailure.
	Confirm(ctx context.Context, key keys.KeyPair, accountID string, requestID uint64) error
	GetRequest(ctx context.Context, accountID string, requestID uint64) (*domain.MultisigRequest, error)
	ListRequestIDs(ctx context.Context, accountID string) ([]uint64, error)
}

// KeyDeriver derives the per-account confirmation keypair.
type KeyDeriver interface {
	Derive(accountID string) keys.KeyPair
	PublicKey(accountID string) string
}

// Sender delivers a rendered message to a delivery method.
type Sender interface {
	Send(ctx context.Context, method domain.DeliveryMethod, msg domain.Message) error
}

type Service interface {
	ConfirmationKey(accountID string) string
	IssueCode(ctx context.Context, accountID, request string) error
	VerifyCode(ctx context.Context, accountID, requestID, code string) (domain.VerifyResult, error)
	PendingRequests(ctx context.Context, accountID string) ([]domain.MultisigRequest, error)
}

// ServiceDeps groups the collaborators of the confirmation service.
type ServiceDeps struct {
	Keys           KeyDeriver
	Codes          CodeStore
	Methods        MethodResolver
	Sender         Sender
	Backend        Backend
	Metrics        *metrics.Recorder
	CodeTTL        time.Duration
	BackendTimeout time.Duration
}

type service struct {
	keys           KeyDeriver
	codes          CodeStore
	methods        MethodResolver
	sender         Sender
	backend        Backend
	metrics        *metrics.Recorder
	codeTTL        time.Duration
	backendTimeout time.Duration
	now            func() time.Time
}

func NewService(deps ServiceDeps) Service {
	return &service{
		keys:           deps.Keys,
		codes:          deps.Codes,
		methods:        deps.Methods,
		sender:         deps.Sender,
		backend:        deps.Backend,
		metrics:        deps.Metrics,
		codeTTL:        deps.CodeTTL,
		backendTimeout: deps.BackendTimeout,
		now:            time.Now,
	}
}

func (s *service) ConfirmationKey(accountID string) string {
	return s.keys.PublicKey(accountID)
}

func (s *service) IssueCode(ctx context.Context, accountID, request string) error {
	method, err := s.methods.Resolve(ctx, accountID)
	if err != nil {
		return fmt.Errorf("resolve delivery method: %w", err)
	}

	code, err := otp.Generate()
	if err != nil {
		return err
	}
	hash, err := otp.Hash(code)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	pending := &domain.PendingConfirmation{
		AccountID: accountID,
		CodeID:    id.New(),
		CodeHash:  hash,
		Channel:   method.Kind,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.codeTTL).Unix(),
	}
	if err := s.codes.Put(ctx, pending); err != nil {
		return fmt.Errorf("store pending confirmation: %w", err)
	}

	msg, err := delivery.ConfirmRequestMessage(accountID, request, s.requestDetails(ctx, accountID, request), code, delivery.Validity(s.codeTTL))
	if err != nil {
		return err
	}
	if err := s.sender.Send(ctx, method, msg); err != nil {
		return err
	}
	s.metrics.CodeIssued(string(method.Kind))
	slog.Info("confirmation code issued", "account_id", accountID, "channel", method.Kind, "code_id", pending.CodeID)
	return nil
}

// requestDetails fetches the backend request when request is a request id.
// Lookup failures only cost the message its detail lines.
func (s *service) requestDetails(ctx context.Context, accountID, request string) []string {
	requestID, err := strconv.ParseUint(strings.TrimSpace(request), 10, 64)
	if err != nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.backendTimeout)
	defer cancel()
	req, err := s.backend.GetRequest(ctx, accountID, requestID)
	s.metrics.BackendCall("get_request", err)
	if err != nil {
		slog.Warn("request details unavailable", "account_id", accountID, "request_id", requestID, "err", err)
		return nil
	}
	return delivery.RequestDetails(req)
}

func (s *service) VerifyCode(ctx context.Context, accountID, requestID, code string) (domain.VerifyResult, error) {
	reqID, err := strconv.ParseUint(requestID, 10, 64)
	if err != nil {
		return domain.VerifyResult{}, fmt.Errorf("request_id must be an unsigned integer: %w", domain.ErrBadRequest)
	}

	pending, err := s.codes.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.VerifyResult{}, fmt.Errorf("no pending confirmation code: %w", domain.ErrNotFound)
		}
		return domain.VerifyResult{}, fmt.Errorf("load pending confirmation: %w", err)
	}

	if pending.Expired(s.now()) {
		s.metrics.Verification(domain.ReasonExpired)
		return domain.VerifyResult{Success: false, Reason: domain.ReasonExpired}, nil
	}
	ok, err := otp.MatchHash(pending.CodeHash, code)
	if err != nil {
		return domain.VerifyResult{}, err
	}
	if !ok {
		s.metrics.Verification(domain.ReasonMismatch)
		return domain.VerifyResult{Success: false, Reason: domain.ReasonMismatch}, nil
	}

	key := s.keys.Derive(accountID)
	bctx, cancel := context.WithTimeout(ctx, s.backendTimeout)
	err = s.backend.Confirm(bctx, key, accountID, reqID)
	cancel()
	s.metrics.BackendCall("confirm", err)

	switch {
	case err == nil:
		s.clear(ctx, pending)
		s.metrics.Verification("success")
		slog.Info("request confirmed", "account_id", accountID, "request_id", reqID)
		return domain.VerifyResult{Success: true}, nil
	case errors.Is(err, domain.ErrRequestInvalid):
		s.clear(ctx, pending)
		s.metrics.Verification(domain.ReasonRequestInvalid)
		return domain.VerifyResult{Success: false, Reason: domain.ReasonRequestInvalid, Error: err.Error()}, nil
	default:
		slog.Warn("backend confirm failed", "account_id", accountID, "request_id", reqID, "err", err)
		s.metrics.Verification(domain.ReasonBackendFailure)
		return domain.VerifyResult{Success: false, Reason: domain.ReasonBackendFailure, Error: err.Error()}, nil
	}
}

// clear drops the pending code once it can no longer be used.
func (s *service) clear(ctx context.Context, p *domain.PendingConfirmation) {
	if err := s.codes.Delete(ctx, p.AccountID, p.CodeID); err != nil {
		slog.Warn("failed to delete pending confirmation", "account_id", p.AccountID, "err", err)
	}
}

func (s *service) PendingRequests(ctx context.Context, accountID string) ([]domain.MultisigRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, s.backendTimeout)
	defer cancel()

	ids, err := s.backend.ListRequestIDs(ctx, accountID)
	s.metrics.BackendCall("list_requests", err)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	out := make([]domain.MultisigRequest, 0, len(ids))
	for _, rid := range ids {
		req, err := s.backend.GetRequest(ctx, accountID, rid)
		s.metrics.BackendCall("get_request", err)
		if err != nil {
			// Requests can disappear between the list and the fetch.
			if errors.Is(err, domain.ErrRequestInvalid) {
				continue
			}
			return nil, fmt.Errorf("get request %d: %w", rid, err)
		}
		out = append(out, *req)
	}
	return out, nil
}
