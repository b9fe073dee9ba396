package confirmation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-2fa-confirm/internal/domain"
	"github.com/go-2fa-confirm/internal/infrastructure/keys"
	"github.com/go-2fa-confirm/internal/infrastructure/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testSeed = "test-seed-test-seed-test-seed-test-seed"

// --- mocks ---

type mockResolver struct{ mock.Mock }

func (m *mockResolver) Resolve(ctx context.Context, accountID string) (domain.DeliveryMethod, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(domain.DeliveryMethod), args.Error(1)
}

type mockBackend struct{ mock.Mock }

func (m *mockBackend) Confirm(ctx context.Context, key keys.KeyPair, accountID string, requestID uint64) error {
	return m.Called(ctx, key, accountID, requestID).Error(0)
}
func (m *mockBackend) GetRequest(ctx context.Context, accountID string, requestID uint64) (*domain.MultisigRequest, error) {
	args := m.Called(ctx, accountID, requestID)
	if r, _ := args.Get(0).(*domain.MultisigRequest); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockBackend) ListRequestIDs(ctx context.Context, accountID string) ([]uint64, error) {
	args := m.Called(ctx, accountID)
	ids, _ := args.Get(0).([]uint64)
	return ids, args.Error(1)
}

// captureSender records every delivered message.
type captureSender struct {
	mu   sync.Mutex
	sent []domain.Message
	to   []domain.DeliveryMethod
	err  error
}

func (c *captureSender) Send(_ context.Context, method domain.DeliveryMethod, msg domain.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, msg)
	c.to = append(c.to, method)
	return nil
}

var codeRe = regexp.MustCompile(`confirmation code is (\d{6})`)

func (c *captureSender) lastCode(t *testing.T) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.sent)
	m := codeRe.FindStringSubmatch(c.sent[len(c.sent)-1].Text)
	require.Len(t, m, 2)
	return m[1]
}

type fixture struct {
	svc      *service
	codes    *memory.PendingStore
	resolver *mockResolver
	backend  *mockBackend
	sender   *captureSender
	deriver  *keys.Deriver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	deriver, err := keys.New(testSeed)
	require.NoError(t, err)
	f := &fixture{
		codes:    memory.NewPendingStore(),
		resolver: &mockResolver{},
		backend:  &mockBackend{},
		sender:   &captureSender{},
		deriver:  deriver,
	}
	f.resolver.On("Resolve", mock.Anything, "alice.near").
		Return(domain.DeliveryMethod{Kind: domain.MethodEmail, Destination: "alice@example.com"}, nil).Maybe()
	f.svc = NewService(ServiceDeps{
		Keys:           deriver,
		Codes:          f.codes,
		Methods:        f.resolver,
		Sender:         f.sender,
		Backend:        f.backend,
		CodeTTL:        10 * time.Minute,
		BackendTimeout: time.Second,
	}).(*service)
	return f
}

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

// --- ConfirmationKey ---

func TestConfirmationKey_Deterministic(t *testing.T) {
	f := newFixture(t)
	a := f.svc.ConfirmationKey("alice.near")
	assert.Equal(t, a, f.svc.ConfirmationKey("alice.near"))
	assert.NotEqual(t, a, f.svc.ConfirmationKey("bob.near"))
	assert.True(t, strings.HasPrefix(a, "ed25519:"))
}

// --- IssueCode ---

func TestIssueCode_StoresHashAndDelivers(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.IssueCode(context.Background(), "alice.near", "add key"))

	code := f.sender.lastCode(t)
	assert.Equal(t, domain.DeliveryMethod{Kind: domain.MethodEmail, Destination: "alice@example.com"}, f.sender.to[0])
	assert.Contains(t, f.sender.sent[0].Subject, "alice.near")

	p, err := f.codes.Get(context.Background(), "alice.near")
	require.NoError(t, err)
	assert.NotContains(t, p.CodeHash, code)
	assert.Equal(t, domain.MethodEmail, p.Channel)
	assert.InDelta(t, time.Now().Add(10*time.Minute).Unix(), p.ExpiresAt, 2)
	f.backend.AssertNotCalled(t, "GetRequest", mock.Anything, mock.Anything, mock.Anything)
}

func TestIssueCode_NumericRequestAddsDetails(t *testing.T) {
	f := newFixture(t)
	f.backend.On("GetRequest", mock.Anything, "alice.near", uint64(7)).Return(&domain.MultisigRequest{
		RequestID:  7,
		ReceiverID: "alice.near",
		Actions:    []domain.MultisigAction{{Type: "add_key"}},
	}, nil)

	require.NoError(t, f.svc.IssueCode(context.Background(), "alice.near", "7"))
	assert.Contains(t, f.sender.sent[0].Text, "add key on alice.near")
}

func TestIssueCode_DetailLookupFailureStillDelivers(t *testing.T) {
	f := newFixture(t)
	f.backend.On("GetRequest", mock.Anything, "alice.near", uint64(7)).Return(nil, domain.ErrBackendFailure)
	require.NoError(t, f.svc.IssueCode(context.Background(), "alice.near", "7"))
	assert.Len(t, f.sender.sent, 1)
}

func TestIssueCode_ReplacesPriorCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.IssueCode(ctx, "alice.near", "first"))
	first, err := f.codes.Get(ctx, "alice.near")
	require.NoError(t, err)
	require.NoError(t, f.svc.IssueCode(ctx, "alice.near", "second"))
	second, err := f.codes.Get(ctx, "alice.near")
	require.NoError(t, err)
	assert.NotEqual(t, first.CodeID, second.CodeID)
}

func TestIssueCode_UnknownAccount(t *testing.T) {
	f := newFixture(t)
	f.resolver.On("Resolve", mock.Anything, "ghost.near").Return(domain.DeliveryMethod{}, domain.ErrNotFound)
	err := f.svc.IssueCode(context.Background(), "ghost.near", "x")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIssueCode_DeliveryFailure(t *testing.T) {
	f := newFixture(t)
	f.sender.err = fmt.Errorf("smtp down: %w", domain.ErrDeliveryFailure)
	err := f.svc.IssueCode(context.Background(), "alice.near", "x")
	assert.ErrorIs(t, err, domain.ErrDeliveryFailure)
}

// --- VerifyCode ---

func TestVerifyCode_NothingPending(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.VerifyCode(context.Background(), "alice.near", "1", "123456")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVerifyCode_BadRequestID(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.VerifyCode(context.Background(), "alice.near", "-1", "123456")
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestVerifyCode_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.IssueCode(ctx, "alice.near", "add key"))
	code := f.sender.lastCode(t)

	want := f.deriver.Derive("alice.near")
	f.backend.On("Confirm", mock.Anything, mock.MatchedBy(func(k keys.KeyPair) bool {
		return k.PublicKey.Equal(want.PublicKey)
	}), "alice.near", uint64(42)).Return(nil).Once()

	res, err := f.svc.VerifyCode(ctx, "alice.near", "42", code)
	require.NoError(t, err)
	assert.Equal(t, domain.VerifyResult{Success: true}, res)
	f.backend.AssertExpectations(t)

	// The code is single-use.
	_, err = f.svc.VerifyCode(ctx, "alice.near", "42", code)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	f.backend.AssertNumberOfCalls(t, "Confirm", 1)
}

func TestVerifyCode_MismatchKeepsCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.IssueCode(ctx, "alice.near", "add key"))
	code := f.sender.lastCode(t)

	res, err := f.svc.VerifyCode(ctx, "alice.near", "42", wrongCode(code))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, domain.ReasonMismatch, res.Reason)
	f.backend.AssertNotCalled(t, "Confirm", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	f.backend.On("Confirm", mock.Anything, mock.Anything, "alice.near", uint64(42)).Return(nil)
	res, err = f.svc.VerifyCode(ctx, "alice.near", "42", code)
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestVerifyCode_ExpiredReportedBeforeMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.IssueCode(ctx, "alice.near", "add key"))
	code := f.sender.lastCode(t)

	later := time.Now().Add(11 * time.Minute)
	f.svc.now = func() time.Time { return later }

	for _, c := range []string{code, wrongCode(code)} {
		res, err := f.svc.VerifyCode(ctx, "alice.near", "42", c)
		require.NoError(t, err)
		assert.Equal(t, domain.ReasonExpired, res.Reason)
	}
	f.backend.AssertNotCalled(t, "Confirm", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifyCode_BackendFailureKeepsCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.IssueCode(ctx, "alice.near", "add key"))
	code := f.sender.lastCode(t)

	f.backend.On("Confirm", mock.Anything, mock.Anything, "alice.near", uint64(42)).
		Return(fmt.Errorf("status 503: %w", domain.ErrBackendFailure)).Once()
	res, err := f.svc.VerifyCode(ctx, "alice.near", "42", code)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, domain.ReasonBackendFailure, res.Reason)
	assert.NotEmpty(t, res.Error)
	assert.NotContains(t, res.Error, code)

	_, err = f.codes.Get(ctx, "alice.near")
	require.NoError(t, err, "a transient backend failure leaves the code usable")

	f.backend.On("Confirm", mock.Anything, mock.Anything, "alice.near", uint64(42)).Return(nil).Once()
	res, err = f.svc.VerifyCode(ctx, "alice.near", "42", code)
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestVerifyCode_RequestInvalidClearsCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.IssueCode(ctx, "alice.near", "add key"))
	code := f.sender.lastCode(t)

	f.backend.On("Confirm", mock.Anything, mock.Anything, "alice.near", uint64(42)).
		Return(fmt.Errorf("request 42 not found: %w", domain.ErrRequestInvalid))
	res, err := f.svc.VerifyCode(ctx, "alice.near", "42", code)
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonRequestInvalid, res.Reason)

	_, err = f.codes.Get(ctx, "alice.near")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVerifyCode_RotationDuringConfirmKeepsNewCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.IssueCode(ctx, "alice.near", "first"))
	code := f.sender.lastCode(t)

	f.backend.On("Confirm", mock.Anything, mock.Anything, "alice.near", uint64(42)).
		Run(func(mock.Arguments) {
			require.NoError(t, f.svc.IssueCode(ctx, "alice.near", "second"))
		}).Return(nil)

	res, err := f.svc.VerifyCode(ctx, "alice.near", "42", code)
	require.NoError(t, err)
	assert.True(t, res.Success)

	_, err = f.codes.Get(ctx, "alice.near")
	require.NoError(t, err, "the code issued mid-verification must survive")
}

// --- PendingRequests ---

func TestPendingRequests_SkipsVanished(t *testing.T) {
	f := newFixture(t)
	f.backend.On("ListRequestIDs", mock.Anything, "alice.near").Return([]uint64{1, 2}, nil)
	f.backend.On("GetRequest", mock.Anything, "alice.near", uint64(1)).
		Return(&domain.MultisigRequest{RequestID: 1, ReceiverID: "alice.near"}, nil)
	f.backend.On("GetRequest", mock.Anything, "alice.near", uint64(2)).
		Return(nil, domain.ErrRequestInvalid)

	reqs, err := f.svc.PendingRequests(context.Background(), "alice.near")
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, uint64(1), reqs[0].RequestID)
}

func TestPendingRequests_BackendError(t *testing.T) {
	f := newFixture(t)
	f.backend.On("ListRequestIDs", mock.Anything, "alice.near").Return(nil, errors.New("boom"))
	_, err := f.svc.PendingRequests(context.Background(), "alice.near")
	assert.ErrorContains(t, err, "list requests")
}
