package handler

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-2fa-confirm/internal/config"
	"github.com/go-2fa-confirm/internal/domain"
	jwtinfra "github.com/go-2fa-confirm/internal/infrastructure/jwt"
	"github.com/go-2fa-confirm/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockConfirmationSvc struct{ mock.Mock }

func (m *mockConfirmationSvc) ConfirmationKey(accountID string) string {
	return m.Called(accountID).String(0)
}

func (m *mockConfirmationSvc) IssueCode(ctx context.Context, accountID, request string) error {
	return m.Called(ctx, accountID, request).Error(0)
}

func (m *mockConfirmationSvc) VerifyCode(ctx context.Context, accountID, requestID, code string) (domain.VerifyResult, error) {
	args := m.Called(ctx, accountID, requestID, code)
	return args.Get(0).(domain.VerifyResult), args.Error(1)
}

func (m *mockConfirmationSvc) PendingRequests(ctx context.Context, accountID string) ([]domain.MultisigRequest, error) {
	args := m.Called(ctx, accountID)
	if reqs, _ := args.Get(0).([]domain.MultisigRequest); reqs != nil {
		return reqs, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockIdentitySvc struct{ mock.Mock }

func (m *mockIdentitySvc) RecoverIdentity(ctx context.Context, req domain.RecoverIdentityRequest) (domain.IdentityResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.IdentityResult), args.Error(1)
}

func (m *mockIdentitySvc) ClaimIdentity(ctx context.Context, req domain.ClaimIdentityRequest) (domain.IdentityResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.IdentityResult), args.Error(1)
}

func (m *mockIdentitySvc) GetIdentity(ctx context.Context, identityKey string, kind domain.MethodKind) (*domain.VerificationMethod, error) {
	args := m.Called(ctx, identityKey, kind)
	if v, _ := args.Get(0).(*domain.VerificationMethod); v != nil {
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

// --- helpers ---

// newTestJWTProvider generates a fresh RSA key pair and returns a *jwtinfra.Provider.
func newTestJWTProvider(t *testing.T) *jwtinfra.Provider {
	t.Helper()
	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	dir := t.TempDir()
	privPath := filepath.Join(dir, "private.pem")
	pubPath := filepath.Join(dir, "public.pem")

	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privKey)})
	require.NoError(t, os.WriteFile(privPath, privPEM, 0600))

	pubBytes, err := x509.MarshalPKIXPublicKey(&privKey.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	require.NoError(t, os.WriteFile(pubPath, pubPEM, 0600))

	p, err := jwtinfra.NewProvider(&config.Config{
		JWTPrivateKeyPath: privPath,
		JWTPublicKeyPath:  pubPath,
		JWTExpiry:         24 * time.Hour,
	})
	require.NoError(t, err)
	return p
}

func jsonReq(t *testing.T, method, target string, body interface{}) *http.Request {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	return httptest.NewRequest(method, target, bytes.NewReader(b))
}

// bearerReq builds a JSON request carrying a token signed for accountID.
func bearerReq(t *testing.T, p *jwtinfra.Provider, method, target, accountID string, body interface{}) *http.Request {
	t.Helper()
	token, err := p.Sign(accountID)
	require.NoError(t, err)
	r := jsonReq(t, method, target, body)
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}

// serveAuthed wraps the handler with middleware.Auth before serving.
func serveAuthed(p *jwtinfra.Provider, h http.HandlerFunc, w http.ResponseWriter, r *http.Request) {
	middleware.Auth(p)(h).ServeHTTP(w, r)
}

// withChiParams injects chi URL params into the request context.
func withChiParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rr.Body).Decode(dst))
}
