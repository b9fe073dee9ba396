package config

import (
	"errors"
	"testing"
	"time"

	"github.com/go-2fa-confirm/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		ConfirmationKeySeed: "0123456789abcdef0123456789abcdef",
		CodeTTL:             10 * time.Minute,
		DeliveryTimeout:     time.Second,
		BackendTimeout:      time.Second,
		MultisigBackendURL:  "http://backend.local",
		MethodStore:         "memory",
		CodeStore:           "memory",
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIRMATION_CODE_TTL", "")
	t.Setenv("RATE_LIMIT_BURST", "")
	cfg := Load()
	assert.Equal(t, "3000", cfg.AppPort)
	assert.Equal(t, 10*time.Minute, cfg.CodeTTL)
	assert.Equal(t, 10, cfg.RateLimitBurst)
	assert.Equal(t, "identity_verification_methods", cfg.DynamoTables.VerificationMethods)
}

func TestLoad_ReadsOverrides(t *testing.T) {
	t.Setenv("CONFIRMATION_CODE_TTL", "5m")
	t.Setenv("METHOD_STORE", "dynamo")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	cfg := Load()
	assert.Equal(t, 5*time.Minute, cfg.CodeTTL)
	assert.Equal(t, "dynamo", cfg.MethodStore)
	assert.Equal(t, 2.5, cfg.RateLimitRPS)
}

func TestValidate_OK(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidate_MissingSeed(t *testing.T) {
	cfg := validConfig()
	cfg.ConfirmationKeySeed = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
	assert.ErrorContains(t, err, "CONFIRMATION_KEY_SEED")
}

func TestValidate_PostgresNeedsDSN(t *testing.T) {
	cfg := validConfig()
	cfg.MethodStore = "postgres"
	err := cfg.Validate()
	assert.ErrorContains(t, err, "DATABASE_URL")
}

func TestValidate_SecondsTTLRejected(t *testing.T) {
	cfg := validConfig()
	cfg.CodeTTL = 30 * time.Second
	assert.ErrorIs(t, cfg.Validate(), domain.ErrConfiguration)
}

func TestValidate_UnknownStores(t *testing.T) {
	cfg := validConfig()
	cfg.MethodStore = "mysql"
	cfg.CodeStore = "memcached"
	err := cfg.Validate()
	assert.ErrorContains(t, err, "METHOD_STORE")
	assert.ErrorContains(t, err, "CODE_STORE")
}

func TestLoad_TrustedProxies(t *testing.T) {
	t.Setenv("TRUSTED_PROXIES", " 10.0.0.0/8, ,192.168.1.5 ")
	cfg := Load()
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.1.5"}, cfg.TrustedProxies)

	prefixes, err := cfg.TrustedProxyPrefixes()
	require.NoError(t, err)
	require.Len(t, prefixes, 2)
	assert.Equal(t, "10.0.0.0/8", prefixes[0].String())
	assert.Equal(t, "192.168.1.5/32", prefixes[1].String())
}

func TestLoad_NoTrustedProxiesByDefault(t *testing.T) {
	t.Setenv("TRUSTED_PROXIES", "")
	assert.Empty(t, Load().TrustedProxies)
}

func TestValidate_BadTrustedProxy(t *testing.T) {
	cfg := validConfig()
	cfg.TrustedProxies = []string{"10.0.0.0/8", "not-an-ip"}
	err := cfg.Validate()
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.ErrorContains(t, err, `"not-an-ip"`)
}
