package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-2fa-confirm/internal/domain"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort  string
	AppEnv   string
	LogLevel string

	// ConfirmationKeySeed is the process-wide secret for key derivation. Never log it.
	ConfirmationKeySeed string
	CodeTTL             time.Duration
	DeliveryTimeout     time.Duration
	BackendTimeout      time.Duration

	MultisigBackendURL   string
	MultisigBackendToken string

	MethodStore string // "postgres" | "dynamo" | "memory"
	CodeStore   string // "dynamo" | "redis" | "memory"
	DatabaseURL string
	RedisURL    string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	SMTPHost     string
	SMTPPort     string
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string
	SNSRegion    string
	SMSSenderID  string

	AccountMethodsFile string
	JWTPublicKeyPath   string
	JWTPrivateKeyPath  string
	JWTExpiry          time.Duration

	AllowedOrigins []string // CORS allowed origins
	RateLimitRPS   float64
	RateLimitBurst int
	// TrustedProxies lists the peers (IPs or CIDRs) whose X-Forwarded-For
	// and X-Real-Ip headers are believed. Empty trusts no one.
	TrustedProxies []string
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	VerificationMethods  string
	PendingConfirmations string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort:  getEnv("APP_PORT", "3000"),
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		ConfirmationKeySeed: os.Getenv("CONFIRMATION_KEY_SEED"),
		CodeTTL:             getEnvDuration("CONFIRMATION_CODE_TTL", 10*time.Minute),
		DeliveryTimeout:     getEnvDuration("DELIVERY_TIMEOUT", 10*time.Second),
		BackendTimeout:      getEnvDuration("BACKEND_TIMEOUT", 15*time.Second),

		MultisigBackendURL:   getEnv("MULTISIG_BACKEND_URL", ""),
		MultisigBackendToken: getEnv("MULTISIG_BACKEND_TOKEN", ""),

		MethodStore: getEnv("METHOD_STORE", "postgres"),
		CodeStore:   getEnv("CODE_STORE", "redis"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379/0"),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			VerificationMethods:  getEnv("DYNAMO_TABLE_VERIFICATION_METHODS", "identity_verification_methods"),
			PendingConfirmations: getEnv("DYNAMO_TABLE_PENDING_CONFIRMATIONS", "pending_confirmations"),
		},

		SMTPHost:     getEnv("SMTP_HOST", "localhost"),
		SMTPPort:     getEnv("SMTP_PORT", "1025"),
		SMTPFrom:     getEnv("SMTP_FROM", "noreply@example.com"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SNSRegion:    getEnv("SNS_REGION", "us-east-1"),
		SMSSenderID:  getEnv("SMS_SENDER_ID", ""),

		AccountMethodsFile: getEnv("ACCOUNT_METHODS_FILE", "./account_methods.yaml"),
		JWTPublicKeyPath:   getEnv("JWT_PUBLIC_KEY_PATH", ""),
		JWTPrivateKeyPath:  getEnv("JWT_PRIVATE_KEY_PATH", ""),
		JWTExpiry:          getEnvDuration("JWT_EXPIRY", 24*time.Hour),

		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 10),
		TrustedProxies: getEnvList("TRUSTED_PROXIES"),
	}
}

// Validate reports settings the process cannot start without.
// Every failure wraps domain.ErrConfiguration.
func (c *Config) Validate() error {
	var errs []error
	if c.ConfirmationKeySeed == "" {
		errs = append(errs, errors.New("CONFIRMATION_KEY_SEED is required"))
	}
	if c.MultisigBackendURL == "" {
		errs = append(errs, errors.New("MULTISIG_BACKEND_URL is required"))
	}
	if c.CodeTTL < time.Minute {
		errs = append(errs, fmt.Errorf("CONFIRMATION_CODE_TTL must be at least 1m, got %s", c.CodeTTL))
	}
	if c.DeliveryTimeout <= 0 || c.BackendTimeout <= 0 {
		errs = append(errs, errors.New("DELIVERY_TIMEOUT and BACKEND_TIMEOUT must be positive"))
	}
	switch c.MethodStore {
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when METHOD_STORE=postgres"))
		}
	case "dynamo", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown METHOD_STORE %q", c.MethodStore))
	}
	switch c.CodeStore {
	case "dynamo", "redis", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown CODE_STORE %q", c.CodeStore))
	}
	if _, err := c.TrustedProxyPrefixes(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", domain.ErrConfiguration, errors.Join(errs...))
}

// TrustedProxyPrefixes parses TrustedProxies. A bare address becomes a
// single-host prefix. Invalid entries are reported and left out.
func (c *Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	var (
		out  []netip.Prefix
		errs []error
	)
	for _, raw := range c.TrustedProxies {
		if p, err := netip.ParsePrefix(raw); err == nil {
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("TRUSTED_PROXIES: invalid entry %q", raw))
			continue
		}
		out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return out, errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvList splits a comma-separated variable, dropping blank items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
