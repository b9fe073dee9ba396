package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-2fa-confirm/internal/application/confirmation"
	"github.com/go-2fa-confirm/internal/application/delivery"
	"github.com/go-2fa-confirm/internal/application/identity"
	"github.com/go-2fa-confirm/internal/config"
	"github.com/go-2fa-confirm/internal/domain"
	"github.com/go-2fa-confirm/internal/infrastructure/directory"
	jwtinfra "github.com/go-2fa-confirm/internal/infrastructure/jwt"
	"github.com/go-2fa-confirm/internal/infrastructure/keys"
	"github.com/go-2fa-confirm/internal/infrastructure/multisig"
	s3infra "github.com/go-2fa-confirm/internal/infrastructure/s3"
	"github.com/go-2fa-confirm/internal/infrastructure/smtp"
	"github.com/go-2fa-confirm/internal/infrastructure/sns"
	"github.com/go-2fa-confirm/internal/metrics"
	transporthttp "github.com/go-2fa-confirm/internal/transport/http"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)})))

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx := context.Background()

	// Key derivation refuses to start without a usable seed.
	deriver, err := keys.New(cfg.ConfirmationKeySeed)
	if err != nil {
		log.Fatalf("confirmation keys: %v", err)
	}

	st, err := openStores(ctx, cfg)
	if err != nil {
		log.Fatalf("stores: %v", err)
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewRecorder(reg)

	// Delivery channels. SMS is optional: without SNS, phone sends fail as delivery failures.
	channels := map[domain.MethodKind]delivery.Channel{
		domain.MethodEmail: smtp.NewMailer(cfg),
	}
	if sender, err := sns.NewSender(ctx, cfg); err == nil {
		channels[domain.MethodPhone] = sender
	} else {
		slog.Warn("SNS sender not available", "err", err)
	}
	dispatcher := delivery.NewDispatcher(cfg.DeliveryTimeout, channels, rec)

	dir, err := loadDirectory(ctx, cfg, st.methods)
	if err != nil {
		log.Fatalf("account methods: %v", err)
	}
	slog.Info("account methods loaded", "accounts", dir.Len(), "path", cfg.AccountMethodsFile)

	// JWT is optional; without a public key the 2FA routes run unauthenticated.
	var jwtProvider *jwtinfra.Provider
	if cfg.JWTPublicKeyPath != "" {
		if p, err := jwtinfra.NewProvider(cfg); err == nil {
			jwtProvider = p
		} else {
			slog.Warn("JWT provider not available, 2FA routes are unauthenticated", "err", err)
		}
	}

	deps := &transporthttp.Deps{
		Confirmation: confirmation.NewService(confirmation.ServiceDeps{
			Keys:           deriver,
			Codes:          st.codes,
			Methods:        dir,
			Sender:         dispatcher,
			Backend:        multisig.NewClient(cfg.MultisigBackendURL, cfg.MultisigBackendToken, cfg.BackendTimeout),
			Metrics:        rec,
			CodeTTL:        cfg.CodeTTL,
			BackendTimeout: cfg.BackendTimeout,
		}),
		Identity: identity.NewService(identity.ServiceDeps{
			Store:   st.methods,
			Sender:  dispatcher,
			Metrics: rec,
			CodeTTL: cfg.CodeTTL,
		}),
		JWTProvider: jwtProvider,
		Metrics:     rec,
		Readiness:   st.checks,
	}

	router := transporthttp.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.BackendTimeout + cfg.DeliveryTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv,
			"method_store", cfg.MethodStore, "code_store", cfg.CodeStore)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "err", err)
	}
	slog.Info("server stopped")
}

// loadDirectory reads the account-to-method file from disk or, for s3:// locations, from S3.
func loadDirectory(ctx context.Context, cfg *config.Config, methods directory.MethodLookup) (*directory.Directory, error) {
	if !s3infra.IsURL(cfg.AccountMethodsFile) {
		return directory.Load(cfg.AccountMethodsFile, methods)
	}
	client, err := s3infra.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	data, err := s3infra.NewStore(client).ReadURL(ctx, cfg.AccountMethodsFile)
	if err != nil {
		return nil, err
	}
	return directory.Parse(data, methods)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
