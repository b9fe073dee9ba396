package http

import (
	"net/http"

	"github.com/go-2fa-confirm/internal/config"
	"github.com/go-2fa-confirm/internal/transport/http/handler"
	appmiddleware "github.com/go-2fa-confirm/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(appmiddleware.Metrics(deps.Metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	var authMw func(http.Handler) http.Handler
	if deps.JWTProvider != nil {
		authMw = appmiddleware.Auth(deps.JWTProvider)
	} else {
		authMw = func(next http.Handler) http.Handler { return next }
	}

	// Applied to every endpoint that sends a message or checks a code.
	// Config.Validate has already rejected malformed proxy entries.
	trusted, _ := cfg.TrustedProxyPrefixes()
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst, trusted)

	healthH := handler.NewHealthHandler(deps.Readiness)
	confirmH := handler.NewConfirmationHandler(deps.Confirmation)
	identityH := handler.NewIdentityHandler(deps.Identity)

	r.Handle("/metrics", deps.Metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.Post("/health-check/{action}", healthH.Ping)
		r.With(sensitiveRL.Limit).Post("/identity/recover", identityH.Recover)
		r.With(sensitiveRL.Limit).Post("/identity/claim", identityH.Claim)

		// ── Account-scoped routes ────────────────────────────────────────────
		r.Route("/2fa", func(r chi.Router) {
			r.Use(authMw)

			r.Post("/confirmation-key", confirmH.ConfirmationKey)
			r.With(sensitiveRL.Limit).Post("/send-code", confirmH.SendCode)
			r.With(sensitiveRL.Limit).Post("/verify-code", confirmH.VerifyCode)
			r.With(appmiddleware.RequireAccountParam("accountID")).Get("/requests/{accountID}", confirmH.PendingRequests)
		})

		// Lookups reveal whether an identity is registered, so they always need a token.
		if deps.JWTProvider != nil {
			r.With(authMw).Get("/identity/{kind}/{identityKey}", identityH.Get)
		}
	})

	return r
}
