package http

import (
	"github.com/go-2fa-confirm/internal/application/confirmation"
	"github.com/go-2fa-confirm/internal/application/identity"
	jwtinfra "github.com/go-2fa-confirm/internal/infrastructure/jwt"
	"github.com/go-2fa-confirm/internal/metrics"
	"github.com/go-2fa-confirm/internal/transport/http/handler"
)

// Deps holds the services and infrastructure the router needs.
type Deps struct {
	Confirmation confirmation.Service
	Identity     identity.Service
	// JWTProvider is optional; without it the 2FA routes are unauthenticated.
	JWTProvider *jwtinfra.Provider
	Metrics     *metrics.Recorder
	// Readiness names the checks behind /health-check/ready.
	Readiness map[string]handler.Check
}
