package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// AccountAllowed reports whether the caller may act for accountID.
// Requests without claims pass: authentication is off for the route.
func AccountAllowed(ctx context.Context, accountID string) bool {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return true
	}
	return claims.AccountID == accountID
}

// RequireAccountParam rejects requests whose token was issued for a different
// account than the one named by the URL parameter.
func RequireAccountParam(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !AccountAllowed(r.Context(), chi.URLParam(r, param)) {
				writeJSONError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
