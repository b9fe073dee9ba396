package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-2fa-confirm/internal/domain"
)

// httpError maps a service error to a status code. Bodies for server-side
// failures carry only the sentinel text; details stay in the log.
func httpError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrAlreadyClaimed):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrDeliveryFailure):
		slog.Warn("delivery failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusBadGateway, domain.ErrDeliveryFailure.Error())
	case errors.Is(err, domain.ErrBackendFailure), errors.Is(err, domain.ErrRequestInvalid):
		slog.Warn("backend call failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusBadGateway, domain.ErrBackendFailure.Error())
	case errors.Is(err, domain.ErrConfiguration), errors.Is(err, context.DeadlineExceeded):
		slog.Error("service unavailable", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	default:
		slog.Error("unhandled error", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func forbidden(w http.ResponseWriter) {
	writeError(w, http.StatusForbidden, "token does not match account")
}
