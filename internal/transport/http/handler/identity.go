package handler

import (
	"net/http"

	"github.com/go-2fa-confirm/internal/application/identity"
	"github.com/go-2fa-confirm/internal/domain"
	"github.com/go-chi/chi/v5"
)

// IdentityHandler serves identity recovery and claim.
type IdentityHandler struct {
	svc identity.Service
}

func NewIdentityHandler(svc identity.Service) *IdentityHandler {
	return &IdentityHandler{svc: svc}
}

func (h *IdentityHandler) Recover(w http.ResponseWriter, r *http.Request) {
	var req domain.RecoverIdentityRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.RecoverIdentity(r.Context(), req)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *IdentityHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var req domain.ClaimIdentityRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.ClaimIdentity(r.Context(), req)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *IdentityHandler) Get(w http.ResponseWriter, r *http.Request) {
	kind, err := domain.ParseMethodKind(chi.URLParam(r, "kind"))
	if err != nil {
		httpError(w, r, err)
		return
	}
	m, err := h.svc.GetIdentity(r.Context(), chi.URLParam(r, "identityKey"), kind)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, IdentityEnvelope{Method: m})
}
