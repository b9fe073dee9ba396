package handler

import (
	"net/http"

	"github.com/go-2fa-confirm/internal/application/confirmation"
	"github.com/go-2fa-confirm/internal/domain"
	"github.com/go-2fa-confirm/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
)

// ConfirmationHandler serves the two-factor confirmation endpoints.
type ConfirmationHandler struct {
	svc confirmation.Service
}

func NewConfirmationHandler(svc confirmation.Service) *ConfirmationHandler {
	return &ConfirmationHandler{svc: svc}
}

func (h *ConfirmationHandler) ConfirmationKey(w http.ResponseWriter, r *http.Request) {
	var req domain.ConfirmationKeyRequest
	if !decode(w, r, &req) {
		return
	}
	if !middleware.AccountAllowed(r.Context(), req.AccountID) {
		forbidden(w)
		return
	}
	writeJSON(w, http.StatusOK, ConfirmationKeyEnvelope{
		AccountID: req.AccountID,
		PublicKey: h.svc.ConfirmationKey(req.AccountID),
	})
}

func (h *ConfirmationHandler) SendCode(w http.ResponseWriter, r *http.Request) {
	var req domain.IssueCodeRequest
	if !decode(w, r, &req) {
		return
	}
	if !middleware.AccountAllowed(r.Context(), req.AccountID) {
		forbidden(w)
		return
	}
	if err := h.svc.IssueCode(r.Context(), req.AccountID, req.Request); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessEnvelope{Success: true})
}

// VerifyCode answers 200 for every verification outcome; failures carry a reason.
func (h *ConfirmationHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyCodeRequest
	if !decode(w, r, &req) {
		return
	}
	if !middleware.AccountAllowed(r.Context(), req.AccountID) {
		forbidden(w)
		return
	}
	res, err := h.svc.VerifyCode(r.Context(), req.AccountID, req.RequestID, req.Code)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *ConfirmationHandler) PendingRequests(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	reqs, err := h.svc.PendingRequests(r.Context(), accountID)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RequestsEnvelope{AccountID: accountID, Requests: reqs})
}
