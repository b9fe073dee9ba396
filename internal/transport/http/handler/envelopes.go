package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-2fa-confirm/internal/domain"
	"github.com/go-2fa-confirm/internal/pkg/validate"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// ConfirmationKeyEnvelope carries an account's confirmation public key.
type ConfirmationKeyEnvelope struct {
	AccountID string `json:"account_id"`
	PublicKey string `json:"public_key"`
}

// SuccessEnvelope answers operations whose only result is success.
type SuccessEnvelope struct {
	Success bool `json:"success"`
}

// RequestsEnvelope lists the multisig requests waiting on an account.
type RequestsEnvelope struct {
	AccountID string                   `json:"account_id"`
	Requests  []domain.MultisigRequest `json:"requests"`
}

// IdentityEnvelope wraps a verification method lookup.
type IdentityEnvelope struct {
	Method *domain.VerificationMethod `json:"method"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg, ErrorCode: status})
}

// decode reads a JSON body into dst and validates it, writing the failure response itself.
func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return false
	}
	return true
}
