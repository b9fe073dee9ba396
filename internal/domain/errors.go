package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("bad request")

	ErrAlreadyClaimed  = errors.New("identity already claimed")
	ErrCodeMismatch    = errors.New("security code mismatch")
	ErrCodeExpired     = errors.New("security code expired")
	ErrDeliveryFailure = errors.New("message delivery failed")
	ErrBackendFailure  = errors.New("multisig backend failure")
	// ErrRequestInvalid is terminal for the request: the backend reports it as unknown or expired.
	ErrRequestInvalid = errors.New("multisig request invalid or expired")
	ErrConfiguration  = errors.New("configuration fault")
)
