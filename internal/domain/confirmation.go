package domain

import "time"

// PendingConfirmation is the code currently outstanding for an account.
// Only a bcrypt hash of the code is kept. Stores retain a record past
// ExpiresAt so a late verification can still be told the code expired.
type PendingConfirmation struct {
	AccountID string     `json:"account_id" dynamodbav:"account_id"`
	CodeID    string     `json:"code_id" dynamodbav:"code_id"`
	CodeHash  string     `json:"code_hash" dynamodbav:"code_hash"`
	Channel   MethodKind `json:"channel" dynamodbav:"channel"`
	IssuedAt  time.Time  `json:"issued_at" dynamodbav:"issued_at"`
	ExpiresAt int64      `json:"expires_at" dynamodbav:"expires_at"` // Unix seconds
}

// Expired reports whether the validity window has closed at now.
func (p *PendingConfirmation) Expired(now time.Time) bool {
	return now.Unix() >= p.ExpiresAt
}

// DeliveryMethod is where an account's confirmation codes are sent.
type DeliveryMethod struct {
	Kind        MethodKind `json:"kind" yaml:"kind"`
	Destination string     `json:"destination" yaml:"destination"`
}

// Verification failure reasons returned to clients.
const (
	ReasonMismatch       = "mismatch"
	ReasonExpired        = "expired"
	ReasonBackendFailure = "backend_failure"
	ReasonRequestInvalid = "request_invalid"
	ReasonAlreadyClaimed = "already_claimed"
	ReasonConflict       = "conflict"
)

// VerifyResult is the outcome of a code verification.
type VerifyResult struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
	Error   string `json:"error,omitempty"`
}

type ConfirmationKeyRequest struct {
	AccountID string `json:"account_id" validate:"required,max=64"`
}

type IssueCodeRequest struct {
	AccountID string `json:"account_id" validate:"required,max=64"`
	Request   string `json:"request" validate:"required,max=2048"`
}

type VerifyCodeRequest struct {
	AccountID string `json:"account_id" validate:"required,max=64"`
	RequestID string `json:"request_id" validate:"required,number,max=20"`
	Code      string `json:"code" validate:"required,number,len=6"`
}

// PendingRetention is how long stores keep a pending confirmation after it expires.
const PendingRetention = 24 * time.Hour

// PurgeAt is when a store may drop the record.
func (p *PendingConfirmation) PurgeAt() time.Time {
	return time.Unix(p.ExpiresAt, 0).Add(PendingRetention)
}
