package domain

import (
	"fmt"
	"strings"
	"time"
)

// MethodKind is the out-of-band channel a verification method is bound to.
type MethodKind string

const (
	MethodEmail MethodKind = "email"
	MethodPhone MethodKind = "phone"
)

// ParseMethodKind accepts the wire spelling of a kind, case-insensitively.
func ParseMethodKind(s string) (MethodKind, error) {
	switch MethodKind(strings.ToLower(strings.TrimSpace(s))) {
	case MethodEmail:
		return MethodEmail, nil
	case MethodPhone:
		return MethodPhone, nil
	}
	return "", fmt.Errorf("unknown verification method kind %q: %w", s, ErrBadRequest)
}

// VerificationMethod binds an out-of-band identity (e-mail or phone) to an account.
// Claimed records never carry a security code.
type VerificationMethod struct {
	IdentityKey       string     `json:"identity_key" dynamodbav:"identity_key"`
	Kind              MethodKind `json:"kind" dynamodbav:"kind"`
	UniqueIdentityKey *string    `json:"unique_identity_key,omitempty" dynamodbav:"unique_identity_key,omitempty"`
	SecurityCode      *string    `json:"-" dynamodbav:"security_code,omitempty"`
	Claimed           bool       `json:"claimed" dynamodbav:"claimed"`
	CreatedAt         time.Time  `json:"created" dynamodbav:"created_at"`
	UpdatedAt         time.Time  `json:"updated" dynamodbav:"updated_at"`
}

// RecoverOutcome is the business result of a recovery attempt.
type RecoverOutcome string

const (
	RecoverCreated        RecoverOutcome = "created"
	RecoverRotated        RecoverOutcome = "rotated"
	RecoverAlreadyClaimed RecoverOutcome = "already_claimed"
	// RecoverConflict means a storage uniqueness constraint rejected the write:
	// another identity owns the canonical key, or a concurrent creator won.
	RecoverConflict RecoverOutcome = "conflict"
)

// Succeeded reports whether a security code is now outstanding for the identity.
func (o RecoverOutcome) Succeeded() bool {
	return o == RecoverCreated || o == RecoverRotated
}

// RecoverIdentityRequest carries no code; the server always generates it.
type RecoverIdentityRequest struct {
	IdentityKey string `json:"identity_key" validate:"required,max=254"`
	Kind        string `json:"kind" validate:"required,methodkind"`
}

type ClaimIdentityRequest struct {
	IdentityKey  string `json:"identity_key" validate:"required,max=254"`
	Kind         string `json:"kind" validate:"required,methodkind"`
	SecurityCode string `json:"security_code" validate:"required,number,len=6"`
}

// IdentityResult is the structured response for recover and claim.
type IdentityResult struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}
