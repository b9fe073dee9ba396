package domain

import "encoding/json"

// MultisigAction is one action inside a multisig request, kept opaque beyond its type.
type MultisigAction struct {
	Type   string          `json:"type"`
	Params json.RawMessage `json:"params,omitempty"`
}

// MultisigRequest is the backend's view of a pending multi-action request.
type MultisigRequest struct {
	RequestID     uint64           `json:"request_id"`
	ReceiverID    string           `json:"receiver_id"`
	Actions       []MultisigAction `json:"actions"`
	Confirmations []string         `json:"confirmations,omitempty"`
}
