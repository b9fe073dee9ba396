// Package keys derives the per-account confirmation keypair from a
// process-wide secret seed. Nothing derived here is ever persisted.
package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/go-2fa-confirm/internal/domain"
	"github.com/mr-tron/base58"
)

// MinSeedLength is the shortest seed New accepts, in bytes.
const MinSeedLength = 32

const publicKeyPrefix = "ed25519:"

// KeyPair is a derived ed25519 keypair.
type KeyPair struct {
	PublicKey ed25519.PublicKey
	SecretKey ed25519.PrivateKey
}

// EncodedPublicKey returns the key as "ed25519:<base58>".
func (k KeyPair) EncodedPublicKey() string {
	return EncodePublicKey(k.PublicKey)
}

// String prints only the public half.
func (k KeyPair) String() string { return "KeyPair{" + k.EncodedPublicKey() + "}" }

// GoString keeps %#v from dumping the secret.
func (k KeyPair) GoString() string { return k.String() }

// Deriver maps account ids to keypairs. The seed is read-only after New.
type Deriver struct {
	seed []byte
}

// New validates the seed once. A missing or short seed is a configuration
// fault and must stop the process from starting.
func New(seed string) (*Deriver, error) {
	if len(seed) < MinSeedLength {
		return nil, fmt.Errorf("confirmation key seed must be at least %d bytes: %w", MinSeedLength, domain.ErrConfiguration)
	}
	return &Deriver{seed: []byte(seed)}, nil
}

// Derive computes sha256(accountID || seed) and uses it as the ed25519 seed.
func (d *Deriver) Derive(accountID string) KeyPair {
	h := sha256.New()
	h.Write([]byte(accountID))
	h.Write(d.seed)
	priv := ed25519.NewKeyFromSeed(h.Sum(nil))
	return KeyPair{
		PublicKey: priv.Public().(ed25519.PublicKey),
		SecretKey: priv,
	}
}

// PublicKey returns the encoded public key for accountID.
func (d *Deriver) PublicKey(accountID string) string {
	return d.Derive(accountID).EncodedPublicKey()
}

func (d *Deriver) String() string   { return "keys.Deriver{seed:REDACTED}" }
func (d *Deriver) GoString() string { return d.String() }

// EncodePublicKey formats a public key the way the backend expects it.
func EncodePublicKey(pub ed25519.PublicKey) string {
	return publicKeyPrefix + base58.Encode(pub)
}

// DecodePublicKey parses the "ed25519:<base58>" form.
func DecodePublicKey(s string) (ed25519.PublicKey, error) {
	raw, ok := strings.CutPrefix(s, publicKeyPrefix)
	if !ok {
		return nil, fmt.Errorf("public key missing %q prefix: %w", publicKeyPrefix, domain.ErrBadRequest)
	}
	b, err := base58.Decode(raw)
	if err != nil || len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("malformed public key: %w", domain.ErrBadRequest)
	}
	return ed25519.PublicKey(b), nil
}
