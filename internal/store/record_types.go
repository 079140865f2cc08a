// Package store provides interfaces and implementations for persistent
// storage of token records, AP signing keys, and idempotent API responses.
package store

import "time"

// Token record lifecycle states.
const (
	StatusProvisional = "provisional"
	StatusConfirmed   = "confirmed"
	StatusInvalid     = "invalid"
)

// TokenRecord is the account provider's durable record of a recovery token
// it issued: enough to recognize a later countersigned token answering it
// and to track what the recovery provider last reported about its fate.
type TokenRecord struct {
	ID        string // hex-encoded 16-byte token id
	Issuer    string // AP origin that issued the token
	Username  string // AP-local account the token was issued for
	Hash      string // hex SHA-256 of the token's decoded wire bytes
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SigningKey is one P-256 key in an account provider's token-signing key
// rotation. ActivatedAt/RetiredAt/ExpiresAt model an overlap window: a
// retired key remains valid for signature verification until it expires, so
// tokens signed just before a rotation still validate.
type SigningKey struct {
	ID          string
	PrivateKey  []byte // PEM-encoded SEC1 EC private key
	PublicKey   []byte // PEM-encoded SubjectPublicKeyInfo
	CreatedAt   time.Time
	ActivatedAt time.Time
	RetiredAt   time.Time // zero value means not retired
	ExpiresAt   time.Time
}
