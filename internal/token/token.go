// Package token implements the recovery token and countersigned recovery
// token types of the delegated account recovery protocol: construction,
// signing, base64 encoding, parsing, and multi-key signature verification.
package token

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/deleguard/recovery-go/internal/origin"
	"github.com/deleguard/recovery-go/internal/signer"
	"github.com/deleguard/recovery-go/internal/wire"
)

// Options bit flags for the token options field.
const (
	NoOptions            byte = 0x00
	StatusRequested      byte = 0x01
	LowFrictionRequested byte = 0x02
)

// Version and type byte values.
const (
	Version                byte = 0x00
	TypeRecoveryToken      byte = 0x00
	TypeCountersignedToken byte = 0x01
)

// issuedTimeLayout is the ISO-8601 layout used for the issuedTime field:
// second precision with a numeric time zone designator, e.g.
// "2017-01-31T15:04:05+00:00".
const issuedTimeLayout = "2006-01-02T15:04:05Z07:00"

// RecoveryToken is a signed opaque artifact an account provider gives a
// recovery provider to hold on a user's behalf. CountersignedToken embeds
// this type, since the wire format and most fields are shared.
type RecoveryToken struct {
	fields    wire.Fields
	signature []byte
	encoded   string
}

// New constructs and signs a RecoveryToken. id must be exactly 16 bytes of
// caller-supplied entropy; issuer and audience must be valid RFC-6454
// origins; data and binding may be nil (treated as empty).
func New(key *ecdsa.PrivateKey, id [16]byte, options byte, issuer, audience string, data, binding []byte) (*RecoveryToken, error) {
	if err := origin.Validate(issuer); err != nil {
		return nil, fmt.Errorf("issuer: %w", err)
	}
	if err := origin.Validate(audience); err != nil {
		return nil, fmt.Errorf("audience: %w", err)
	}

	fields := wire.Fields{
		Version:    Version,
		Type:       TypeRecoveryToken,
		ID:         id,
		Options:    options,
		Issuer:     issuer,
		Audience:   audience,
		IssuedTime: nowISO8601(),
		Data:       cloneOrEmpty(data),
		Binding:    cloneOrEmpty(binding),
	}

	signingInput, err := fields.EncodeSigningInput()
	if err != nil {
		return nil, err
	}
	sig, err := signer.Sign(signingInput, key)
	if err != nil {
		return nil, err
	}

	raw := append(append([]byte(nil), signingInput...), sig...)
	return &RecoveryToken{
		fields:    fields,
		signature: sig,
		encoded:   base64.StdEncoding.EncodeToString(raw),
	}, nil
}

// NewID generates a fresh 16-byte token id from a cryptographically secure
// random source.
func NewID() ([16]byte, error) {
	var id [16]byte
	if _, err := rand.Read(id[:]); err != nil {
		return id, fmt.Errorf("delegated recovery: generate token id: %w", err)
	}
	return id, nil
}

// Parse decodes a base64-encoded token without verifying its signature or
// checking issuer/audience/binding/expiry. It enforces only the structural
// invariants of the wire format plus a valid version and origin-shaped
// issuer/audience. Use ParseCountersigned for full validation of a
// countersigned token returned via a recovery provider.
func Parse(encoded string) (*RecoveryToken, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64", wire.ErrMalformedToken)
	}
	fields, _, sig, err := wire.Decode(raw)
	if err != nil {
		return nil, err
	}
	if fields.Version != Version {
		return nil, ErrUnsupportedVersion
	}
	if err := origin.Validate(fields.Issuer); err != nil {
		return nil, fmt.Errorf("issuer: %w", err)
	}
	if err := origin.Validate(fields.Audience); err != nil {
		return nil, fmt.Errorf("audience: %w", err)
	}
	return &RecoveryToken{fields: fields, signature: sig, encoded: encoded}, nil
}

// IsSignatureValid reports whether the token's signature verifies under at
// least one of keys.
func (t *RecoveryToken) IsSignatureValid(keys []*ecdsa.PublicKey) bool {
	signingInput, err := t.fields.EncodeSigningInput()
	if err != nil {
		return false
	}
	return signer.Verify(signingInput, t.signature, keys)
}

// Encoded returns the base64-encoded wire representation of the token.
func (t *RecoveryToken) Encoded() string { return t.encoded }

// Version returns the token's version byte.
func (t *RecoveryToken) Version() byte { return t.fields.Version }

// Type returns the token's type byte.
func (t *RecoveryToken) Type() byte { return t.fields.Type }

// ID returns the token's 16-byte id.
func (t *RecoveryToken) ID() [16]byte { return t.fields.ID }

// IDHex returns the token's id hex-encoded, as used in token record
// identifiers and the token-status callback.
func (t *RecoveryToken) IDHex() string { return hex.EncodeToString(t.fields.ID[:]) }

// Options returns the token's options bit field.
func (t *RecoveryToken) Options() byte { return t.fields.Options }

// Issuer returns the token's issuer origin.
func (t *RecoveryToken) Issuer() string { return t.fields.Issuer }

// Audience returns the token's audience origin.
func (t *RecoveryToken) Audience() string { return t.fields.Audience }

// IssuedTime returns the token's issuedTime field, still in its ISO-8601
// string form.
func (t *RecoveryToken) IssuedTime() string { return t.fields.IssuedTime }

// IssuedAt parses IssuedTime into an instant.
func (t *RecoveryToken) IssuedAt() (time.Time, error) {
	return time.Parse(issuedTimeLayout, t.fields.IssuedTime)
}

// Data returns a copy of the token's opaque data field.
func (t *RecoveryToken) Data() []byte { return cloneOrEmpty(t.fields.Data) }

// Binding returns a copy of the token's binding field.
func (t *RecoveryToken) Binding() []byte { return cloneOrEmpty(t.fields.Binding) }

// Signature returns a copy of the token's raw DER signature bytes.
func (t *RecoveryToken) Signature() []byte { return cloneOrEmpty(t.signature) }

// Sha256 returns the hex-encoded SHA-256 digest of the token's full decoded
// wire bytes, used by an account provider to re-identify a stored token
// record from a later countersigned token's inner data.
func (t *RecoveryToken) Sha256() (string, error) {
	raw, err := base64.StdEncoding.DecodeString(t.encoded)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

func nowISO8601() string {
	return time.Now().UTC().Format(issuedTimeLayout)
}

func cloneOrEmpty(b []byte) []byte {
	if len(b) == 0 {
		return []byte{}
	}
	return append([]byte(nil), b...)
}
