// Package signer implements ECDSA P-256/SHA-256 signing and multi-key
// verification over a caller-supplied canonical byte range, as used to sign
// and verify delegated recovery tokens.
package signer

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
)

// Sign computes SHA-256 over signingInput and returns an ASN.1 DER encoded
// ECDSA signature (SEQUENCE{INTEGER r, INTEGER s}) produced with the given
// P-256 private key.
func Sign(signingInput []byte, key *ecdsa.PrivateKey) ([]byte, error) {
	digest := sha256.Sum256(signingInput)
	sig, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	if err != nil {
		return nil, fmt.Errorf("delegated recovery: sign token: %w", err)
	}
	return sig, nil
}

// Verify reports whether signature verifies against SHA-256 of signingInput
// under at least one of keys, trying them in order and returning true on
// the first match. Malformed DER in signature is treated as a non-match
// rather than a hard error, so a bad signature never masks a later valid
// key in the list.
func Verify(signingInput []byte, signature []byte, keys []*ecdsa.PublicKey) bool {
	digest := sha256.Sum256(signingInput)
	for _, key := range keys {
		if key == nil {
			continue
		}
		if ecdsa.VerifyASN1(key, digest[:], signature) {
			return true
		}
	}
	return false
}
