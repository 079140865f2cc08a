package token

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/deleguard/recovery-go/internal/signer"
	"github.com/deleguard/recovery-go/internal/wire"
)

// CountersignedToken is the token a recovery provider returns to an account
// provider during recovery: the original recovery token's issuer and
// audience swapped, re-signed by the recovery provider, and bound to the
// RP-side session that is requesting the recovery.
type CountersignedToken struct {
	RecoveryToken
}

// ExtractIssuer returns the issuer origin of a base64-encoded token without
// performing any other validation, so a caller can look up the right set of
// recovery-provider public keys before calling ParseCountersigned.
func ExtractIssuer(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64", wire.ErrMalformedToken)
	}
	fields, _, _, err := wire.Decode(raw)
	if err != nil {
		return "", err
	}
	return fields.Issuer, nil
}

// ParseCountersigned decodes and fully validates a countersigned recovery
// token, in the fixed order required by the protocol: structural decode,
// version and type, issuer, audience, binding, signature, and finally clock
// skew. Each step fails fast and wraps the sentinel error naming the first
// condition that did not hold, so the order is load-bearing: a token with
// both a forged issuer and an invalid signature must be rejected for the
// issuer, not the signature.
func ParseCountersigned(
	encoded string,
	expectedIssuer string,
	expectedAudience string,
	expectedBinding []byte,
	keys []*ecdsa.PublicKey,
	allowedSkew time.Duration,
) (*CountersignedToken, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64", wire.ErrMalformedToken)
	}
	fields, signingInput, sig, err := wire.Decode(raw)
	if err != nil {
		return nil, err
	}

	if fields.Version != Version {
		return nil, ErrUnsupportedVersion
	}
	if fields.Type != TypeCountersignedToken {
		return nil, ErrUnexpectedType
	}
	if fields.Issuer != expectedIssuer {
		return nil, ErrIssuerMismatch
	}
	if fields.Audience != expectedAudience {
		return nil, ErrAudienceMismatch
	}
	if !bytes.Equal(fields.Binding, expectedBinding) {
		return nil, ErrBindingMismatch
	}

	rt := &RecoveryToken{fields: fields, signature: sig, encoded: encoded}
	if !signer.Verify(signingInput, sig, keys) {
		return nil, ErrSignatureInvalid
	}

	issuedAt, err := time.Parse(issuedTimeLayout, fields.IssuedTime)
	if err != nil {
		return nil, fmt.Errorf("%w: unparsable issuedTime", ErrTokenExpired)
	}
	if skewExceeded(issuedAt, time.Now(), allowedSkew) {
		return nil, ErrTokenExpired
	}

	return &CountersignedToken{RecoveryToken: *rt}, nil
}

// InnerTokenSha256 returns the hex-encoded SHA-256 digest of the original
// recovery token carried in the countersigned token's data field, which an
// account provider compares against the digest it stored at issuance time to
// confirm this countersigned token answers a token it actually issued.
func (c *CountersignedToken) InnerTokenSha256() (string, error) {
	sum := sha256.Sum256(c.Data())
	return hex.EncodeToString(sum[:]), nil
}

func skewExceeded(issuedAt, now time.Time, allowed time.Duration) bool {
	delta := now.Sub(issuedAt)
	if delta < 0 {
		delta = -delta
	}
	return delta > allowed
}
