// Package authz issues and validates the bearer JWTs that gate the
// recovery service's operator-facing admin endpoints. This is a separate
// key and token namespace from the account provider's P-256 recovery-token
// signing key (internal/signer) and must never be confused with it.
package authz

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/mr-tron/base58"
)

// Audience is the fixed expected "aud" claim of an admin bearer token.
const Audience = "recoveryd-admin"

// defaultTTL is how long an issued admin token remains valid.
const defaultTTL = 15 * time.Minute

// ErrInvalidToken wraps any reason a presented bearer token was rejected.
var ErrInvalidToken = errors.New("delegated recovery: invalid admin token")

// Authority issues and validates admin bearer tokens using a single
// Ed25519 key pair loaded from process configuration.
type Authority struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
	kid     string
	issuer  string
}

// NewAuthority derives an Authority from a 32-byte or 64-byte Ed25519 seed
// or private key, as loaded from RECOVERY_JWT_ADMIN_SIGNING_KEY.
func NewAuthority(key []byte, issuer string) (*Authority, error) {
	var priv ed25519.PrivateKey
	switch len(key) {
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(key)
	case ed25519.PrivateKeySize:
		priv = ed25519.PrivateKey(key)
	default:
		return nil, fmt.Errorf("delegated recovery: admin signing key must be %d or %d bytes, got %d",
			ed25519.SeedSize, ed25519.PrivateKeySize, len(key))
	}
	pub := priv.Public().(ed25519.PublicKey)
	return &Authority{
		private: priv,
		public:  pub,
		kid:     "z" + base58.Encode(pub),
		issuer:  issuer,
	}, nil
}

// Issue mints an admin bearer token for subject, valid for defaultTTL.
func (a *Authority) Issue(subject string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"iss": a.issuer,
		"sub": subject,
		"aud": Audience,
		"iat": now.Unix(),
		"exp": now.Add(defaultTTL).Unix(),
		"jti": uuid.NewString(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	token.Header["kid"] = a.kid
	signed, err := token.SignedString(a.private)
	if err != nil {
		return "", fmt.Errorf("delegated recovery: sign admin token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies tokenString with fail-closed semantics: it
// checks alg, kid, iss, aud, iat, exp, and jti, and returns the subject
// claim on success.
func (a *Authority) Validate(tokenString string) (subject string, err error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodEdDSA {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		kid, ok := token.Header["kid"].(string)
		if !ok || kid != a.kid {
			return nil, fmt.Errorf("unknown kid")
		}
		return a.public, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("%w: unparsable claims", ErrInvalidToken)
	}

	iss, ok := claims["iss"].(string)
	if !ok || iss == "" || iss != a.issuer {
		return "", fmt.Errorf("%w: iss mismatch", ErrInvalidToken)
	}

	aud, ok := claims["aud"].(string)
	if !ok || aud != Audience {
		return "", fmt.Errorf("%w: aud mismatch", ErrInvalidToken)
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("%w: missing sub", ErrInvalidToken)
	}

	iat, ok := claims["iat"].(float64)
	if !ok || iat == 0 {
		return "", fmt.Errorf("%w: missing iat", ErrInvalidToken)
	}
	if time.Unix(int64(iat), 0).After(time.Now().Add(5 * time.Minute)) {
		return "", fmt.Errorf("%w: issued in the future", ErrInvalidToken)
	}

	exp, ok := claims["exp"].(float64)
	if !ok || exp == 0 {
		return "", fmt.Errorf("%w: missing exp", ErrInvalidToken)
	}
	if time.Unix(int64(exp), 0).Before(time.Now()) {
		return "", fmt.Errorf("%w: expired", ErrInvalidToken)
	}

	jti, ok := claims["jti"].(string)
	if !ok || jti == "" {
		return "", fmt.Errorf("%w: missing jti", ErrInvalidToken)
	}

	return sub, nil
}

// KeyID returns the "z"-prefixed multibase fingerprint of the authority's
// public key, as stamped into issued tokens' kid header.
func (a *Authority) KeyID() string { return a.kid }
