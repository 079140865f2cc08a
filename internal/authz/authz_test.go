package authz

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func genSeed(t *testing.T) []byte {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return priv.Seed()
}

func TestIssueAndValidateRoundTrip(t *testing.T) {
	a, err := NewAuthority(genSeed(t), "recoveryd")
	if err != nil {
		t.Fatalf("new authority: %v", err)
	}
	token, err := a.Issue("operator-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	sub, err := a.Validate(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if sub != "operator-1" {
		t.Fatalf("unexpected subject: %s", sub)
	}
}

func TestValidateRejectsWrongAuthority(t *testing.T) {
	a1, err := NewAuthority(genSeed(t), "recoveryd")
	if err != nil {
		t.Fatalf("new authority: %v", err)
	}
	a2, err := NewAuthority(genSeed(t), "recoveryd")
	if err != nil {
		t.Fatalf("new authority: %v", err)
	}
	token, err := a1.Issue("operator-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := a2.Validate(token); err == nil {
		t.Fatalf("expected validation against a different authority's key to fail")
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	a, err := NewAuthority(genSeed(t), "recoveryd")
	if err != nil {
		t.Fatalf("new authority: %v", err)
	}
	now := time.Now().Add(-time.Hour)
	claims := jwt.MapClaims{
		"iss": a.issuer,
		"sub": "operator-1",
		"aud": Audience,
		"iat": now.Unix(),
		"exp": now.Add(time.Minute).Unix(),
		"jti": "fixed-jti",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	token.Header["kid"] = a.kid
	signed, err := token.SignedString(a.private)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := a.Validate(signed); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestValidateRejectsWrongAudience(t *testing.T) {
	a, err := NewAuthority(genSeed(t), "recoveryd")
	if err != nil {
		t.Fatalf("new authority: %v", err)
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": a.issuer,
		"sub": "operator-1",
		"aud": "some-other-audience",
		"iat": now.Unix(),
		"exp": now.Add(time.Minute).Unix(),
		"jti": "fixed-jti",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	token.Header["kid"] = a.kid
	signed, err := token.SignedString(a.private)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := a.Validate(signed); err == nil {
		t.Fatalf("expected wrong-audience token to be rejected")
	}
}

func TestNewAuthorityRejectsBadKeyLength(t *testing.T) {
	if _, err := NewAuthority([]byte{1, 2, 3}, "recoveryd"); err == nil {
		t.Fatalf("expected error for short key material")
	}
}
