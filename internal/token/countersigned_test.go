package token

import (
	"crypto/ecdsa"
	"encoding/base64"
	"testing"
	"time"

	"github.com/deleguard/recovery-go/internal/signer"
	"github.com/deleguard/recovery-go/internal/wire"
)

// buildCountersigned signs a raw countersigned-token wire payload directly
// with the given key, bypassing RecoveryToken.New (which only ever produces
// TypeRecoveryToken), so tests can exercise ParseCountersigned in isolation.
func buildCountersigned(t *testing.T, key *ecdsa.PrivateKey, issuer, audience string, binding []byte, issuedTime string) string {
	t.Helper()
	id := mustID(t)
	fields := wire.Fields{
		Version:    Version,
		Type:       TypeCountersignedToken,
		ID:         id,
		Options:    NoOptions,
		Issuer:     issuer,
		Audience:   audience,
		IssuedTime: issuedTime,
		Data:       []byte{},
		Binding:    binding,
	}
	signingInput, err := fields.EncodeSigningInput()
	if err != nil {
		t.Fatalf("encode signing input: %v", err)
	}
	sig, err := signer.Sign(signingInput, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	raw := append(append([]byte(nil), signingInput...), sig...)
	return base64.StdEncoding.EncodeToString(raw)
}

func TestParseCountersignedHappyPath(t *testing.T) {
	key := genKey(t)
	binding := []byte("session-binding")
	encoded := buildCountersigned(t, key, "https://rp.example", "https://ap.example", binding, nowISO8601())

	ct, err := ParseCountersigned(encoded, "https://rp.example", "https://ap.example", binding, []*ecdsa.PublicKey{&key.PublicKey}, 5*time.Minute)
	if err != nil {
		t.Fatalf("expected valid countersigned token, got %v", err)
	}
	if ct.Issuer() != "https://rp.example" {
		t.Fatalf("unexpected issuer: %s", ct.Issuer())
	}
}

func TestParseCountersignedIssuerMismatch(t *testing.T) {
	key := genKey(t)
	binding := []byte("binding")
	encoded := buildCountersigned(t, key, "https://rp.example", "https://ap.example", binding, nowISO8601())

	_, err := ParseCountersigned(encoded, "https://other-rp.example", "https://ap.example", binding, []*ecdsa.PublicKey{&key.PublicKey}, 5*time.Minute)
	if err != ErrIssuerMismatch {
		t.Fatalf("expected ErrIssuerMismatch, got %v", err)
	}
}

func TestParseCountersignedAudienceMismatch(t *testing.T) {
	key := genKey(t)
	binding := []byte("binding")
	encoded := buildCountersigned(t, key, "https://rp.example", "https://ap.example", binding, nowISO8601())

	_, err := ParseCountersigned(encoded, "https://rp.example", "https://other-ap.example", binding, []*ecdsa.PublicKey{&key.PublicKey}, 5*time.Minute)
	if err != ErrAudienceMismatch {
		t.Fatalf("expected ErrAudienceMismatch, got %v", err)
	}
}

func TestParseCountersignedBindingMismatch(t *testing.T) {
	key := genKey(t)
	encoded := buildCountersigned(t, key, "https://rp.example", "https://ap.example", []byte("binding-a"), nowISO8601())

	_, err := ParseCountersigned(encoded, "https://rp.example", "https://ap.example", []byte("binding-b"), []*ecdsa.PublicKey{&key.PublicKey}, 5*time.Minute)
	if err != ErrBindingMismatch {
		t.Fatalf("expected ErrBindingMismatch, got %v", err)
	}
}

func TestParseCountersignedSignatureTamper(t *testing.T) {
	key := genKey(t)
	binding := []byte("binding")
	encoded := buildCountersigned(t, key, "https://rp.example", "https://ap.example", binding, nowISO8601())

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	raw[len(raw)-1] ^= 0xFF
	tampered := base64.StdEncoding.EncodeToString(raw)

	_, err = ParseCountersigned(tampered, "https://rp.example", "https://ap.example", binding, []*ecdsa.PublicKey{&key.PublicKey}, 5*time.Minute)
	if err != ErrSignatureInvalid {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestParseCountersignedMultiKeyRotation(t *testing.T) {
	retired := genKey(t)
	current := genKey(t)
	binding := []byte("binding")
	encoded := buildCountersigned(t, retired, "https://rp.example", "https://ap.example", binding, nowISO8601())

	_, err := ParseCountersigned(encoded, "https://rp.example", "https://ap.example", binding,
		[]*ecdsa.PublicKey{&current.PublicKey, &retired.PublicKey}, 5*time.Minute)
	if err != nil {
		t.Fatalf("expected rotation-tolerant verification to succeed, got %v", err)
	}
}

func TestParseCountersignedExpired(t *testing.T) {
	key := genKey(t)
	binding := []byte("binding")
	stale := time.Now().Add(-1 * time.Hour).UTC().Format(issuedTimeLayout)
	encoded := buildCountersigned(t, key, "https://rp.example", "https://ap.example", binding, stale)

	_, err := ParseCountersigned(encoded, "https://rp.example", "https://ap.example", binding, []*ecdsa.PublicKey{&key.PublicKey}, 5*time.Minute)
	if err != ErrTokenExpired {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestParseCountersignedWithinSkewTolerance(t *testing.T) {
	key := genKey(t)
	binding := []byte("binding")
	near := time.Now().Add(-2 * time.Minute).UTC().Format(issuedTimeLayout)
	encoded := buildCountersigned(t, key, "https://rp.example", "https://ap.example", binding, near)

	_, err := ParseCountersigned(encoded, "https://rp.example", "https://ap.example", binding, []*ecdsa.PublicKey{&key.PublicKey}, 5*time.Minute)
	if err != nil {
		t.Fatalf("expected token within skew tolerance to validate, got %v", err)
	}
}
