package token

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"testing"
)

func genKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func mustID(t *testing.T) [16]byte {
	t.Helper()
	id, err := NewID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	return id
}

func TestNewAndParseRoundTrip(t *testing.T) {
	key := genKey(t)
	id := mustID(t)

	rt, err := New(key, id, StatusRequested, "https://ap.example", "https://rp.example", []byte("opaque"), []byte("binding"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	parsed, err := Parse(rt.Encoded())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Issuer() != "https://ap.example" || parsed.Audience() != "https://rp.example" {
		t.Fatalf("issuer/audience mismatch after round trip")
	}
	if parsed.ID() != id {
		t.Fatalf("id mismatch after round trip")
	}
	if !parsed.IsSignatureValid([]*ecdsa.PublicKey{&key.PublicKey}) {
		t.Fatalf("expected signature to validate")
	}
}

func TestNewRejectsInvalidOrigin(t *testing.T) {
	key := genKey(t)
	id := mustID(t)
	if _, err := New(key, id, NoOptions, "not-an-origin", "https://rp.example", nil, nil); err == nil {
		t.Fatalf("expected error for invalid issuer origin")
	}
	if _, err := New(key, id, NoOptions, "https://ap.example", "not-an-origin", nil, nil); err == nil {
		t.Fatalf("expected error for invalid audience origin")
	}
}

func TestParseRejectsUnsupportedVersion(t *testing.T) {
	key := genKey(t)
	id := mustID(t)
	rt, err := New(key, id, NoOptions, "https://ap.example", "https://rp.example", nil, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(rt.Encoded())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	raw[0] = 0x01
	encoded := base64.StdEncoding.EncodeToString(raw)

	if _, err := Parse(encoded); err == nil {
		t.Fatalf("expected unsupported version error")
	}
}

func TestTamperedTokenFailsSignatureValidation(t *testing.T) {
	key := genKey(t)
	id := mustID(t)
	rt, err := New(key, id, NoOptions, "https://ap.example", "https://rp.example", []byte("data"), nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(rt.Encoded())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	raw[len(raw)-1] ^= 0xFF
	tampered := base64.StdEncoding.EncodeToString(raw)

	parsed, err := Parse(tampered)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.IsSignatureValid([]*ecdsa.PublicKey{&key.PublicKey}) {
		t.Fatalf("expected tampered token to fail signature validation")
	}
}

func TestSha256Deterministic(t *testing.T) {
	key := genKey(t)
	id := mustID(t)
	rt, err := New(key, id, NoOptions, "https://ap.example", "https://rp.example", nil, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	h1, err := rt.Sha256()
	if err != nil {
		t.Fatalf("sha256: %v", err)
	}
	h2, err := rt.Sha256()
	if err != nil {
		t.Fatalf("sha256: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected stable digest, got %s then %s", h1, h2)
	}
}
