package signer

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
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

func TestSignVerify(t *testing.T) {
	key := genKey(t)
	msg := []byte("canonical signing input")
	sig, err := Sign(msg, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !Verify(msg, sig, []*ecdsa.PublicKey{&key.PublicKey}) {
		t.Fatalf("expected signature to verify")
	}
}

func TestTamperDetection(t *testing.T) {
	key := genKey(t)
	msg := []byte("canonical signing input")
	sig, err := Sign(msg, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	for i := range msg {
		tampered := append([]byte(nil), msg...)
		tampered[i] ^= 0x01
		if Verify(tampered, sig, []*ecdsa.PublicKey{&key.PublicKey}) {
			t.Fatalf("expected tampered message at byte %d to fail verification", i)
		}
	}
}

func TestMultiKeyAcceptance(t *testing.T) {
	keyA := genKey(t)
	keyB := genKey(t)
	keyC := genKey(t)
	msg := []byte("token bytes")
	sig, err := Sign(msg, keyA)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if !Verify(msg, sig, []*ecdsa.PublicKey{&keyA.PublicKey, &keyB.PublicKey}) {
		t.Fatalf("expected verify to succeed with signing key present")
	}
	if Verify(msg, sig, []*ecdsa.PublicKey{&keyB.PublicKey, &keyC.PublicKey}) {
		t.Fatalf("expected verify to fail without signing key present")
	}
}

func TestMalformedSignatureIsNonMatchNotPanic(t *testing.T) {
	key := genKey(t)
	msg := []byte("token bytes")
	garbage := []byte{0x01, 0x02, 0x03}
	if Verify(msg, garbage, []*ecdsa.PublicKey{&key.PublicKey}) {
		t.Fatalf("expected malformed DER to fail verification")
	}
}
