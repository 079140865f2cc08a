package config

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/deleguard/recovery-go/internal/keycodec"
)

func genPubkeyB64(t *testing.T) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	b64, err := keycodec.EncodeBase64PublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return b64
}

func TestParseAccountProviderRoundTrip(t *testing.T) {
	pub := genPubkeyB64(t)
	body := []byte(`{
		"issuer": "https://AP.Example",
		"save-token-return": "https://ap.example/save-return",
		"recover-account-return": "https://ap.example/recover-return",
		"privacy-policy": "https://ap.example/privacy",
		"tokensign-pubkeys-secp256r1": ["` + pub + `"]
	}`)

	fetchedAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg, err := ParseAccountProvider(body, fetchedAt, 30*time.Minute)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Issuer != "https://ap.example" {
		t.Fatalf("expected lower-cased issuer, got %s", cfg.Issuer)
	}
	if cfg.SigningKey() == nil {
		t.Fatalf("expected a signing key")
	}
	if !cfg.ExpiresAt.Equal(fetchedAt.Add(30 * time.Minute)) {
		t.Fatalf("unexpected expiry: %v", cfg.ExpiresAt)
	}
	if cfg.IsExpired(fetchedAt.Add(time.Hour)) != true {
		t.Fatalf("expected config to be expired an hour later")
	}
}

func TestParseAccountProviderMissingField(t *testing.T) {
	body := []byte(`{"issuer": "https://ap.example"}`)
	if _, err := ParseAccountProvider(body, time.Now(), time.Hour); err == nil {
		t.Fatalf("expected missing-field error")
	}
}

func TestParseAccountProviderRejectsBadOrigin(t *testing.T) {
	pub := genPubkeyB64(t)
	body := []byte(`{
		"issuer": "not-an-origin",
		"save-token-return": "https://ap.example/save-return",
		"recover-account-return": "https://ap.example/recover-return",
		"privacy-policy": "https://ap.example/privacy",
		"tokensign-pubkeys-secp256r1": ["` + pub + `"]
	}`)
	if _, err := ParseAccountProvider(body, time.Now(), time.Hour); err == nil {
		t.Fatalf("expected origin validation error")
	}
}

func TestParseRecoveryProviderOptionalIframe(t *testing.T) {
	pub := genPubkeyB64(t)
	body := []byte(`{
		"issuer": "https://rp.example",
		"save-token": "https://rp.example/save",
		"recover-account": "https://rp.example/recover",
		"privacy-policy": "https://rp.example/privacy",
		"tokenMaxSize": 8192,
		"countersign-pubkeys-secp256r1": ["` + pub + `"]
	}`)
	cfg, err := ParseRecoveryProvider(body, time.Now(), time.Hour)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.SaveTokenAsyncAPIIframe != nil {
		t.Fatalf("expected nil iframe field when absent from JSON")
	}
	if cfg.TokenMaxSize != 8192 {
		t.Fatalf("unexpected tokenMaxSize: %d", cfg.TokenMaxSize)
	}
}

func TestMarshalAccountProviderRoundTrip(t *testing.T) {
	pub := genPubkeyB64(t)
	body := []byte(`{
		"issuer": "https://ap.example",
		"save-token-return": "https://ap.example/save-return",
		"recover-account-return": "https://ap.example/recover-return",
		"privacy-policy": "https://ap.example/privacy",
		"tokensign-pubkeys-secp256r1": ["` + pub + `"]
	}`)
	cfg, err := ParseAccountProvider(body, time.Now(), time.Hour)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	marshaled, err := MarshalAccountProvider(cfg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	reparsed, err := ParseAccountProvider(marshaled, time.Now(), time.Hour)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if reparsed.Issuer != cfg.Issuer || reparsed.SaveTokenReturn != cfg.SaveTokenReturn {
		t.Fatalf("round trip through marshal changed fields")
	}
}
