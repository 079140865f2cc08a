package config

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestFetchAccountProviderAppliesMaxAge(t *testing.T) {
	pub := genPubkeyB64(t)
	body := `{
		"issuer": "REPLACED",
		"save-token-return": "REPLACED/save-return",
		"recover-account-return": "REPLACED/recover-return",
		"privacy-policy": "REPLACED/privacy",
		"tokensign-pubkeys-secp256r1": ["` + pub + `"]
	}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != WellKnownPath {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Cache-Control", "max-age=120")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(replaceOrigin(body, "https://"+r.Host)))
	}))
	defer srv.Close()

	fetcher := NewFetcher(srv.Client())
	cfg, err := fetcher.FetchAccountProvider(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	wantExpiry := cfg.ExpiresAt
	if wantExpiry.Sub(time.Now()) > 121*time.Second || wantExpiry.Sub(time.Now()) < 115*time.Second {
		t.Fatalf("expected ~120s max-age, got expiry %v from now", time.Until(wantExpiry))
	}
}

func TestFetchAccountProviderDefaultsMaxAge(t *testing.T) {
	pub := genPubkeyB64(t)
	body := `{
		"issuer": "REPLACED",
		"save-token-return": "REPLACED/save-return",
		"recover-account-return": "REPLACED/recover-return",
		"privacy-policy": "REPLACED/privacy",
		"tokensign-pubkeys-secp256r1": ["` + pub + `"]
	}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(replaceOrigin(body, "https://ap.example")))
	}))
	defer srv.Close()

	fetcher := NewFetcher(srv.Client())
	cfg, err := fetcher.FetchAccountProvider(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if time.Until(cfg.ExpiresAt) < 59*time.Minute {
		t.Fatalf("expected default one-hour max-age, got expiry %v from now", time.Until(cfg.ExpiresAt))
	}
}

func TestFetchAccountProviderNon2xxFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	fetcher := NewFetcher(srv.Client())
	if _, err := fetcher.FetchAccountProvider(context.Background(), srv.URL); err == nil {
		t.Fatalf("expected error for 500 response")
	}
}

func TestFetchAccountProviderMalformedBodyFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	fetcher := NewFetcher(srv.Client())
	if _, err := fetcher.FetchAccountProvider(context.Background(), srv.URL); err == nil {
		t.Fatalf("expected error for malformed JSON body")
	}
}

func replaceOrigin(body, origin string) string {
	return strings.ReplaceAll(body, "REPLACED", origin)
}
