package config

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ConfigFetchError wraps any failure encountered while retrieving or
// validating a provider's configuration document: a transport error, a
// non-2xx status, a non-JSON body, or a failed origin check.
type ConfigFetchError struct {
	Origin string
	Reason string
	Err    error
}

func (e *ConfigFetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("delegated recovery: fetch configuration from %s: %s: %v", e.Origin, e.Reason, e.Err)
	}
	return fmt.Sprintf("delegated recovery: fetch configuration from %s: %s", e.Origin, e.Reason)
}

func (e *ConfigFetchError) Unwrap() error { return e.Err }

// Fetcher retrieves provider configuration documents over HTTPS. The zero
// value is not usable; construct with NewFetcher.
type Fetcher struct {
	client *http.Client
}

// NewFetcher builds a Fetcher using client, or http.DefaultClient if client
// is nil.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{client: client}
}

// FetchAccountProvider retrieves and parses the AP configuration document
// published at providerOrigin's well-known endpoint.
func (f *Fetcher) FetchAccountProvider(ctx context.Context, providerOrigin string) (*AccountProvider, error) {
	body, fetchedAt, maxAge, err := f.fetch(ctx, providerOrigin)
	if err != nil {
		return nil, err
	}
	cfg, err := ParseAccountProvider(body, fetchedAt, maxAge)
	if err != nil {
		return nil, &ConfigFetchError{Origin: providerOrigin, Reason: "parse configuration body", Err: err}
	}
	return cfg, nil
}

// FetchRecoveryProvider retrieves and parses the RP configuration document
// published at providerOrigin's well-known endpoint.
func (f *Fetcher) FetchRecoveryProvider(ctx context.Context, providerOrigin string) (*RecoveryProvider, error) {
	body, fetchedAt, maxAge, err := f.fetch(ctx, providerOrigin)
	if err != nil {
		return nil, err
	}
	cfg, err := ParseRecoveryProvider(body, fetchedAt, maxAge)
	if err != nil {
		return nil, &ConfigFetchError{Origin: providerOrigin, Reason: "parse configuration body", Err: err}
	}
	return cfg, nil
}

func (f *Fetcher) fetch(ctx context.Context, providerOrigin string) ([]byte, time.Time, time.Duration, error) {
	url := providerOrigin + WellKnownPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, time.Time{}, 0, &ConfigFetchError{Origin: providerOrigin, Reason: "build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, time.Time{}, 0, &ConfigFetchError{Origin: providerOrigin, Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	fetchedAt := time.Now().UTC()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, time.Time{}, 0, &ConfigFetchError{
			Origin: providerOrigin,
			Reason: fmt.Sprintf("unexpected status %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, time.Time{}, 0, &ConfigFetchError{Origin: providerOrigin, Reason: "read body", Err: err}
	}

	maxAge := maxAgeFromHeader(resp.Header.Get("Cache-Control"))
	return body, fetchedAt, maxAge, nil
}

// maxAgeFromHeader extracts the max-age directive from a Cache-Control
// header value, falling back to DefaultMaxAge when absent or unparsable.
func maxAgeFromHeader(cacheControl string) time.Duration {
	for _, directive := range strings.Split(cacheControl, ",") {
		directive = strings.TrimSpace(directive)
		const prefix = "max-age="
		if !strings.HasPrefix(strings.ToLower(directive), prefix) {
			continue
		}
		seconds, err := strconv.Atoi(directive[len(prefix):])
		if err != nil || seconds < 0 {
			return DefaultMaxAge
		}
		return time.Duration(seconds) * time.Second
	}
	return DefaultMaxAge
}
